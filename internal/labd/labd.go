// Package labd wires the stores, factor registry, event hub and HTTP
// server into the stocklab daemon.
package labd

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"stocklab/api"
	"stocklab/backtest"
	"stocklab/config"
	"stocklab/event"
	"stocklab/factor"
	"stocklab/fetcher"
	"stocklab/store"
)

func Run(args []string) int {
	flags := flag.NewFlagSet("labd", flag.ContinueOnError)
	flags.SetOutput(os.Stderr)

	var configPath string
	flags.StringVar(&configPath, "config", "", "配置文件路径(YAML格式)，默认优先使用 ./config.yaml")

	if err := flags.Parse(args); err != nil {
		return 2
	}

	if configPath == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			configPath = "config.yaml"
		}
	}

	cfg := config.GetConfig(configPath)
	log := newLogger(cfg.LogLevel, cfg.LogFormat)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Error().Err(err).Str("dir", cfg.DataDir).Msg("创建数据目录失败")
		return 1
	}

	open := func(name string) *store.SQLiteStore {
		st, err := store.Open(filepath.Join(cfg.DataDir, name+".db"))
		if err != nil {
			log.Error().Err(err).Str("db", name).Msg("打开数据库失败")
			os.Exit(1)
		}
		return st
	}
	price := open(cfg.PriceDB)
	defer price.Close()
	factors := open(cfg.FactorDB)
	defer factors.Close()
	results := open(cfg.ResultsDB)
	defer results.Close()
	system := open(cfg.SystemDB)
	defer system.Close()

	registry := factor.NewRegistry()
	factor.RegisterBuiltins(registry)

	hub := event.NewHub(log)
	go hub.Run()
	sink := event.Multi{event.NewLogSink(log), hub}

	handler := api.NewHandler(api.HandlerConfig{
		Runner: &backtest.Runner{
			Price: price, Factor: factors, Results: results,
			Sink: sink, Log: log, Workers: cfg.Workers,
		},
		Batch: &factor.Batch{
			Price: price, Factor: factors, Registry: registry,
			Sink: sink, Log: log, Workers: cfg.Workers,
		},
		Registry: registry,
		Price:    price,
		System:   system,
		KLines:   fetcher.NewKLineFetcher(),
		Quotes:   fetcher.NewQuoteFetcher(),
		Sink:     sink,
		Log:      log,
		Workers:  cfg.Workers,
		Stocks:   cfg.Stocks,
	})

	server := api.NewServer(cfg.Port, handler, hub, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("HTTP服务启动失败")
		}
	}()

	log.Info().Int("port", cfg.Port).Str("data_dir", cfg.DataDir).Msg("stocklab 已启动")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("正在关闭服务...")
	if err := server.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("HTTP服务关闭出错")
	}
	log.Info().Msg("服务已关闭")
	return 0
}

// newLogger 按配置创建 zerolog 日志器，format 为 console 时输出彩色文本
func newLogger(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
		fmt.Fprintf(os.Stderr, "警告: 未知日志级别 %q，使用 info\n", level)
	}

	var logger zerolog.Logger
	if format == "json" {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}
