package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// YAMLConfig YAML配置文件结构
type YAMLConfig struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Storage struct {
		DataDir   string `yaml:"data_dir"`
		PriceDB   string `yaml:"price_db"`
		FactorDB  string `yaml:"factor_db"`
		ResultsDB string `yaml:"results_db"`
		SystemDB  string `yaml:"system_db"`
	} `yaml:"storage"`

	Compute struct {
		Workers int `yaml:"workers"`
	} `yaml:"compute"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Monitor struct {
		Stocks []string `yaml:"stocks"`
	} `yaml:"monitor"`
}

// Config 配置
type Config struct {
	// HTTP 服务端口
	Port int

	// SQLite 数据库目录
	DataDir string

	// 各库文件名（不含 .db 后缀）
	PriceDB   string
	FactorDB  string
	ResultsDB string
	SystemDB  string

	// 批量计算并发数
	Workers int

	// 日志级别与格式 (console / json)
	LogLevel  string
	LogFormat string

	// 默认股票列表（system 库里没有 stock_list 时的兜底）
	Stocks []string
}

// DefaultConfig 默认配置
var DefaultConfig = Config{
	Port:      19528,
	DataDir:   "data",
	PriceDB:   "china",
	FactorDB:  "factor",
	ResultsDB: "backtest",
	SystemDB:  "system",
	Workers:   8,
	LogLevel:  "info",
	LogFormat: "console",
	Stocks: []string{
		"sh600000", // 浦发银行
		"sz000001", // 平安银行
		"sh600519", // 贵州茅台
	},
}

// LoadFromFile 从YAML文件加载配置
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var yamlConfig YAMLConfig
	if err := yaml.Unmarshal(data, &yamlConfig); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 从YAML配置转换为Config
	config := DefaultConfig

	if yamlConfig.Server.Port > 0 {
		config.Port = yamlConfig.Server.Port
	}

	if yamlConfig.Storage.DataDir != "" {
		config.DataDir = yamlConfig.Storage.DataDir
	}
	if yamlConfig.Storage.PriceDB != "" {
		config.PriceDB = yamlConfig.Storage.PriceDB
	}
	if yamlConfig.Storage.FactorDB != "" {
		config.FactorDB = yamlConfig.Storage.FactorDB
	}
	if yamlConfig.Storage.ResultsDB != "" {
		config.ResultsDB = yamlConfig.Storage.ResultsDB
	}
	if yamlConfig.Storage.SystemDB != "" {
		config.SystemDB = yamlConfig.Storage.SystemDB
	}

	if yamlConfig.Compute.Workers > 0 {
		config.Workers = yamlConfig.Compute.Workers
	}

	if yamlConfig.Logging.Level != "" {
		config.LogLevel = yamlConfig.Logging.Level
	}
	if yamlConfig.Logging.Format != "" {
		config.LogFormat = yamlConfig.Logging.Format
	}

	if len(yamlConfig.Monitor.Stocks) > 0 {
		config.Stocks = yamlConfig.Monitor.Stocks
	}

	return &config, nil
}

// GetConfig 获取配置 (优先级: 环境变量 > 配置文件 > 默认值)
func GetConfig(configPath string) *Config {
	config := DefaultConfig

	// 尝试从配置文件加载
	if configPath != "" {
		if cfg, err := LoadFromFile(configPath); err == nil {
			config = *cfg
		} else {
			fmt.Printf("警告: 无法加载配置文件 %s: %v\n", configPath, err)
		}
	}

	// 环境变量覆盖配置文件
	if dir := os.Getenv("STOCKLAB_DATA_DIR"); dir != "" {
		config.DataDir = dir
	}
	if port := os.Getenv("STOCKLAB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			config.Port = p
		}
	}
	if level := os.Getenv("STOCKLAB_LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}
	if stocks := os.Getenv("STOCKLAB_STOCKS"); stocks != "" {
		config.Stocks = SplitList(stocks)
	}

	return &config
}

// SplitList 解析逗号分隔的代码列表，去掉空项和首尾空白
func SplitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
