package backtest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"stocklab/event"
	"stocklab/model"
	"stocklab/pool"
	"stocklab/signal"
	"stocklab/store"
	"stocklab/table"
)

// Request 一次批量回测请求
type Request struct {
	Instruments  []string `json:"stock_list"`
	BuyExpr      string   `json:"buy_condition"`
	SellExpr     string   `json:"sell_condition"`
	Start        string   `json:"start_date"`
	End          string   `json:"end_date"`
	RunName      string   `json:"table_prefix"`
	FilterFirstN int      `json:"filter_first_n"`
	FilterLastN  int      `json:"filter_last_n"`
	InitialCash  float64  `json:"initial_cash"`
}

// Skip 被跳过的股票及原因
type Skip struct {
	Instrument string `json:"stock"`
	Reason     string `json:"reason"`
}

// Response 回测结果：排行、逐股流水和跳过清单
type Response struct {
	Message  string                   `json:"message"`
	Rankings Rankings                 `json:"rankings"`
	Ledgers  map[string][]TradeRecord `json:"ledgers"`
	Skipped  []Skip                   `json:"skipped,omitempty"`
}

// Runner 批量回测执行器。行情与因子分库读取，结果落到 Results 库。
type Runner struct {
	Price   store.Store
	Factor  store.Store
	Results store.Store
	Sink    event.Sink
	Log     zerolog.Logger
	Workers int
}

// Run 对请求里的每只股票并发执行一次完整模拟。
// 单只股票的失败（无数据、信号编译失败等）记入 skipped，不影响整批。
func (r *Runner) Run(ctx context.Context, req *Request) (*Response, error) {
	if len(req.Instruments) == 0 {
		return nil, fmt.Errorf("股票列表为空")
	}
	if req.BuyExpr == "" || req.SellExpr == "" {
		return nil, fmt.Errorf("买入/卖出条件不能为空")
	}
	if req.RunName == "" {
		return nil, fmt.Errorf("结果表前缀不能为空")
	}
	if req.InitialCash <= 0 {
		req.InitialCash = DefaultInitialCash
	}

	var (
		mu       sync.Mutex
		outcomes []Outcome
		skipped  []Skip
		ledgers  = make(map[string][]TradeRecord)
	)

	job := func(ctx context.Context, code string) error {
		outcome, err := r.runOne(ctx, req, code)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			skipped = append(skipped, Skip{Instrument: code, Reason: err.Error()})
			return err
		}
		outcomes = append(outcomes, *outcome)
		ledgers[code] = outcome.Ledger
		return nil
	}

	pool.Run(ctx, req.Instruments, r.Workers, job, func(res pool.Result, p pool.Progress) {
		if res.Err != nil {
			r.Log.Warn().Str("stock", res.ID).Err(res.Err).Msg("回测跳过")
		}
		if r.Sink != nil {
			r.Sink.Emit(event.EventProgress, p)
		}
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 聚合顺序与股票代码顺序解耦，先排一下保证结果稳定
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Instrument < outcomes[j].Instrument })
	rankings := Aggregate(outcomes)

	r.persist(ctx, req.RunName, rankings, ledgers)

	return &Response{
		Message:  "回测完成",
		Rankings: rankings,
		Ledgers:  ledgers,
		Skipped:  skipped,
	}, nil
}

// runOne 读取行情与因子、过滤行、求信号并执行模拟
func (r *Runner) runOne(ctx context.Context, req *Request, code string) (*Outcome, error) {
	price, err := r.Price.ReadRange(ctx, code, table.DateColumn, req.Start, req.End, nil)
	if err != nil {
		return nil, fmt.Errorf("行情数据不可用: %w", err)
	}

	rows := price
	if r.Factor != nil {
		// 因子表缺失不是错误，退回纯行情回测
		if factors, err := r.Factor.ReadRange(ctx, code, table.DateColumn, req.Start, req.End, nil); err == nil {
			rows = price.MergeInner(factors)
		} else {
			r.Log.Debug().Str("stock", code).Err(err).Msg("无因子数据，仅用行情回测")
		}
	}

	rows = rows.DropEnds(req.FilterFirstN, req.FilterLastN)
	rows = rows.Slice(req.Start, req.End)
	if rows.Len() == 0 {
		return nil, fmt.Errorf("区间内无数据")
	}

	ev, err := signal.Compile(rows, req.BuyExpr, req.SellExpr)
	if err != nil {
		return nil, fmt.Errorf("信号编译失败: %w", err)
	}
	buy, sell, err := ev.Series(rows)
	if err != nil {
		return nil, fmt.Errorf("信号求值失败: %w", err)
	}

	ledger, finalAssets, err := Simulate(ctx, rows, buy, sell, req.InitialCash)
	if err != nil {
		return nil, err
	}

	firstOpen, _ := rows.Value(model.ColOpen, 0)
	lastClose, _ := rows.Value(model.ColClose, rows.Len()-1)
	return &Outcome{
		Instrument:  code,
		Ledger:      ledger,
		FinalAssets: finalAssets,
		FirstOpen:   firstOpen,
		LastClose:   lastClose,
		InitialCash: req.InitialCash,
	}, nil
}

// persist 落库：四张排行表 + 逐股流水表。写失败只记日志，不影响返回结果。
func (r *Runner) persist(ctx context.Context, run string, rankings Rankings, ledgers map[string][]TradeRecord) {
	if r.Results == nil {
		return
	}
	views := []struct {
		name string
		rows []RunResult
	}{
		{run + "_收益排行", rankings.Returns},
		{run + "_个股自身收益总榜", rankings.BuyHold},
		{run + "_跑赢自身收益排行", rankings.Outperform},
		{run + "_连胜排行", rankings.WinStreak},
	}
	for _, v := range views {
		if len(v.rows) == 0 {
			continue
		}
		if err := r.Results.Upsert(ctx, v.name, rankingFrame(v.rows)); err != nil {
			r.Log.Error().Str("table", v.name).Err(err).Msg("排行表写入失败")
		}
	}

	for code, ledger := range ledgers {
		if len(ledger) == 0 {
			continue
		}
		tbl := run + "_" + code
		if err := r.Results.UpsertRows(ctx, tbl, table.DateColumn, ledgerRows(ledger)); err != nil {
			r.Log.Error().Str("table", tbl).Err(err).Msg("流水表写入失败")
		}
	}
}

// rankingFrame 把排行视图转成以股票代码为主键的数值表。
// 排名单独存一列，主键顺序不携带名次信息。
func rankingFrame(rows []RunResult) *table.Table {
	rank := make(map[string]int, len(rows))
	for i, r := range rows {
		rank[r.Instrument] = i + 1
	}
	sorted := make([]RunResult, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Instrument < sorted[j].Instrument })

	out := table.New("股票代码")
	for _, r := range sorted {
		_ = out.AppendRow(r.Instrument, map[string]float64{
			"排名":      float64(rank[r.Instrument]),
			"最终总资产":   r.FinalAssets,
			"收益率":     r.ReturnPct,
			"年化收益率":   r.AnnualizedPct,
			"个股自身收益率": r.BuyHoldPct,
			"跑赢自身收益率": r.OutperformPct,
			"最大连胜":    float64(r.WinStreak),
		})
	}
	return out
}

// ledgerRows 把交易流水转成字符串行（含操作列，无法走数值表）
func ledgerRows(ledger []TradeRecord) []map[string]string {
	rows := make([]map[string]string, 0, len(ledger))
	for _, rec := range ledger {
		rows = append(rows, map[string]string{
			table.DateColumn: rec.Date,
			"操作":             rec.Action,
			"价格":             strconv.FormatFloat(rec.Price, 'f', -1, 64),
			"数量":             strconv.FormatInt(rec.Quantity, 10),
			"现金余额":           strconv.FormatFloat(rec.CashBalance, 'f', -1, 64),
			"持仓":             strconv.FormatInt(rec.Position, 10),
			"总资产":            strconv.FormatFloat(rec.TotalAssets, 'f', -1, 64),
		})
	}
	return rows
}
