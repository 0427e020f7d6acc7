// Package backtest implements the trade simulator: it folds buy/sell
// signals over date-ordered rows into a trade ledger, then aggregates
// per-instrument outcomes into ranked views.
package backtest

import "math"

// 操作类型
const (
	ActionBuy  = "买入"
	ActionSell = "卖出"
)

// DefaultInitialCash 默认初始资金
const DefaultInitialCash = 100000

// TradeRecord 单笔交易流水
type TradeRecord struct {
	Date        string  `json:"日期"`
	Action      string  `json:"操作"`
	Price       float64 `json:"价格"`
	Quantity    int64   `json:"数量"`
	CashBalance float64 `json:"现金余额"`
	Position    int64   `json:"持仓"`
	TotalAssets float64 `json:"总资产"`
}

// PortfolioState 模拟过程中的组合状态。Cash 与 Position 永不为负。
type PortfolioState struct {
	Cash     float64
	Position int64
}

// RunResult 单只股票的回测汇总
type RunResult struct {
	Instrument    string  `json:"股票代码"`
	FinalAssets   float64 `json:"最终总资产"`
	ReturnPct     float64 `json:"收益率"`
	AnnualizedPct float64 `json:"年化收益率"` // -1 表示持有期为 0 无法计算
	BuyHoldPct    float64 `json:"个股自身收益率"`
	OutperformPct float64 `json:"跑赢自身收益率"`
	WinStreak     int     `json:"最大连胜"`
}

// Rankings 四个排行视图，均为降序、同分按代码升序
type Rankings struct {
	Returns    []RunResult `json:"收益排行"`
	BuyHold    []RunResult `json:"个股自身收益总榜"`
	Outperform []RunResult `json:"跑赢自身收益排行"`
	WinStreak  []RunResult `json:"连胜排行"`
}

// round2 金额保留两位小数
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
