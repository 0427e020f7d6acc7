package backtest

import (
	"math"
	"sort"
	"time"
)

// Outcome 单只股票模拟完成后的原始结果，聚合前的输入
type Outcome struct {
	Instrument  string
	Ledger      []TradeRecord
	FinalAssets float64
	FirstOpen   float64
	LastClose   float64
	InitialCash float64
}

// summarize 计算单只股票的汇总指标
func summarize(o Outcome) RunResult {
	returnPct := round2((o.FinalAssets - o.InitialCash) / o.InitialCash * 100)

	buyHold := 0.0
	if o.FirstOpen > 0 {
		buyHold = round2((o.LastClose - o.FirstOpen) / o.FirstOpen * 100)
	}

	return RunResult{
		Instrument:    o.Instrument,
		FinalAssets:   round2(o.FinalAssets),
		ReturnPct:     returnPct,
		AnnualizedPct: annualized(returnPct, o.Ledger),
		BuyHoldPct:    buyHold,
		OutperformPct: round2(returnPct - buyHold),
		WinStreak:     winStreak(o.Ledger),
	}
}

// annualized 按首笔到末笔交易的持有天数折算年化收益率。
// 没有交易或持有期为 0 时返回 -1 哨兵值。
func annualized(returnPct float64, ledger []TradeRecord) float64 {
	if len(ledger) == 0 {
		return -1
	}
	first, err1 := time.Parse("2006-01-02", ledger[0].Date)
	last, err2 := time.Parse("2006-01-02", ledger[len(ledger)-1].Date)
	if err1 != nil || err2 != nil {
		return -1
	}
	days := int(last.Sub(first).Hours()/24) + 1
	if days <= 0 {
		return -1
	}
	r := math.Pow(1+returnPct/100, 365/float64(days)) - 1
	return round2(r * 100)
}

// winStreak 最大连胜：连续盈利的买卖回合数。
// 盈亏按回合前后的现金判断——买入行持仓为 0，总资产就是买入前的现金，
// 记录价格只有两位小数，按价格比较会把每股不足一分的盈利判成平手。
func winStreak(ledger []TradeRecord) int {
	var (
		best, streak int
		startCash    float64
		holding      bool
	)
	for _, rec := range ledger {
		switch rec.Action {
		case ActionBuy:
			startCash = rec.TotalAssets
			holding = true
		case ActionSell:
			if !holding {
				continue
			}
			holding = false
			if rec.CashBalance > startCash {
				streak++
				if streak > best {
					best = streak
				}
			} else {
				streak = 0
			}
		}
	}
	return best
}

// Aggregate 汇总所有股票的结果并生成四个排行视图
func Aggregate(outcomes []Outcome) Rankings {
	results := make([]RunResult, 0, len(outcomes))
	for _, o := range outcomes {
		results = append(results, summarize(o))
	}

	rankings := Rankings{
		Returns:   rankBy(results, func(r RunResult) float64 { return r.ReturnPct }),
		BuyHold:   rankBy(results, func(r RunResult) float64 { return r.BuyHoldPct }),
		WinStreak: rankBy(results, func(r RunResult) float64 { return float64(r.WinStreak) }),
	}

	// 跑赢榜只收录正超额收益
	positive := make([]RunResult, 0, len(results))
	for _, r := range results {
		if r.OutperformPct > 0 {
			positive = append(positive, r)
		}
	}
	rankings.Outperform = rankBy(positive, func(r RunResult) float64 { return r.OutperformPct })
	return rankings
}

// rankBy 按 key 降序排序，同分按股票代码升序
func rankBy(results []RunResult, key func(RunResult) float64) []RunResult {
	out := make([]RunResult, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := key(out[i]), key(out[j])
		if a != b {
			return a > b
		}
		return out[i].Instrument < out[j].Instrument
	})
	return out
}
