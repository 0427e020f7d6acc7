package backtest

import (
	"context"
	"math"
	"testing"
)

func TestAnnualized(t *testing.T) {
	ledger := []TradeRecord{
		{Date: "2024-01-01", Action: ActionBuy},
		{Date: "2024-01-03", Action: ActionSell},
	}
	// 持有 3 天，收益 10%
	want := round2((math.Pow(1.1, 365.0/3) - 1) * 100)
	if got := annualized(10, ledger); got != want {
		t.Errorf("annualized = %v, want %v", got, want)
	}
}

func TestAnnualizedSentinel(t *testing.T) {
	if got := annualized(10, nil); got != -1 {
		t.Errorf("无交易时应返回 -1, got %v", got)
	}
}

func TestWinStreak(t *testing.T) {
	buy := func(cashBefore float64) TradeRecord {
		return TradeRecord{Action: ActionBuy, TotalAssets: cashBefore}
	}
	sell := func(cashAfter float64) TradeRecord {
		return TradeRecord{Action: ActionSell, CashBalance: cashAfter}
	}
	ledger := []TradeRecord{
		buy(100), sell(110), // 胜
		buy(110), sell(120), // 胜
		buy(120), sell(90), // 负，连胜中断
		buy(90), sell(95), // 胜
	}
	if got := winStreak(ledger); got != 2 {
		t.Errorf("winStreak = %d, want 2", got)
	}
	if got := winStreak(nil); got != 0 {
		t.Errorf("winStreak(empty) = %d, want 0", got)
	}
}

func TestWinStreakSubCentProfit(t *testing.T) {
	// 买 10.001 卖 10.003，记录价都四舍五入成 10.00，
	// 但回合前后现金 10010 -> 10012，必须算一次盈利
	ledger := []TradeRecord{
		{Action: ActionBuy, Price: 10, Quantity: 1000, TotalAssets: 10010},
		{Action: ActionSell, Price: 10, Quantity: 1000, CashBalance: 10012},
	}
	if got := winStreak(ledger); got != 1 {
		t.Errorf("winStreak = %d, want 1", got)
	}
}

func TestWinStreakFromSimulatedLedger(t *testing.T) {
	rows := priceTable(t,
		[]string{"2024-01-01", "2024-01-02"},
		[]float64{10, 10},
		[]float64{10.001, 10.003},
	)
	ledger, _, err := Simulate(context.Background(), rows, []bool{true, false}, []bool{false, true}, 10010)
	if err != nil {
		t.Fatal(err)
	}
	if len(ledger) != 2 {
		t.Fatalf("ledger = %+v", ledger)
	}
	// 两行记录价格都是 10.00，盈利只体现在现金余额里
	if ledger[0].Price != ledger[1].Price {
		t.Fatalf("prices = %v, %v", ledger[0].Price, ledger[1].Price)
	}
	if got := winStreak(ledger); got != 1 {
		t.Errorf("winStreak = %d, want 1", got)
	}
}

func TestAggregateRankingOrder(t *testing.T) {
	outcomes := []Outcome{
		{Instrument: "sz000001", FinalAssets: 110, FirstOpen: 10, LastClose: 10, InitialCash: 100},
		{Instrument: "sh600000", FinalAssets: 110, FirstOpen: 10, LastClose: 10, InitialCash: 100},
		{Instrument: "sh600001", FinalAssets: 130, FirstOpen: 10, LastClose: 10, InitialCash: 100},
	}
	r := Aggregate(outcomes)
	if len(r.Returns) != 3 {
		t.Fatalf("returns = %+v", r.Returns)
	}
	// 降序，同分按代码升序
	if r.Returns[0].Instrument != "sh600001" {
		t.Errorf("first = %s", r.Returns[0].Instrument)
	}
	if r.Returns[1].Instrument != "sh600000" || r.Returns[2].Instrument != "sz000001" {
		t.Errorf("tie order = %s, %s", r.Returns[1].Instrument, r.Returns[2].Instrument)
	}
}

func TestAggregateOutperformFilter(t *testing.T) {
	outcomes := []Outcome{
		// 策略 10%，自身 0%:超额 +10，入榜
		{Instrument: "sh600000", FinalAssets: 110, FirstOpen: 10, LastClose: 10, InitialCash: 100},
		// 策略 10%，自身 50%:超额 -40，不入榜
		{Instrument: "sz000001", FinalAssets: 110, FirstOpen: 10, LastClose: 15, InitialCash: 100},
	}
	r := Aggregate(outcomes)
	if len(r.Outperform) != 1 || r.Outperform[0].Instrument != "sh600000" {
		t.Errorf("outperform = %+v", r.Outperform)
	}
	if len(r.BuyHold) != 2 || r.BuyHold[0].Instrument != "sz000001" {
		t.Errorf("buyHold = %+v", r.BuyHold)
	}
}

func TestSummarizeMetrics(t *testing.T) {
	o := Outcome{
		Instrument:  "sh600000",
		FinalAssets: 110,
		FirstOpen:   10,
		LastClose:   11,
		InitialCash: 100,
		Ledger: []TradeRecord{
			{Date: "2024-01-01", Action: ActionBuy, Price: 10, TotalAssets: 100},
			{Date: "2024-01-03", Action: ActionSell, Price: 11, CashBalance: 110},
		},
	}
	r := summarize(o)
	if r.ReturnPct != 10 {
		t.Errorf("return = %v", r.ReturnPct)
	}
	if r.BuyHoldPct != 10 {
		t.Errorf("buyHold = %v", r.BuyHoldPct)
	}
	if r.OutperformPct != 0 {
		t.Errorf("outperform = %v", r.OutperformPct)
	}
	if r.WinStreak != 1 {
		t.Errorf("winStreak = %v", r.WinStreak)
	}
	if r.AnnualizedPct == -1 {
		t.Errorf("annualized should be computable, got -1")
	}
}
