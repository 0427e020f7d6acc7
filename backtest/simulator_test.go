package backtest

import (
	"context"
	"testing"

	"stocklab/model"
	"stocklab/table"
)

func priceTable(t *testing.T, dates []string, open, close []float64) *table.Table {
	t.Helper()
	out := table.New(table.DateColumn)
	for i, d := range dates {
		if err := out.AppendRow(d, map[string]float64{
			model.ColOpen:  open[i],
			model.ColClose: close[i],
		}); err != nil {
			t.Fatal(err)
		}
	}
	return out
}

func TestSimulateBuyThenSell(t *testing.T) {
	rows := priceTable(t,
		[]string{"2024-01-01", "2024-01-02", "2024-01-03"},
		[]float64{10, 11.5, 12},
		[]float64{10, 12, 11},
	)
	buy := []bool{true, false, false}
	sell := []bool{false, false, true}

	ledger, final, err := Simulate(context.Background(), rows, buy, sell, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(ledger) != 2 {
		t.Fatalf("ledger = %d records, want 2", len(ledger))
	}

	b := ledger[0]
	if b.Action != ActionBuy || b.Date != "2024-01-01" || b.Quantity != 10 {
		t.Errorf("buy record = %+v", b)
	}
	if b.CashBalance != 0 || b.Position != 10 || b.TotalAssets != 100 {
		t.Errorf("buy record = %+v", b)
	}

	s := ledger[1]
	if s.Action != ActionSell || s.Date != "2024-01-03" || s.Price != 11 {
		t.Errorf("sell record = %+v", s)
	}
	if s.CashBalance != 110 || s.Position != 0 || s.TotalAssets != 110 {
		t.Errorf("sell record = %+v", s)
	}
	if final != 110 {
		t.Errorf("final assets = %v, want 110", final)
	}
}

func TestSimulateNoSignals(t *testing.T) {
	rows := priceTable(t,
		[]string{"2024-01-01", "2024-01-02"},
		[]float64{10, 11},
		[]float64{10, 11},
	)
	ledger, final, err := Simulate(context.Background(), rows, []bool{false, false}, []bool{false, false}, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(ledger) != 0 {
		t.Errorf("ledger = %+v, want empty", ledger)
	}
	if final != 100 {
		t.Errorf("final = %v, want initial cash back", final)
	}
}

func TestSimulateForcedLiquidation(t *testing.T) {
	rows := priceTable(t,
		[]string{"2024-01-01", "2024-01-02", "2024-01-03"},
		[]float64{10, 10, 10},
		[]float64{10, 10, 13},
	)
	// 买入后没有卖出信号，最后一行强制平仓
	ledger, final, err := Simulate(context.Background(), rows, []bool{true, false, false}, []bool{false, false, false}, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(ledger) != 2 {
		t.Fatalf("ledger = %+v", ledger)
	}
	last := ledger[1]
	if last.Action != ActionSell || last.Date != "2024-01-03" || last.Price != 13 {
		t.Errorf("forced sell = %+v", last)
	}
	if final != 130 {
		t.Errorf("final = %v, want 130", final)
	}
}

func TestSimulateNoBuyOnLastRow(t *testing.T) {
	rows := priceTable(t,
		[]string{"2024-01-01", "2024-01-02"},
		[]float64{10, 10},
		[]float64{10, 10},
	)
	ledger, final, err := Simulate(context.Background(), rows, []bool{false, true}, []bool{false, false}, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(ledger) != 0 || final != 100 {
		t.Errorf("last-row buy must be ignored, got ledger=%+v final=%v", ledger, final)
	}
}

func TestSimulateInsufficientCash(t *testing.T) {
	rows := priceTable(t,
		[]string{"2024-01-01", "2024-01-02"},
		[]float64{50, 50},
		[]float64{50, 50},
	)
	ledger, final, err := Simulate(context.Background(), rows, []bool{true, false}, []bool{false, false}, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(ledger) != 0 || final != 30 {
		t.Errorf("buy below one unit must be skipped, got ledger=%+v final=%v", ledger, final)
	}
}

func TestSimulateInvariants(t *testing.T) {
	dates := []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05", "2024-01-08"}
	open := []float64{10, 11, 9, 12, 8, 10}
	close := []float64{10.5, 10.8, 9.3, 11.7, 8.2, 10.1}
	rows := priceTable(t, dates, open, close)
	buy := []bool{true, false, true, false, true, true}
	sell := []bool{false, true, false, true, false, false}

	ledger, final, err := Simulate(context.Background(), rows, buy, sell, 1000)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]int{}
	for _, rec := range ledger {
		if rec.CashBalance < 0 {
			t.Errorf("现金为负: %+v", rec)
		}
		if rec.Position < 0 {
			t.Errorf("持仓为负: %+v", rec)
		}
		seen[rec.Date]++
		if seen[rec.Date] > 1 {
			t.Errorf("同一日期出现多个动作: %s", rec.Date)
		}
	}
	if final < 0 {
		t.Errorf("final = %v", final)
	}
}

func TestSimulateCancelled(t *testing.T) {
	rows := priceTable(t, []string{"2024-01-01"}, []float64{10}, []float64{10})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := Simulate(ctx, rows, []bool{false}, []bool{false}, 100); err == nil {
		t.Fatal("expected context error")
	}
}
