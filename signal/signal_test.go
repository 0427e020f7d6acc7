package signal

import (
	"testing"

	"stocklab/table"
)

func buildTable(t *testing.T) *table.Table {
	t.Helper()
	tb := table.New(table.DateColumn)
	rows := []struct {
		date  string
		close float64
		ma    float64
	}{
		{"2024-01-02", 10, 11},
		{"2024-01-03", 12, 11},
		{"2024-01-04", 11, 11.5},
	}
	for _, r := range rows {
		if err := tb.AppendRow(r.date, map[string]float64{"收盘_不复权": r.close, "5日均线": r.ma}); err != nil {
			t.Fatal(err)
		}
	}
	return tb
}

func TestSeriesComparison(t *testing.T) {
	tb := buildTable(t)
	ev, err := Compile(tb, "收盘_不复权 > 5日均线", "收盘_不复权 < 5日均线")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	buy, sell, err := ev.Series(tb)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	wantBuy := []bool{false, true, false}
	wantSell := []bool{true, false, true}
	for i := range wantBuy {
		if buy[i] != wantBuy[i] {
			t.Errorf("buy[%d] = %v, want %v", i, buy[i], wantBuy[i])
		}
		if sell[i] != wantSell[i] {
			t.Errorf("sell[%d] = %v, want %v", i, sell[i], wantSell[i])
		}
	}
}

func TestSeriesBooleanOperators(t *testing.T) {
	tb := buildTable(t)
	ev, err := Compile(tb, "收盘_不复权 > 9 && 收盘_不复权 < 11.5", "收盘_不复权 >= 12 || 5日均线 > 11")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	buy, sell, err := ev.Series(tb)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if !buy[0] || buy[1] || !buy[2] {
		t.Errorf("buy = %v", buy)
	}
	if sell[0] || !sell[1] || !sell[2] {
		t.Errorf("sell = %v", sell)
	}
}

func TestSeriesTruthyCoercion(t *testing.T) {
	tb := buildTable(t)
	// arithmetic result, coerced by truthiness: close-10 is 0 on the first row
	ev, err := Compile(tb, "收盘_不复权 - 10", "收盘_不复权 * 0")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	buy, sell, err := ev.Series(tb)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if buy[0] || !buy[1] || !buy[2] {
		t.Errorf("buy = %v", buy)
	}
	for i, s := range sell {
		if s {
			t.Errorf("sell[%d] = true, want false", i)
		}
	}
}

func TestMissingColumnFails(t *testing.T) {
	tb := buildTable(t)
	ev, err := Compile(tb, "不存在的列 > 1", "收盘_不复权 < 0")
	if err != nil {
		return // rejected at compile time is acceptable
	}
	if _, _, err := ev.Series(tb); err == nil {
		t.Fatal("expected evaluation error for missing column")
	}
}

func TestBareMissingColumnFails(t *testing.T) {
	tb := buildTable(t)
	// 整个表达式就是一个不存在的列名：不能静默求值成 false，
	// 必须在编译期报错，调用方据此跳过该股票
	if _, err := Compile(tb, "ma_5", "收盘_不复权 < 0"); err == nil {
		t.Fatal("expected compile error for unknown column used as whole expression")
	}
	if _, err := Compile(tb, "收盘_不复权 > 0", "ma_5"); err == nil {
		t.Fatal("expected compile error for unknown column in sell expression")
	}
}

func TestEmptyExpressionRejected(t *testing.T) {
	tb := buildTable(t)
	if _, err := Compile(tb, "", "收盘_不复权 > 0"); err == nil {
		t.Fatal("expected error for empty buy expression")
	}
}
