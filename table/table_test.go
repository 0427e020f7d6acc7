package table

import (
	"math"
	"testing"
)

func mustAppend(t *testing.T, tb *Table, key string, vals map[string]float64) {
	t.Helper()
	if err := tb.AppendRow(key, vals); err != nil {
		t.Fatalf("AppendRow(%s): %v", key, err)
	}
}

func TestAppendRowRejectsDuplicateAndOutOfOrder(t *testing.T) {
	tb := New(DateColumn)
	mustAppend(t, tb, "2024-01-02", map[string]float64{"close": 10})

	if err := tb.AppendRow("2024-01-02", map[string]float64{"close": 11}); err == nil {
		t.Fatal("expected error for duplicate date")
	}
	if err := tb.AppendRow("2024-01-01", map[string]float64{"close": 9}); err == nil {
		t.Fatal("expected error for out-of-order date")
	}
}

func TestAppendRowBackfillsNewColumns(t *testing.T) {
	tb := New(DateColumn)
	mustAppend(t, tb, "2024-01-02", map[string]float64{"close": 10})
	mustAppend(t, tb, "2024-01-03", map[string]float64{"close": 11, "volume": 100})

	vol, ok := tb.Column("volume")
	if !ok {
		t.Fatal("volume column missing")
	}
	if !math.IsNaN(vol[0]) {
		t.Errorf("backfilled value = %v, want NaN", vol[0])
	}
	if vol[1] != 100 {
		t.Errorf("vol[1] = %v, want 100", vol[1])
	}
}

func TestMergeInner(t *testing.T) {
	a := New(DateColumn)
	mustAppend(t, a, "2024-01-02", map[string]float64{"close": 10})
	mustAppend(t, a, "2024-01-03", map[string]float64{"close": 11})
	mustAppend(t, a, "2024-01-04", map[string]float64{"close": 12})

	b := New(DateColumn)
	mustAppend(t, b, "2024-01-03", map[string]float64{"ma": 10.5})
	mustAppend(t, b, "2024-01-04", map[string]float64{"ma": 11.5})
	mustAppend(t, b, "2024-01-05", map[string]float64{"ma": 12.5})

	m := a.MergeInner(b)
	if m.Len() != 2 {
		t.Fatalf("merged len = %d, want 2", m.Len())
	}
	if m.Keys()[0] != "2024-01-03" || m.Keys()[1] != "2024-01-04" {
		t.Errorf("merged keys = %v", m.Keys())
	}
	if v, _ := m.Value("close", 0); v != 11 {
		t.Errorf("close[0] = %v, want 11", v)
	}
	if v, _ := m.Value("ma", 1); v != 11.5 {
		t.Errorf("ma[1] = %v, want 11.5", v)
	}
	// no duplicate dates after merge
	seen := map[string]bool{}
	for _, k := range m.Keys() {
		if seen[k] {
			t.Fatalf("duplicate date %s after merge", k)
		}
		seen[k] = true
	}
}

func TestSliceAndDropEnds(t *testing.T) {
	tb := New(DateColumn)
	for _, d := range []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"} {
		mustAppend(t, tb, d, map[string]float64{"close": 1})
	}

	s := tb.Slice("2024-01-02", "2024-01-04")
	if s.Len() != 3 || s.Keys()[0] != "2024-01-02" || s.Keys()[2] != "2024-01-04" {
		t.Errorf("Slice keys = %v", s.Keys())
	}

	d := tb.DropEnds(1, 2)
	if d.Len() != 2 || d.Keys()[0] != "2024-01-02" || d.Keys()[1] != "2024-01-03" {
		t.Errorf("DropEnds keys = %v", d.Keys())
	}

	// over-trim collapses to empty, never panics
	if got := tb.DropEnds(4, 4).Len(); got != 0 {
		t.Errorf("over-trim len = %d, want 0", got)
	}
}

func TestRowEnv(t *testing.T) {
	tb := New(DateColumn)
	mustAppend(t, tb, "2024-01-02", map[string]float64{"close": 10, "open": 9})
	env := tb.Row(0)
	if env[DateColumn] != "2024-01-02" {
		t.Errorf("env date = %v", env[DateColumn])
	}
	if env["close"] != 10.0 || env["open"] != 9.0 {
		t.Errorf("env values = %v", env)
	}
}
