package factor

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"stocklab/model"
	"stocklab/pool"
	"stocklab/store"
	"stocklab/table"
)

type recordSink struct {
	events   []string
	payloads []any
}

func (s *recordSink) Emit(event string, payload any) {
	s.events = append(s.events, event)
	s.payloads = append(s.payloads, payload)
}

func newBatch(t *testing.T) (*Batch, *store.SQLiteStore, *store.SQLiteStore, *recordSink) {
	t.Helper()
	dir := t.TempDir()
	price, err := store.Open(filepath.Join(dir, "china.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { price.Close() })
	factors, err := store.Open(filepath.Join(dir, "factor.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { factors.Close() })

	reg := NewRegistry()
	RegisterBuiltins(reg)
	sink := &recordSink{}
	return &Batch{
		Price:    price,
		Factor:   factors,
		Registry: reg,
		Sink:     sink,
		Log:      zerolog.Nop(),
		Workers:  2,
	}, price, factors, sink
}

func seedCloses(t *testing.T, st store.Store, code string, closes []float64) {
	t.Helper()
	f := table.New(table.DateColumn)
	for i, c := range closes {
		if err := f.AppendRow(fmt.Sprintf("2024-01-%02d", i+1), map[string]float64{model.ColClose: c}); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.Upsert(context.Background(), code, f); err != nil {
		t.Fatal(err)
	}
}

func TestComputeBatch(t *testing.T) {
	b, price, factors, sink := newBatch(t)

	stocks := []string{"sh600000", "sh600001", "sz000001", "sz000002"}
	for _, code := range stocks {
		seedCloses(t, price, code, []float64{1, 2, 3, 4, 5})
	}
	// 第 5 只没有行情数据，单独失败
	all := append(stocks, "sh999999")

	res := b.Compute(context.Background(), all, &BatchRequest{
		FactorName: "moving_average",
		Function:   "moving_average",
		Parameters: "df, column, moving_average_days",
		BaseData:   []string{model.ColClose},
		Values:     map[string]any{"moving_average_days": 3.0},
	})
	if res.Error != "" {
		t.Fatalf("error = %q", res.Error)
	}
	if len(res.Failed) != 1 || res.Failed[0].Instrument != "sh999999" {
		t.Errorf("failed = %+v", res.Failed)
	}

	// 成功的股票写入了因子列
	got, err := factors.ReadAll(context.Background(), "sh600000")
	if err != nil {
		t.Fatal(err)
	}
	if !got.HasColumn("3日均线") {
		t.Errorf("columns = %v", got.Columns())
	}
	if v, _ := got.Value("3日均线", 4); v != 4 {
		t.Errorf("3日均线[4] = %v, want 4", v)
	}

	// 失败不影响进度推进到 100%
	var last pool.Progress
	progressCount := 0
	for i, ev := range sink.events {
		if ev == "compute/progress" {
			progressCount++
			last = sink.payloads[i].(pool.Progress)
		}
	}
	if progressCount != 5 {
		t.Errorf("progress events = %d, want 5", progressCount)
	}
	if last.Percentage != "100.0" {
		t.Errorf("last progress = %+v", last)
	}
	errorCount := 0
	for _, ev := range sink.events {
		if ev == "error" {
			errorCount++
		}
	}
	if errorCount != 1 {
		t.Errorf("error events = %d, want 1", errorCount)
	}
}

func TestComputeValidation(t *testing.T) {
	b, _, _, _ := newBatch(t)

	res := b.Compute(context.Background(), nil, &BatchRequest{
		FactorName: "moving_average",
		Function:   "moving_average",
		Parameters: "df",
	})
	if res.Error == "" {
		t.Error("空股票列表应整批失败")
	}

	res = b.Compute(context.Background(), []string{"sh600000"}, &BatchRequest{
		FactorName: "nope",
		Function:   "nope",
		Parameters: "df",
	})
	if res.Error == "" {
		t.Error("未注册因子应整批失败")
	}

	res = b.Compute(context.Background(), []string{"sh600000"}, &BatchRequest{
		FactorName: "moving_average",
		Function:   "wrong_function",
		Parameters: "df, column, moving_average_days",
	})
	if res.Error == "" {
		t.Error("函数名不匹配应整批失败")
	}
}
