package pool

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"
)

func TestRunCompletesAllUnits(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}
	var ran atomic.Int32

	var results []Result
	var last Progress
	Run(context.Background(), ids, 3, func(_ context.Context, id string) error {
		ran.Add(1)
		return nil
	}, func(r Result, p Progress) {
		results = append(results, r)
		last = p
	})

	if got := ran.Load(); got != 5 {
		t.Errorf("ran %d jobs, want 5", got)
	}
	if len(results) != 5 {
		t.Fatalf("got %d results, want 5", len(results))
	}
	if last.Completed != 5 || last.Total != 5 || last.Percentage != "100.0" {
		t.Errorf("final progress = %+v", last)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	boom := errors.New("boom")
	ids := []string{"s1", "s2", "s3", "s4", "s5"}

	failed := 0
	succeeded := 0
	Run(context.Background(), ids, 2, func(_ context.Context, id string) error {
		if id == "s3" {
			return boom
		}
		return nil
	}, func(r Result, _ Progress) {
		if r.Err != nil {
			if r.ID != "s3" || !errors.Is(r.Err, boom) {
				t.Errorf("unexpected failure: %+v", r)
			}
			failed++
		} else {
			succeeded++
		}
	})

	if failed != 1 || succeeded != 4 {
		t.Errorf("failed=%d succeeded=%d, want 1/4", failed, succeeded)
	}
}

func TestRunRecoversPanic(t *testing.T) {
	var errCount int
	Run(context.Background(), []string{"x", "y"}, 1, func(_ context.Context, id string) error {
		if id == "x" {
			panic("bad factor")
		}
		return nil
	}, func(r Result, _ Progress) {
		if r.Err != nil {
			errCount++
		}
	})
	if errCount != 1 {
		t.Errorf("errCount = %d, want 1", errCount)
	}
}

func TestRunProgressMonotonic(t *testing.T) {
	var ids []string
	for i := 0; i < 20; i++ {
		ids = append(ids, "s"+strconv.Itoa(i))
	}

	prev := 0.0
	Run(context.Background(), ids, 4, func(_ context.Context, _ string) error {
		return nil
	}, func(_ Result, p Progress) {
		pct, err := strconv.ParseFloat(p.Percentage, 64)
		if err != nil {
			t.Fatalf("bad percentage %q", p.Percentage)
		}
		if pct < prev {
			t.Errorf("progress went backwards: %v -> %v", prev, pct)
		}
		prev = pct
		want := fmt.Sprintf("%.1f", float64(p.Completed)/float64(p.Total)*100)
		if p.Percentage != want {
			t.Errorf("percentage = %s, want %s", p.Percentage, want)
		}
	})
	if prev != 100.0 {
		t.Errorf("final percentage = %v, want 100.0", prev)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempted := 0
	cancelled := 0
	Run(ctx, []string{"a", "b", "c"}, 2, func(_ context.Context, _ string) error {
		t.Error("job ran after cancellation")
		return nil
	}, func(r Result, _ Progress) {
		attempted++
		if errors.Is(r.Err, context.Canceled) {
			cancelled++
		}
	})

	// every unit is still reported, all with ctx.Err()
	if attempted != 3 || cancelled != 3 {
		t.Errorf("attempted=%d cancelled=%d, want 3/3", attempted, cancelled)
	}
}
