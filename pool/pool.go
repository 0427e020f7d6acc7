// Package pool runs one job per instrument across a bounded set of worker
// goroutines, reports results in completion order, and isolates per-unit
// failures so a single bad instrument never stops the batch.
package pool

import (
	"context"
	"fmt"
	"sync"
)

// DefaultWorkers 固定并发数，与批次大小无关
const DefaultWorkers = 8

// Result 单个任务的完成情况
type Result struct {
	ID  string
	Err error
}

// Progress 批次进度，百分比保留一位小数
type Progress struct {
	Completed  int    `json:"completed"`
	Total      int    `json:"total"`
	Percentage string `json:"percentage"`
}

// Run dispatches job(ctx, id) for every id across at most workers
// goroutines. onDone is invoked from the calling goroutine only, once per
// unit in completion order, with monotonically non-decreasing progress —
// single-emitter, so the event sink never sees concurrent writers.
//
// A job failure (error or panic) is delivered via Result.Err; remaining
// units keep running. Cancelling ctx stops dispatch: unstarted units
// complete immediately with ctx.Err(). Run returns once every unit has
// been attempted.
func Run(ctx context.Context, ids []string, workers int, job func(ctx context.Context, id string) error, onDone func(Result, Progress)) {
	total := len(ids)
	if total == 0 {
		return
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > total {
		workers = total
	}

	idCh := make(chan string, total)
	for _, id := range ids {
		idCh <- id
	}
	close(idCh)

	resCh := make(chan Result, total)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range idCh {
				if err := ctx.Err(); err != nil {
					resCh <- Result{ID: id, Err: err}
					continue
				}
				resCh <- Result{ID: id, Err: runOne(ctx, id, job)}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(resCh)
	}()

	completed := 0
	for res := range resCh {
		completed++
		onDone(res, Progress{
			Completed:  completed,
			Total:      total,
			Percentage: fmt.Sprintf("%.1f", float64(completed)/float64(total)*100),
		})
	}
}

// runOne 把单个任务的 panic 也收敛成错误，隔离在任务边界内
func runOne(ctx context.Context, id string, job func(ctx context.Context, id string) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", id, r)
		}
	}()
	return job(ctx, id)
}
