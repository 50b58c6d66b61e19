// Package batch runs independent jobs on a bounded worker pool and tracks
// their progress.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/sourcegraph/conc/pool"
)

// Outcome pairs one submitted item with what its job produced. Exactly one
// of Value and Err is meaningful.
type Outcome[T, R any] struct {
	Item  T
	Value R
	Err   error
}

// OK reports whether the job succeeded.
func (o Outcome[T, R]) OK() bool { return o.Err == nil }

type Executor struct {
	maxWorkers int
}

// NewExecutor returns an executor running at most maxWorkers jobs at once.
// maxWorkers <= 0 selects two workers per logical CPU.
func NewExecutor(maxWorkers int) *Executor {
	if maxWorkers <= 0 {
		maxWorkers = DefaultWorkers()
	}
	slog.Debug("parallel executor ready", "max_workers", maxWorkers)
	return &Executor{maxWorkers: maxWorkers}
}

// DefaultWorkers is two workers per logical CPU.
func DefaultWorkers() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		n = runtime.NumCPU()
	}
	return n * 2
}

func (e *Executor) MaxWorkers() int { return e.maxWorkers }

// Process runs fn once for every item and blocks until all of them have
// finished. onDone, if set, is called once per item right after its job
// returns; calls follow completion order and may run concurrently.
//
// The returned outcomes are in completion order, not input order. Items not
// yet started when ctx is done are skipped and reported with ctx.Err().
func Process[T, R any](ctx context.Context, e *Executor, items []T, fn func(context.Context, T) (R, error), onDone func(Outcome[T, R])) []Outcome[T, R] {
	var (
		mu       sync.Mutex
		outcomes = make([]Outcome[T, R], 0, len(items))
	)

	p := pool.New().WithMaxGoroutines(e.maxWorkers)
	for _, item := range items {
		item := item
		p.Go(func() {
			out := run(ctx, item, fn)
			if out.Err != nil {
				slog.Error("job failed", "item", fmt.Sprint(item), "error", out.Err)
			}

			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()

			if onDone != nil {
				onDone(out)
			}
		})
	}
	p.Wait()

	return outcomes
}

func run[T, R any](ctx context.Context, item T, fn func(context.Context, T) (R, error)) (out Outcome[T, R]) {
	out.Item = item
	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}

	defer func() {
		if r := recover(); r != nil {
			var zero R
			out.Value = zero
			out.Err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	out.Value, out.Err = fn(ctx, item)
	return out
}
