// Package worker runs bounded fan-out jobs such as recalculating every
// employee of a cycle.
package worker

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/perfcal/pkg/logger"
	"github.com/okian/perfcal/pkg/metrics"
)

// StatusFailed is the label reported for a task that returned an error.
const StatusFailed = "failed"

// Task processes one item and reports the status label to file it under.
type Task func(ctx context.Context, item string) (status string, err error)

// Report groups items by outcome. Each item appears exactly once.
type Report struct {
	ByStatus map[string][]string
	Failed   map[string]error
	Took     time.Duration
}

// Count returns the number of items filed under status.
func (r Report) Count(status string) int {
	if status == StatusFailed {
		return len(r.Failed)
	}
	return len(r.ByStatus[status])
}

// Pool runs tasks with bounded concurrency.
type Pool struct {
	size   int
	name   string
	logger logger.Logger
}

// NewPool creates a pool with configuration options.
func NewPool(opts ...Option) *Pool {
	p := &Pool{
		size:   runtime.NumCPU(),
		name:   "worker",
		logger: logger.Get(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named(p.name)
	return p
}

// Size returns the concurrency limit.
func (p *Pool) Size() int { return p.size }

// Run applies task to every item. A failing item does not stop the others;
// once ctx is done, items not yet started are reported failed with ctx's error.
func (p *Pool) Run(ctx context.Context, items []string, task Task) Report {
	start := time.Now()
	var (
		mu  sync.Mutex
		rep = Report{ByStatus: make(map[string][]string), Failed: make(map[string]error)}
	)
	record := func(item, status string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			rep.Failed[item] = err
			metrics.RecordWorkerTask(StatusFailed)
			return
		}
		rep.ByStatus[status] = append(rep.ByStatus[status], item)
		metrics.RecordWorkerTask(status)
	}

	// Tasks never return an error to the group, so gCtx is only cancelled
	// through ctx.
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.size)
	for _, item := range items {
		if err := gCtx.Err(); err != nil {
			record(item, "", err)
			continue
		}
		g.Go(func() error {
			metrics.AddWorkerActive(1)
			defer metrics.AddWorkerActive(-1)

			status, err := task(gCtx, item)
			if err != nil {
				p.logger.Warn(gCtx, "task failed", logger.String("item", item), logger.Error(err))
			}
			record(item, status, err)
			return nil
		})
	}
	_ = g.Wait()

	for status := range rep.ByStatus {
		sort.Strings(rep.ByStatus[status])
	}
	rep.Took = time.Since(start)
	p.logger.Debug(ctx, "run finished",
		logger.Int("items", len(items)),
		logger.Int("failed", len(rep.Failed)),
		logger.Duration("took", rep.Took))
	return rep
}
