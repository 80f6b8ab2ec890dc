package utils

import (
	"context"
	"sync"
	"sync/atomic"
)

// ConcurrentExecutor runs independent jobs with at most a fixed number in
// flight.
type ConcurrentExecutor struct {
	slots chan struct{}
}

// NewConcurrentExecutor returns an executor admitting limit jobs at once.
// A non-positive limit falls back to GetSemaphoreLimit.
func NewConcurrentExecutor(limit int) *ConcurrentExecutor {
	if limit <= 0 {
		limit = GetSemaphoreLimit()
	}
	return &ConcurrentExecutor{slots: make(chan struct{}, limit)}
}

// Execute starts every job and waits for all of them. errs[i] belongs to
// jobs[i]; a job that panics reports a *PanicError and a job still waiting
// for a slot when ctx ends reports ctx.Err().
func (e *ConcurrentExecutor) Execute(ctx context.Context, jobs ...func() error) []error {
	if len(jobs) == 0 {
		return nil
	}

	errs := make([]error, len(jobs))
	var wg sync.WaitGroup
	wg.Add(len(jobs))
	for i, job := range jobs {
		go func() {
			defer wg.Done()
			select {
			case e.slots <- struct{}{}:
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			defer func() { <-e.slots }()
			defer RecoverWithCallback(func(err error) { errs[i] = err })
			errs[i] = job()
		}()
	}
	wg.Wait()
	return errs
}

// Worker handles a single item for a WorkerPool.
type Worker[T any, R any] func(ctx context.Context, item T) (R, error)

// WorkerPool fans a slice of items out over a fixed number of goroutines
// and collects results by input position.
type WorkerPool[T any, R any] struct {
	size   int
	worker Worker[T, R]
}

// NewWorkerPool returns a pool of size goroutines calling worker. A
// non-positive size falls back to GetSemaphoreLimit.
func NewWorkerPool[T any, R any](size int, worker Worker[T, R]) *WorkerPool[T, R] {
	if size <= 0 {
		size = GetSemaphoreLimit()
	}
	return &WorkerPool[T, R]{size: size, worker: worker}
}

// ProcessItems blocks until every item has been handled or ctx is done.
// results[i] and errs[i] belong to items[i]. Items never started because
// ctx ended carry ctx.Err(); a panicking worker yields a *PanicError for
// its item and the goroutine moves on to the next one.
func (p *WorkerPool[T, R]) ProcessItems(ctx context.Context, items []T) ([]R, []error) {
	if len(items) == 0 {
		return nil, nil
	}

	results := make([]R, len(items))
	errs := make([]error, len(items))
	started := make([]bool, len(items))
	var next atomic.Int64

	var wg sync.WaitGroup
	for range min(p.size, len(items)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				i := int(next.Add(1) - 1)
				if i >= len(items) {
					return
				}
				started[i] = true
				results[i], errs[i] = p.call(ctx, items[i])
			}
		}()
	}
	wg.Wait()

	for i := range items {
		if !started[i] {
			errs[i] = ctx.Err()
		}
	}
	return results, errs
}

func (p *WorkerPool[T, R]) call(ctx context.Context, item T) (r R, err error) {
	defer RecoverAsError(&err)
	return p.worker(ctx, item)
}

// Batch splits items into consecutive chunks of at most size elements,
// sharing the backing array. A non-positive size means 10.
func Batch[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 10
	}
	var out [][]T
	for len(items) > 0 {
		n := min(size, len(items))
		out = append(out, items[:n:n])
		items = items[n:]
	}
	return out
}

// FirstError returns the first non-nil error in errs.
func FirstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
