// Package loader batches datasets for training and evaluation.
//
// A Loader yields batches lazily through an iter.Seq2 of (batch, error);
// iteration stops after the first error. Each call to Batches starts a new
// epoch.
package loader

import "context"

// WorkerInfo describes the loader worker a dataset is being iterated by.
type WorkerInfo struct {
	ID         int
	NumWorkers int
}

type workerInfoKey struct{}

// WithWorkerInfo returns a context that carries info.
func WithWorkerInfo(ctx context.Context, info WorkerInfo) context.Context {
	return context.WithValue(ctx, workerInfoKey{}, info)
}

// WorkerInfoFromContext returns the worker info stored in ctx. The second
// result is false when the dataset is iterated in the calling goroutine.
func WorkerInfoFromContext(ctx context.Context) (WorkerInfo, bool) {
	info, ok := ctx.Value(workerInfoKey{}).(WorkerInfo)
	return info, ok
}
