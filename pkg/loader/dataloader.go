package loader

import (
	"context"
	"iter"
	"math/rand/v2"
	"sync"

	"github.com/soundprediction/uniblocker/pkg/utils"
)

// DefaultBatchSize is used when Options.BatchSize is not positive.
const DefaultBatchSize = 32

// Loader yields batches of type B.
type Loader[B any] interface {
	// Batches iterates one epoch.
	Batches(ctx context.Context) iter.Seq2[B, error]
	// Len returns the number of batches per epoch, or -1 when unknown.
	Len() int
}

// CollateFunc turns a group of items into one batch.
type CollateFunc[T, B any] func(ctx context.Context, items []T) (B, error)

// Options configures the batching loaders.
type Options struct {
	BatchSize  int
	Shuffle    bool
	Seed       uint64
	DropLast   bool
	NumWorkers int
}

func (o Options) batchSize() int {
	if o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

// SliceLoader batches an in-memory slice.
type SliceLoader[T, B any] struct {
	items   []T
	collate CollateFunc[T, B]
	opts    Options

	mu    sync.Mutex
	epoch uint64
}

// NewSliceLoader creates a loader over items.
func NewSliceLoader[T, B any](items []T, collate CollateFunc[T, B], opts Options) *SliceLoader[T, B] {
	return &SliceLoader[T, B]{items: items, collate: collate, opts: opts}
}

// Len implements Loader.
func (l *SliceLoader[T, B]) Len() int {
	size := l.opts.batchSize()
	if l.opts.DropLast {
		return len(l.items) / size
	}
	return (len(l.items) + size - 1) / size
}

func (l *SliceLoader[T, B]) order() []int {
	idx := make([]int, len(l.items))
	for i := range idx {
		idx[i] = i
	}
	if !l.opts.Shuffle {
		return idx
	}

	l.mu.Lock()
	epoch := l.epoch
	l.epoch++
	l.mu.Unlock()

	rng := rand.New(rand.NewPCG(l.opts.Seed, epoch))
	rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	return idx
}

func (l *SliceLoader[T, B]) gather(ctx context.Context, idx []int) (B, error) {
	items := make([]T, len(idx))
	for i, j := range idx {
		items[i] = l.items[j]
	}
	return l.collate(ctx, items)
}

// Batches implements Loader. With NumWorkers > 0, batches are collated on a
// worker pool a window at a time and still yielded in order.
func (l *SliceLoader[T, B]) Batches(ctx context.Context) iter.Seq2[B, error] {
	return func(yield func(B, error) bool) {
		chunks := utils.Batch(l.order(), l.opts.batchSize())
		if l.opts.DropLast && len(chunks) > 0 && len(chunks[len(chunks)-1]) < l.opts.batchSize() {
			chunks = chunks[:len(chunks)-1]
		}

		if l.opts.NumWorkers <= 0 {
			for _, chunk := range chunks {
				if err := ctx.Err(); err != nil {
					var zero B
					yield(zero, err)
					return
				}
				b, err := l.gather(ctx, chunk)
				if !yield(b, err) || err != nil {
					return
				}
			}
			return
		}

		pool := utils.NewWorkerPool(l.opts.NumWorkers, l.gather)
		window := 2 * l.opts.NumWorkers
		for start := 0; start < len(chunks); start += window {
			end := min(start+window, len(chunks))
			batches, errs := pool.ProcessItems(ctx, chunks[start:end])
			for i := range batches {
				err := errs[i]
				if err == nil {
					err = ctx.Err()
				}
				if !yield(batches[i], err) || err != nil {
					return
				}
			}
		}
	}
}

// IterableDataset is a dataset that can only be consumed as a stream.
type IterableDataset[T any] interface {
	Iter(ctx context.Context) (iter.Seq[T], error)
}

// IterableLoader batches an IterableDataset.
type IterableLoader[T, B any] struct {
	dataset IterableDataset[T]
	collate CollateFunc[T, B]
	opts    Options
}

// NewIterableLoader creates a loader over a streaming dataset. Shuffle is
// ignored.
func NewIterableLoader[T, B any](dataset IterableDataset[T], collate CollateFunc[T, B], opts Options) *IterableLoader[T, B] {
	return &IterableLoader[T, B]{dataset: dataset, collate: collate, opts: opts}
}

// Len implements Loader; the length of a stream is unknown.
func (l *IterableLoader[T, B]) Len() int { return -1 }

// Batches implements Loader. With NumWorkers > 1 every worker iterates the
// dataset with its own WorkerInfo in context and batches arrive in completion
// order.
func (l *IterableLoader[T, B]) Batches(ctx context.Context) iter.Seq2[B, error] {
	if l.opts.NumWorkers <= 1 {
		return func(yield func(B, error) bool) {
			l.run(ctx, yield)
		}
	}

	return func(yield func(B, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		type result struct {
			batch B
			err   error
		}
		out := make(chan result)
		var wg sync.WaitGroup
		for id := 0; id < l.opts.NumWorkers; id++ {
			wg.Add(1)
			wctx := WithWorkerInfo(ctx, WorkerInfo{ID: id, NumWorkers: l.opts.NumWorkers})
			go func() {
				defer wg.Done()
				defer utils.RecoverWithCallback(func(err error) {
					select {
					case out <- result{err: err}:
					case <-ctx.Done():
					}
				})
				l.run(wctx, func(b B, err error) bool {
					select {
					case out <- result{batch: b, err: err}:
						return err == nil
					case <-ctx.Done():
						return false
					}
				})
			}()
		}
		go func() {
			wg.Wait()
			close(out)
		}()

		for r := range out {
			if !yield(r.batch, r.err) || r.err != nil {
				cancel()
				for range out {
				}
				return
			}
		}
	}
}

func (l *IterableLoader[T, B]) run(ctx context.Context, yield func(B, error) bool) {
	var zero B
	seq, err := l.dataset.Iter(ctx)
	if err != nil {
		yield(zero, err)
		return
	}

	size := l.opts.batchSize()
	buf := make([]T, 0, size)
	flush := func() bool {
		b, err := l.collate(ctx, buf)
		buf = make([]T, 0, size)
		return yield(b, err) && err == nil
	}

	for item := range seq {
		if err := ctx.Err(); err != nil {
			yield(zero, err)
			return
		}
		buf = append(buf, item)
		if len(buf) == size && !flush() {
			return
		}
	}
	if len(buf) > 0 && !l.opts.DropLast {
		flush()
	}
}

// Identity is a CollateFunc that returns the items unchanged.
func Identity[T any](_ context.Context, items []T) ([]T, error) {
	return items, nil
}
