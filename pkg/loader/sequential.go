package loader

import (
	"context"
	"iter"
)

// SequentialLoader chains several loaders. Every batch of loader i is
// yielded before the first batch of loader i+1; nothing is interleaved or
// buffered.
type SequentialLoader[B any] struct {
	loaders []Loader[B]
}

// NewSequentialLoader chains loaders in the given order.
func NewSequentialLoader[B any](loaders ...Loader[B]) *SequentialLoader[B] {
	return &SequentialLoader[B]{loaders: loaders}
}

// Loaders returns the wrapped loaders.
func (s *SequentialLoader[B]) Loaders() []Loader[B] { return s.loaders }

// Len returns the total number of batches, or -1 if any source is unknown.
func (s *SequentialLoader[B]) Len() int {
	total := 0
	for _, l := range s.loaders {
		n := l.Len()
		if n < 0 {
			return -1
		}
		total += n
	}
	return total
}

// Batches implements Loader. An error from a source is yielded and ends the
// epoch.
func (s *SequentialLoader[B]) Batches(ctx context.Context) iter.Seq2[B, error] {
	return func(yield func(B, error) bool) {
		for _, l := range s.loaders {
			if err := ctx.Err(); err != nil {
				var zero B
				yield(zero, err)
				return
			}
			for b, err := range l.Batches(ctx) {
				if !yield(b, err) || err != nil {
					return
				}
			}
		}
	}
}
