package utils

import "container/heap"

// ScoredItem pairs a candidate with its similarity to a query.
type ScoredItem[T any] struct {
	Item  T
	Score float64
}

type ranked[T any] struct {
	ScoredItem[T]
	pos int
}

// worstFirst keeps the weakest retained candidate at the root: lowest score,
// and among equal scores the one seen last.
type worstFirst[T any] []ranked[T]

func (h worstFirst[T]) Len() int { return len(h) }
func (h worstFirst[T]) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].pos > h[j].pos
}
func (h worstFirst[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *worstFirst[T]) Push(x any)   { *h = append(*h, x.(ranked[T])) }
func (h *worstFirst[T]) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// TopKByScore returns the k highest scoring items, best first. Items with
// equal scores keep their input order, so callers control tie-breaking by
// ordering items before the call.
func TopKByScore[T any](items []ScoredItem[T], k int) []ScoredItem[T] {
	k = min(k, len(items))
	if k <= 0 {
		return nil
	}

	h := make(worstFirst[T], 0, k)
	for pos, it := range items {
		r := ranked[T]{ScoredItem: it, pos: pos}
		switch {
		case h.Len() < k:
			heap.Push(&h, r)
		case it.Score > h[0].Score:
			h[0] = r
			heap.Fix(&h, 0)
		}
	}

	out := make([]ScoredItem[T], h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(ranked[T]).ScoredItem
	}
	return out
}
