package cover

import "github.com/viant/vec/search"

// Point is a vector stored in or queried against the tree.
type Point struct {
	index     int
	Magnitude float32
	Vector    []float32
}

// NewPoint constructs a query point for vector.
func NewPoint(vector ...float32) *Point {
	return &Point{index: -1, Vector: vector}
}

// Index returns the insertion index of a stored point, -1 for query points.
func (p *Point) Index() int { return p.index }

func (p *Point) magnitude() float32 {
	if p.Magnitude == 0 && len(p.Vector) > 0 {
		p.Magnitude = search.Float32s(p.Vector).Magnitude()
	}
	return p.Magnitude
}

// Neighbor is one k-NN result.
type Neighbor[T any] struct {
	Value    T
	Index    int
	Distance float32
}

type candidate struct {
	point    *Point
	distance float32
}

// candidates is a max-heap on distance, ties broken towards larger index so
// that the smaller index survives.
type candidates []candidate

func (h candidates) Len() int { return len(h) }
func (h candidates) Less(i, j int) bool {
	if h[i].distance != h[j].distance {
		return h[i].distance > h[j].distance
	}
	return h[i].point.index > h[j].point.index
}
func (h candidates) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *candidates) Push(x any)   { *h = append(*h, x.(candidate)) }
func (h *candidates) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// better reports whether c should replace the current worst entry.
func (h candidates) better(c candidate) bool {
	w := h[0]
	if c.distance != w.distance {
		return c.distance < w.distance
	}
	return c.point.index < w.point.index
}
