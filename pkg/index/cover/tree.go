// Package cover implements a cover tree for exact k-nearest-neighbour search
// under cosine or Euclidean distance.
package cover

import (
	"container/heap"
	"math"
	"slices"
	"sync"
)

// BoundStrategy selects which radius bounds a subtree while pruning.
type BoundStrategy int

const (
	// BoundPerNode uses the exact subtree radius, computed lazily.
	BoundPerNode BoundStrategy = iota
	// BoundLevel uses the geometric radius implied by the node level.
	BoundLevel
)

// DefaultBase is the expansion base used when NewTree gets a base <= 1.
const DefaultBase = 1.3

const (
	maxLevel = 512
	// slack absorbs float32 rounding in the triangle-inequality bounds.
	slack = 1e-5
)

type node struct {
	level    int
	point    *Point
	children []*node
	radius   float32
}

// Tree is a cover tree holding values of type T. Inserts are serialised;
// queries may run concurrently with each other.
type Tree[T any] struct {
	mu       sync.RWMutex
	root     *node
	base     float32
	distance DistanceFunc
	bound    BoundStrategy
	values   []T
	points   []*Point

	version      uint64
	radiiVersion uint64
}

// NewTree constructs a cover tree. Unknown metrics fall back to cosine.
func NewTree[T any](base float32, metric Distance) *Tree[T] {
	if base <= 1 {
		base = DefaultBase
	}
	fn := metric.Func()
	if fn == nil {
		fn = CosineDistance
	}
	return &Tree[T]{base: base, distance: fn}
}

// SetBoundStrategy switches the pruning strategy.
func (t *Tree[T]) SetBoundStrategy(s BoundStrategy) {
	t.mu.Lock()
	t.bound = s
	t.mu.Unlock()
}

// Len returns the number of stored points.
func (t *Tree[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.points)
}

// Value returns the value stored at index.
func (t *Tree[T]) Value(index int) T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var zero T
	if index < 0 || index >= len(t.values) {
		return zero
	}
	return t.values[index]
}

func (t *Tree[T]) cover(level int) float32 {
	return float32(math.Pow(float64(t.base), float64(level)))
}

// Insert adds value with its vector and returns the insertion index.
func (t *Tree[T]) Insert(value T, vector []float32) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := &Point{index: len(t.points), Vector: vector}
	p.magnitude()
	t.points = append(t.points, p)
	t.values = append(t.values, value)
	t.version++

	if t.root == nil {
		t.root = &node{point: p}
		return p.index
	}

	n, dn := t.root, t.distance(p, t.root.point)
	// raise the root until its cover contains p
	for n.level < maxLevel && dn >= t.cover(n.level) {
		n.level++
	}

	for {
		// repeated vectors become leaves of the point they repeat
		if dn <= slack {
			n.children = append(n.children, &node{level: n.level - 1, point: p})
			return p.index
		}
		var next *node
		for _, child := range n.children {
			if d := t.distance(p, child.point); d < t.cover(child.level) {
				next, dn = child, d
				break
			}
		}
		if next == nil {
			n.children = append(n.children, &node{level: n.level - 1, point: p})
			return p.index
		}
		n = next
	}
}

func (t *Tree[T]) computeRadius(n *node) float32 {
	var r float32
	for _, child := range n.children {
		if d := t.distance(n.point, child.point) + t.computeRadius(child); d > r {
			r = d
		}
	}
	n.radius = r
	return r
}

func (t *Tree[T]) boundRadius(n *node) float32 {
	if t.bound == BoundLevel {
		return t.cover(n.level) * t.base / (t.base - 1)
	}
	return n.radius
}

// acquire returns with the read lock held and subtree radii current.
func (t *Tree[T]) acquire() {
	t.mu.RLock()
	if t.bound != BoundPerNode || t.radiiVersion == t.version || t.root == nil {
		return
	}
	t.mu.RUnlock()
	t.mu.Lock()
	if t.radiiVersion != t.version {
		t.computeRadius(t.root)
		t.radiiVersion = t.version
	}
	t.mu.Unlock()
	t.mu.RLock()
}

// KNearestNeighbors runs a depth-first k-NN search. Results are ordered by
// ascending distance, ties by insertion index.
func (t *Tree[T]) KNearestNeighbors(vector []float32, k int) []Neighbor[T] {
	t.acquire()
	defer t.mu.RUnlock()
	if t.root == nil || k <= 0 {
		return nil
	}
	q := NewPoint(vector...)
	h := &candidates{}
	t.search(t.root, q, t.distance(q, t.root.point), k, h)
	return t.results(h)
}

func (t *Tree[T]) offer(h *candidates, c candidate, k int) {
	if h.Len() < k {
		heap.Push(h, c)
	} else if h.better(c) {
		(*h)[0] = c
		heap.Fix(h, 0)
	}
}

func (t *Tree[T]) search(n *node, q *Point, dn float32, k int, h *candidates) {
	t.offer(h, candidate{point: n.point, distance: dn}, k)
	if len(n.children) == 0 {
		return
	}

	type childDist struct {
		child *node
		dist  float32
	}
	cds := make([]childDist, len(n.children))
	for i, child := range n.children {
		cds[i] = childDist{child: child, dist: t.distance(q, child.point)}
	}
	slices.SortFunc(cds, func(a, b childDist) int {
		switch {
		case a.dist < b.dist:
			return -1
		case a.dist > b.dist:
			return 1
		}
		return 0
	})
	for _, cd := range cds {
		if h.Len() == k && cd.dist-t.boundRadius(cd.child) > (*h)[0].distance+slack {
			continue
		}
		t.search(cd.child, q, cd.dist, k, h)
	}
}

type nodeItem struct {
	node       *node
	lb         float32
	centerDist float32
}

type nodeQueue []nodeItem

func (q nodeQueue) Len() int           { return len(q) }
func (q nodeQueue) Less(i, j int) bool { return q[i].lb < q[j].lb }
func (q nodeQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x any)        { *q = append(*q, x.(nodeItem)) }
func (q *nodeQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

// KNearestNeighborsBestFirst performs the same search expanding nodes in
// order of their distance lower bound.
func (t *Tree[T]) KNearestNeighborsBestFirst(vector []float32, k int) []Neighbor[T] {
	t.acquire()
	defer t.mu.RUnlock()
	if t.root == nil || k <= 0 {
		return nil
	}
	q := NewPoint(vector...)
	h := &candidates{}
	pq := &nodeQueue{}
	rootDist := t.distance(q, t.root.point)
	heap.Push(pq, nodeItem{node: t.root, lb: rootDist - t.boundRadius(t.root), centerDist: rootDist})

	for pq.Len() > 0 {
		top := heap.Pop(pq).(nodeItem)
		if h.Len() == k && top.lb > (*h)[0].distance+slack {
			break
		}
		t.offer(h, candidate{point: top.node.point, distance: top.centerDist}, k)
		for _, child := range top.node.children {
			cd := t.distance(q, child.point)
			lb := cd - t.boundRadius(child)
			if h.Len() == k && lb > (*h)[0].distance+slack {
				continue
			}
			heap.Push(pq, nodeItem{node: child, lb: lb, centerDist: cd})
		}
	}
	return t.results(h)
}

func (t *Tree[T]) results(h *candidates) []Neighbor[T] {
	out := make([]Neighbor[T], h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		c := heap.Pop(h).(candidate)
		out[i] = Neighbor[T]{Value: t.values[c.point.index], Index: c.point.index, Distance: c.distance}
	}
	return out
}
