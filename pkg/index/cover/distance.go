package cover

import "github.com/viant/vec/search"

// Distance names a supported metric.
type Distance string

const (
	Cosine    Distance = "cosine"
	Euclidean Distance = "euclidean"
)

// DistanceFunc computes the distance between two points.
type DistanceFunc func(p1, p2 *Point) float32

// Func resolves the metric implementation, or nil for an unknown name.
func (d Distance) Func() DistanceFunc {
	switch d {
	case Cosine:
		return CosineDistance
	case Euclidean:
		return EuclideanDistance
	}
	return nil
}

// CosineDistance returns 1 - cosine similarity. A zero vector is at distance
// 1 from everything.
func CosineDistance(p1, p2 *Point) float32 {
	m1, m2 := p1.magnitude(), p2.magnitude()
	if m1 == 0 || m2 == 0 {
		return 1
	}
	// viant/vec exports the magnitude-aware variant on arm64 only
	n := min(len(p1.Vector), len(p2.Vector))
	var dot float32
	for i, x := range p1.Vector[:n] {
		dot += x * p2.Vector[i]
	}
	return max(0, 1-dot/(m1*m2))
}

// EuclideanDistance returns the L2 distance between two points.
func EuclideanDistance(p1, p2 *Point) float32 {
	return search.Float32s(p1.Vector).EuclideanDistance(p2.Vector)
}
