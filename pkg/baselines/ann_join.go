package baselines

import (
	"context"

	"github.com/cespare/xxhash/v2"
	"github.com/soundprediction/uniblocker/pkg/index/cover"
	"github.com/soundprediction/uniblocker/pkg/types"
	"github.com/soundprediction/uniblocker/pkg/utils"
)

// DefaultDenseDim is the dimension TF-IDF vectors are hashed into.
const DefaultDenseDim = 512

// annIndex searches hashed dense TF-IDF vectors with a cover tree. Vectors
// are unit length, so Euclidean order equals cosine order.
type annIndex struct {
	dim     int
	tree    *cover.Tree[int]
	queries [][]float32
}

func (a *annIndex) densify(v *vectorizer, vec sparseVector) []float32 {
	out := make([]float32, a.dim)
	for _, t := range vec {
		h := xxhash.Sum64String(v.terms[t.index])
		w := t.weight
		if h>>63 == 1 {
			w = -w
		}
		out[h%uint64(a.dim)] += w
	}
	utils.NormalizeInPlace(out)
	return out
}

func (a *annIndex) build(ctx context.Context, left, right [][]string) error {
	if a.dim <= 0 {
		a.dim = DefaultDenseDim
	}
	v := fitVectorizer(left, right)
	a.tree = cover.NewTree[int](cover.DefaultBase, cover.Euclidean)
	for i, doc := range left {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		a.tree.Insert(i, a.densify(v, v.transform(doc)))
	}
	a.queries = make([][]float32, len(right))
	for i, doc := range right {
		a.queries[i] = a.densify(v, v.transform(doc))
	}
	return nil
}

func (a *annIndex) query(right, k int) []int {
	neighbors := a.tree.KNearestNeighborsBestFirst(a.queries[right], k)
	out := make([]int, len(neighbors))
	for i, n := range neighbors {
		out[i] = n.Value
	}
	return out
}

// ANNJoin retrieves candidates by nearest-neighbour search over hashed
// TF-IDF vectors.
func ANNJoin(ctx context.Context, p Params) (types.Metrics, error) {
	return join(ctx, "ann_join", p, &annIndex{dim: DefaultDenseDim})
}
