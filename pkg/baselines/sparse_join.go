package baselines

import (
	"context"

	"github.com/soundprediction/uniblocker/pkg/types"
	"github.com/soundprediction/uniblocker/pkg/utils"
)

type posting struct {
	doc    int32
	weight float32
}

// sparseIndex is an inverted index over the left TF-IDF vectors.
type sparseIndex struct {
	postings [][]posting
	queries  []sparseVector
}

func (s *sparseIndex) build(_ context.Context, left, right [][]string) error {
	v := fitVectorizer(left, right)
	s.postings = make([][]posting, len(v.terms))
	for doc, vec := range v.transformAll(left) {
		for _, t := range vec {
			s.postings[t.index] = append(s.postings[t.index], posting{doc: int32(doc), weight: t.weight})
		}
	}
	s.queries = v.transformAll(right)
	return nil
}

func (s *sparseIndex) query(right, k int) []int {
	scores := make(map[int32]float32)
	for _, t := range s.queries[right] {
		for _, p := range s.postings[t.index] {
			scores[p.doc] += t.weight * p.weight
		}
	}
	items := make([]utils.ScoredItem[int], 0, len(scores))
	for doc, score := range scores {
		items = append(items, utils.ScoredItem[int]{Item: int(doc), Score: float64(score)})
	}
	return rankItems(items, k)
}

// rankItems returns the k best items, ties broken by the smaller index.
func rankItems(items []utils.ScoredItem[int], k int) []int {
	sortByIndex(items)
	top := utils.TopKByScore(items, k)
	out := make([]int, len(top))
	for i, it := range top {
		out[i] = it.Item
	}
	return out
}

// SparseJoin retrieves candidates by exact cosine similarity of TF-IDF
// vectors.
func SparseJoin(ctx context.Context, p Params) (types.Metrics, error) {
	return join(ctx, "sparse_join", p, &sparseIndex{})
}
