package baselines

import (
	"cmp"
	"context"
	"slices"

	"github.com/soundprediction/uniblocker/pkg/types"
	"github.com/soundprediction/uniblocker/pkg/utils"
)

// lshIndex buckets left token sets by MinHash bands and ranks bucket mates
// by Jaccard similarity.
type lshIndex struct {
	hasher *utils.MinHasher
	index  *utils.LSHIndex
	left   [][]string
	right  [][]string
}

func (l *lshIndex) build(ctx context.Context, left, right [][]string) error {
	if l.hasher == nil {
		l.hasher = utils.NewMinHasher(utils.DefaultMinHashPermutations, utils.DefaultMinHashBandSize)
	}
	l.index = utils.NewLSHIndex(l.hasher)
	for i, toks := range left {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		l.index.Add(i, toks)
	}
	l.left, l.right = left, right
	return nil
}

func (l *lshIndex) query(right, k int) []int {
	toks := l.right[right]
	cands := l.index.Candidates(toks)
	items := make([]utils.ScoredItem[int], len(cands))
	for i, c := range cands {
		items[i] = utils.ScoredItem[int]{Item: c, Score: utils.JaccardSimilarity(toks, l.left[c])}
	}
	return rankItems(items, k)
}

func sortByIndex(items []utils.ScoredItem[int]) {
	slices.SortFunc(items, func(a, b utils.ScoredItem[int]) int { return cmp.Compare(a.Item, b.Item) })
}

// LSHJoin retrieves candidates sharing a MinHash band, best Jaccard first.
func LSHJoin(ctx context.Context, p Params) (types.Metrics, error) {
	return join(ctx, "lsh_join", p, &lshIndex{})
}
