package baselines

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/soundprediction/uniblocker/pkg/cache"
	"github.com/soundprediction/uniblocker/pkg/tokenize"
	"github.com/soundprediction/uniblocker/pkg/types"
	"github.com/soundprediction/uniblocker/pkg/utils"
	"golang.org/x/sync/errgroup"
)

// DefaultNNeighbors is the candidate count per right record.
const DefaultNNeighbors = 100

// ErrUnknownBaseline is returned by Lookup for unregistered names.
var ErrUnknownBaseline = errors.New("unknown baseline")

// Params are the inputs of one baseline run.
type Params struct {
	DataDir    string
	Tokenizer  tokenize.Tokenizer
	NNeighbors int
	Layout     *Layout
	Cache      *cache.TokenCache
	// Concurrency bounds parallel tokenisation and queries; 0 reads
	// SEMAPHORE_LIMIT.
	Concurrency int
	Logger      *slog.Logger
}

func (p Params) layout() Layout {
	if p.Layout == nil {
		return DefaultLayout()
	}
	return *p.Layout
}

func (p Params) k() int {
	if p.NNeighbors <= 0 {
		return DefaultNNeighbors
	}
	return p.NNeighbors
}

func (p Params) concurrency() int {
	if p.Concurrency > 0 {
		return p.Concurrency
	}
	return utils.GetSemaphoreLimit()
}

func (p Params) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// JoinFunc runs one baseline and returns its metrics.
type JoinFunc func(ctx context.Context, p Params) (types.Metrics, error)

// searchIndex retrieves left rows for right rows.
type searchIndex interface {
	build(ctx context.Context, left, right [][]string) error
	// query returns left row indices, most similar first.
	query(right, k int) []int
}

// join is the shared driver of every baseline.
func join(ctx context.Context, name string, p Params, idx searchIndex) (types.Metrics, error) {
	logger := p.logger().With("baseline", name, "data_dir", p.DataDir, "tokenizer", tokenize.NameOf(p.Tokenizer))

	ds, err := LoadDataset(p.DataDir, p.layout())
	if err != nil {
		return nil, err
	}
	left, err := tokenizeRecords(ctx, p, ds.Tables[0], ds.Left)
	if err != nil {
		return nil, fmt.Errorf("failed to tokenize left table: %w", err)
	}
	right := left
	if !ds.Dedupe {
		if right, err = tokenizeRecords(ctx, p, ds.Tables[1], ds.Right); err != nil {
			return nil, fmt.Errorf("failed to tokenize right table: %w", err)
		}
	}

	start := time.Now()
	if err := idx.build(ctx, left, right); err != nil {
		return nil, fmt.Errorf("failed to build %s index: %w", name, err)
	}
	buildTime := time.Since(start)

	start = time.Now()
	candidates, err := queryAll(ctx, p, ds, idx)
	if err != nil {
		return nil, err
	}
	queryTime := time.Since(start)

	truth, nMatches := truthBitmap(ds)
	metrics := Evaluate(candidates, truth, nMatches, len(ds.Left), len(ds.Right), ds.Dedupe)
	metrics["build_seconds"] = buildTime.Seconds()
	metrics["query_seconds"] = queryTime.Seconds()

	logger.Info("Baseline finished",
		"recall", metrics["recall"],
		"n_candidates", metrics["n_candidates"],
		"elapsed", buildTime+queryTime)
	return metrics, nil
}

func queryAll(ctx context.Context, p Params, ds *Dataset, idx searchIndex) (*roaring64.Bitmap, error) {
	k := p.k()
	if ds.Dedupe {
		k++
	}
	results := make([][]int, len(ds.Right))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency())
	for _, chunk := range utils.Batch(indexRange(len(ds.Right)), 64) {
		g.Go(func() (err error) {
			defer utils.RecoverAsError(&err)
			for _, r := range chunk {
				if err := gctx.Err(); err != nil {
					return err
				}
				results[r] = idx.query(r, k)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates := roaring64.New()
	for r, lefts := range results {
		n := 0
		for _, l := range lefts {
			if ds.Dedupe && l == r {
				continue
			}
			if n == p.k() {
				break
			}
			n++
			if ds.Dedupe {
				candidates.Add(PairKey(min(l, r), max(l, r)))
			} else {
				candidates.Add(PairKey(l, r))
			}
		}
	}
	return candidates, nil
}

func truthBitmap(ds *Dataset) (*roaring64.Bitmap, int) {
	leftIdx := indexByID(ds.Left)
	rightIdx := leftIdx
	if !ds.Dedupe {
		rightIdx = indexByID(ds.Right)
	}

	truth := roaring64.New()
	for _, pair := range ds.Matches.Pairs() {
		l, okL := leftIdx[pair.Left]
		r, okR := rightIdx[pair.Right]
		if !okL || !okR {
			continue
		}
		if ds.Dedupe {
			l, r = min(l, r), max(l, r)
		}
		truth.Add(PairKey(l, r))
	}
	if ds.Dedupe {
		return truth, int(truth.GetCardinality())
	}
	return truth, ds.Matches.Len()
}
