package baselines

import (
	"context"
	"path/filepath"

	"github.com/soundprediction/uniblocker/pkg/cache"
	"github.com/soundprediction/uniblocker/pkg/tokenize"
	"github.com/soundprediction/uniblocker/pkg/types"
	"github.com/soundprediction/uniblocker/pkg/utils"
	"golang.org/x/sync/errgroup"
)

// tokenizeRecords tokenises the text of every record, going through the
// token cache when one is configured.
func tokenizeRecords(ctx context.Context, p Params, tableName string, records []types.Record) ([][]string, error) {
	tok := p.Tokenizer
	base := cache.Key{Tokenizer: tokenize.Fingerprint(tok), Table: tableName}
	if tok == nil {
		tok = tokenize.Default()
	}
	if err := tokenize.Prepare(tok); err != nil {
		return nil, err
	}
	if abs, err := filepath.Abs(p.DataDir); err == nil {
		base.DataDir = abs
	} else {
		base.DataDir = filepath.Clean(p.DataDir)
	}

	out := make([][]string, len(records))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency())
	for _, chunk := range utils.Batch(indexRange(len(records)), 256) {
		g.Go(func() error {
			if p.Cache == nil {
				for _, i := range chunk {
					if err := ctx.Err(); err != nil {
						return err
					}
					out[i] = tok.Tokenize(records[i].Text())
				}
				return nil
			}
			return tokenizeCached(ctx, p.Cache, tok, base, records, chunk, out)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// tokenizeCached fills out for rows, tokenising cache misses and storing
// them in a single write batch.
func tokenizeCached(ctx context.Context, c *cache.TokenCache, tok tokenize.Tokenizer, base cache.Key, records []types.Record, rows []int, out [][]string) error {
	var (
		missKeys   []cache.Key
		missTokens [][]string
	)
	for _, i := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := base
		key.Row = i
		tokens, ok, err := c.Get(key)
		if err != nil {
			return err
		}
		if !ok {
			tokens = tok.Tokenize(records[i].Text())
			missKeys = append(missKeys, key)
			missTokens = append(missTokens, tokens)
		}
		out[i] = tokens
	}
	if len(missKeys) == 0 {
		return nil
	}
	return c.PutAll(missKeys, missTokens)
}

func indexRange(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
