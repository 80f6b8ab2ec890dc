package baselines

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/soundprediction/uniblocker/pkg/cache"
	"github.com/soundprediction/uniblocker/pkg/tokenize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDataset(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "toy-products")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	files := map[string]string{
		"table_a.csv": "id,title,brand\n" +
			"0,ipad air 64gb,apple\n" +
			"1,galaxy tab s7,samsung\n" +
			"2,kindle paperwhite,amazon\n" +
			"3,wh-1000xm4 headphones,sony\n",
		"table_b.csv": "id,title,brand\n" +
			"10,iPad Air 64GB,Apple\n" +
			"11,Galaxy Tab S7,Samsung\n" +
			"12,Kindle Paperwhite,Amazon\n" +
			"13,WH-1000XM4 Headphones,Sony\n",
		"matches.csv": "id1,id2\n0,10\n1,11\n2,12\n3,13\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestJoinsFindExactDuplicates(t *testing.T) {
	dir := writeDataset(t)

	for _, name := range []string{"sparse_join", "ann_join", "nmslib_join", "lsh_join"} {
		t.Run(name, func(t *testing.T) {
			fn, err := Lookup(name)
			require.NoError(t, err)

			m, err := fn(context.Background(), Params{DataDir: dir, NNeighbors: 1, Concurrency: 2})
			require.NoError(t, err)
			assert.InDelta(t, 1.0, m["recall"], 1e-9)
			assert.InDelta(t, 1.0, m["precision"], 1e-9)
			assert.Equal(t, 4.0, m["n_candidates"])
			assert.Equal(t, 4.0, m["n_matches"])
			assert.InDelta(t, 4.0/16.0, m["cssr"], 1e-9)
			assert.InDelta(t, 0.75, m["reduction_ratio"], 1e-9)
			assert.Contains(t, m, "build_seconds")
			assert.Contains(t, m, "query_seconds")
		})
	}
}

func TestSparseJoinNeighbors(t *testing.T) {
	dir := writeDataset(t)
	m, err := SparseJoin(context.Background(), Params{DataDir: dir, NNeighbors: 2, Tokenizer: tokenize.WhitespaceTokenizer{}})
	require.NoError(t, err)
	assert.LessOrEqual(t, m["n_candidates"], 8.0)
	assert.LessOrEqual(t, m["precision"], 1.0)
}

func TestJoinWithTokenCache(t *testing.T) {
	dir := writeDataset(t)
	c, err := cache.Open("", nil)
	require.NoError(t, err)
	defer c.Close()

	p := Params{DataDir: dir, NNeighbors: 1, Tokenizer: tokenize.NewQGram(3), Cache: c}
	first, err := SparseJoin(context.Background(), p)
	require.NoError(t, err)

	key := cache.Key{Tokenizer: "qgram:3", DataDir: dir, Table: "table_b.csv", Row: 0}
	tokens, ok, err := c.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "##i", tokens[0])

	second, err := SparseJoin(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, first["recall"], second["recall"])

	p.Tokenizer = tokenize.NewQGram(5)
	_, err = SparseJoin(context.Background(), p)
	require.NoError(t, err)
	key.Tokenizer = "qgram:5"
	tokens, ok, err = c.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "####i", tokens[0], "q-gram sizes are cached apart")

	other := writeDataset(t)
	_, ok, err = c.Get(cache.Key{Tokenizer: "qgram:3", DataDir: other, Table: "table_b.csv", Row: 0})
	require.NoError(t, err)
	assert.False(t, ok, "another copy of the dataset has its own entries")
}

func TestSelfJoin(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "table_a.csv"),
		[]byte("id,name\na,john smith\nb,John Smith\nc,mary jones\nd,peter parker\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "matches.csv"), []byte("id1,id2\nb,a\n"), 0o644))

	m, err := SparseJoin(context.Background(), Params{DataDir: dir, NNeighbors: 1})
	require.NoError(t, err)
	assert.Equal(t, 1.0, m["n_matches"])
	assert.InDelta(t, 1.0, m["recall"], 1e-9)
	assert.Equal(t, 4.0, m["n_left"])
	assert.LessOrEqual(t, m["n_candidates"], 4.0)
}

func TestJoinErrors(t *testing.T) {
	_, err := Lookup("dense_join")
	assert.ErrorIs(t, err, ErrUnknownBaseline)

	_, err = SparseJoin(context.Background(), Params{DataDir: t.TempDir()})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ANNJoin(ctx, Params{DataDir: writeDataset(t)})
	assert.ErrorIs(t, err, context.Canceled)

	assert.Contains(t, Names(), "nmslib_join")
}

func TestEvaluate(t *testing.T) {
	cands := roaring64.New()
	cands.Add(PairKey(0, 0))
	cands.Add(PairKey(0, 1))
	cands.Add(PairKey(2, 1))
	cands.Add(PairKey(3, 3))
	truth := roaring64.New()
	truth.Add(PairKey(0, 0))
	truth.Add(PairKey(2, 1))
	truth.Add(PairKey(1, 2))

	m := Evaluate(cands, truth, 4, 4, 5, false)
	assert.InDelta(t, 0.5, m["recall"], 1e-9)
	assert.InDelta(t, 0.5, m["precision"], 1e-9)
	assert.InDelta(t, 0.5, m["f1"], 1e-9)
	assert.InDelta(t, 4.0/20.0, m["cssr"], 1e-9)
	assert.InDelta(t, 0.8, m["reduction_ratio"], 1e-9)

	empty := Evaluate(roaring64.New(), roaring64.New(), 0, 0, 0, false)
	assert.Equal(t, 0.0, empty["recall"])
	assert.Equal(t, 0.0, empty["f1"])

	l, r := SplitPairKey(PairKey(7, 9))
	assert.Equal(t, 7, l)
	assert.Equal(t, 9, r)
}

func TestLoadDataset(t *testing.T) {
	ds, err := LoadDataset(writeDataset(t), DefaultLayout())
	require.NoError(t, err)
	assert.Equal(t, "toy-products", ds.Name)
	assert.False(t, ds.Dedupe)
	assert.Len(t, ds.Left, 4)
	assert.Equal(t, "10", ds.Right[0].ID)
	assert.Equal(t, "iPad Air 64GB Apple", ds.Right[0].Text())

	layout := DefaultLayout()
	layout.TableFiles = nil
	_, err = LoadDataset(t.TempDir(), layout)
	assert.Error(t, err)
}
