package sweep

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soundprediction/uniblocker/pkg/alert"
	"github.com/soundprediction/uniblocker/pkg/baselines"
	"github.com/soundprediction/uniblocker/pkg/checkpoint"
	"github.com/soundprediction/uniblocker/pkg/tokenize"
	"github.com/soundprediction/uniblocker/pkg/tracker"
	"github.com/soundprediction/uniblocker/pkg/types"
	"github.com/soundprediction/uniblocker/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTracker(t *testing.T) *tracker.Tracker {
	t.Helper()
	tr, err := tracker.Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr
}

// countingJoin returns metrics derived from the parameters so each trial
// produces a distinct mapping.
type countingJoin struct {
	calls atomic.Int64
	mu    sync.Mutex
	seen  []baselines.Params
}

func (c *countingJoin) join(_ context.Context, p baselines.Params) (types.Metrics, error) {
	c.calls.Add(1)
	c.mu.Lock()
	c.seen = append(c.seen, p)
	c.mu.Unlock()
	return types.Metrics{
		"recall":      float64(len(tokenize.NameOf(p.Tokenizer))) / 10,
		"n_neighbors": float64(p.NNeighbors),
	}, nil
}

func testBaseline(join baselines.JoinFunc) Baseline {
	return Baseline{
		Name:       "fake_join",
		Join:       join,
		Tokenizers: []string{tokenize.Regex, tokenize.Whitespace},
		ResultsDir: "results",
	}
}

func TestGridExpand(t *testing.T) {
	g := Grid{
		DataDirs:   []string{"a", "b"},
		Tokenizers: []string{"regex", "qgram"},
		NNeighbors: []int{10, 100},
	}
	trials := g.Expand()
	require.Len(t, trials, 8)
	assert.Equal(t, 8, g.Size())
	assert.Equal(t, TrialConfig{DataDir: "a", Tokenizer: "regex", NNeighbors: 10}, trials[0])
	assert.Equal(t, TrialConfig{DataDir: "a", Tokenizer: "regex", NNeighbors: 100}, trials[1])
	assert.Equal(t, TrialConfig{DataDir: "a", Tokenizer: "qgram", NNeighbors: 10}, trials[2])
	assert.Equal(t, TrialConfig{DataDir: "b", Tokenizer: "qgram", NNeighbors: 100}, trials[7])

	assert.Empty(t, Grid{DataDirs: []string{"a"}}.Expand())
}

func TestTrialConfigID(t *testing.T) {
	cfg := TrialConfig{DataDir: "data/blocking/abt-buy/", Tokenizer: "regex", NNeighbors: 100}
	assert.Equal(t, "abt-buy", cfg.Dataset())
	assert.Equal(t, "abt-buy__regex__k100", cfg.ID())

	for _, dir := range []string{"data/dblp acm", "data/café", "data/dblp-acm"} {
		id := TrialConfig{DataDir: dir, Tokenizer: "regex", NNeighbors: 10}.ID()
		assert.NoError(t, utils.ValidateID(id), id)
	}
	spaced := TrialConfig{DataDir: "data/dblp acm", Tokenizer: "regex", NNeighbors: 10}.ID()
	dashed := TrialConfig{DataDir: "data/dblp-acm", Tokenizer: "regex", NNeighbors: 10}.ID()
	assert.NotEqual(t, spaced, dashed)
	assert.Regexp(t, `^dblp-acm-[0-9a-f]{8}__regex__k10$`, spaced)
}

func TestDefaultDataDirs(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"abt-buy", "songs", "citeseer-dblp", "amazon-google"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, name), 0755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte("x"), 0644))

	dirs, err := DefaultDataDirs(root, DefaultExclude)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "abt-buy"), filepath.Join(root, "amazon-google")}, dirs)

	_, err = DefaultDataDirs(filepath.Join(root, "missing"), nil)
	assert.Error(t, err)
}

func TestBaselineFor(t *testing.T) {
	sparse, err := BaselineFor("sparse_join")
	require.NoError(t, err)
	assert.Equal(t, []string{"regex", "whitespace", "qgram", "subword"}, sparse.Tokenizers)
	assert.Equal(t, "results", sparse.ResultsDir)

	nmslib, err := BaselineFor("nmslib_join")
	require.NoError(t, err)
	assert.Equal(t, []string{"none", "regex", "whitespace", "subword"}, nmslib.Tokenizers)
	assert.Equal(t, "../results", nmslib.ResultsDir)

	lsh, err := BaselineFor("lsh_join")
	require.NoError(t, err)
	assert.Equal(t, tokenize.DefaultNames, lsh.Tokenizers)

	_, err = BaselineFor("bogus")
	assert.ErrorIs(t, err, baselines.ErrUnknownBaseline)
}

func TestWriteMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r", "fake_join", "ünïcode", MetricsFile)
	m := types.Metrics{"recall": 0.5, "précision": 1}
	require.NoError(t, WriteMetrics(path, m))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"précision\": 1", "two-space indent, non-ASCII kept")

	back, err := ReadMetrics(path)
	require.NoError(t, err)
	assert.Equal(t, m, back)
}

func TestWriteMetricsConcurrent(t *testing.T) {
	path := MetricsPath(t.TempDir(), "fake_join", "abt-buy")
	const writers = 8

	for round := 0; round < 20; round++ {
		start := make(chan struct{})
		errs := make(chan error, writers)
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				errs <- WriteMetrics(path, types.Metrics{"recall": float64(i) / writers})
			}()
		}
		close(start)
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
	}

	_, err := ReadMetrics(path)
	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestDriverRunUnusualDatasetNames(t *testing.T) {
	cps, err := checkpoint.NewCheckpointManager(t.TempDir())
	require.NoError(t, err)
	join := &countingJoin{}

	d, err := NewDriver(testBaseline(join.join), Options{
		Tracker:        openTracker(t),
		OrigWorkingDir: t.TempDir(),
		Workers:        2,
		Checkpoints:    cps,
	})
	require.NoError(t, err)

	results, err := d.Run(context.Background(), d.Grid([]string{"data/dblp acm", "data/café"}, nil, []int{10}))
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, int64(4), join.calls.Load())
	for _, r := range results {
		assert.NoError(t, r.Err)
		cp, err := cps.Load(context.Background(), r.TrialID)
		require.NoError(t, err)
		require.NotNil(t, cp, r.TrialID)
		assert.Equal(t, checkpoint.StatusCompleted, cp.Status)
	}
}

func TestDriverGridIgnoresUserTokenizers(t *testing.T) {
	var logs bytes.Buffer
	d, err := NewDriver(testBaseline((&countingJoin{}).join), Options{
		Tracker:        openTracker(t),
		OrigWorkingDir: t.TempDir(),
		Logger:         slog.New(slog.NewTextHandler(&logs, nil)),
	})
	require.NoError(t, err)

	g := d.Grid([]string{"a"}, []string{"qgram"}, nil)
	assert.Equal(t, []string{"regex", "whitespace"}, g.Tokenizers)
	assert.Equal(t, []int{100}, g.NNeighbors)
	assert.Contains(t, logs.String(), "Ignoring user tokenizers")
}

func TestDriverRunTwoByTwoGrid(t *testing.T) {
	origin := t.TempDir()
	tr := openTracker(t)
	join := &countingJoin{}

	d, err := NewDriver(testBaseline(join.join), Options{
		Tracker:        tr,
		OrigWorkingDir: origin,
		Workers:        2,
	})
	require.NoError(t, err)

	grid := d.Grid([]string{"data/abt-buy", "data/amazon-google"}, nil, []int{100})
	results, err := d.Run(context.Background(), grid)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, int64(4), join.calls.Load())

	for _, p := range join.seen {
		assert.True(t, filepath.IsAbs(p.DataDir), "data dirs are resolved against the origin")
		assert.Equal(t, origin, filepath.Dir(filepath.Dir(p.DataDir)))
	}

	runs, err := tr.ListRuns(context.Background(), tracker.RunFilter{Project: DefaultProject, Tag: "baseline"})
	require.NoError(t, err)
	assert.Len(t, runs, 4)
	for _, run := range runs {
		assert.Contains(t, run.Tags, "fake_join")
	}

	files, err := filepath.Glob(filepath.Join(origin, "results", "fake_join", "*", MetricsFile))
	require.NoError(t, err)
	require.Len(t, files, 2, "one metrics file per dataset")

	for _, f := range files {
		written, err := ReadMetrics(f)
		require.NoError(t, err)

		dataset := filepath.Base(filepath.Dir(f))
		logged, err := tr.ListRuns(context.Background(), tracker.RunFilter{Name: "fake_join/" + dataset})
		require.NoError(t, err)
		require.Len(t, logged, 2)

		var match bool
		for _, run := range logged {
			if assert.ObjectsAreEqual(written, run.Summary) {
				match = true
			}
		}
		assert.True(t, match, "%s should equal a mapping logged to the tracker", f)
	}

	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.NotEmpty(t, r.RunID)
		assert.FileExists(t, r.MetricsPath)
	}
}

func TestDriverResume(t *testing.T) {
	origin := t.TempDir()
	cps, err := checkpoint.NewCheckpointManager(t.TempDir())
	require.NoError(t, err)
	join := &countingJoin{}

	newDriver := func() *Driver {
		d, err := NewDriver(testBaseline(join.join), Options{
			Tracker:        openTracker(t),
			OrigWorkingDir: origin,
			Workers:        1,
			Checkpoints:    cps,
			Resume:         true,
		})
		require.NoError(t, err)
		return d
	}

	d := newDriver()
	grid := d.Grid([]string{"data/abt-buy"}, nil, []int{10})
	_, err = d.Run(context.Background(), grid)
	require.NoError(t, err)
	assert.Equal(t, int64(2), join.calls.Load())

	results, err := newDriver().Run(context.Background(), grid)
	require.NoError(t, err)
	assert.Equal(t, int64(2), join.calls.Load(), "completed trials are skipped")
	for _, r := range results {
		assert.True(t, r.Resumed)
		assert.Equal(t, 10.0, r.Metrics["n_neighbors"])
	}

	stats, err := cps.GetStatistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Completed)
}

func TestDriverCircuitBreaker(t *testing.T) {
	var calls atomic.Int64
	failing := func(context.Context, baselines.Params) (types.Metrics, error) {
		calls.Add(1)
		return nil, errors.New("dataset unreadable")
	}
	recorder := &alert.Recorder{}

	d, err := NewDriver(testBaseline(failing), Options{
		Tracker:        openTracker(t),
		OrigWorkingDir: t.TempDir(),
		Workers:        1,
		Breaker:        BreakerSettings{Enabled: true, MaxConsecutiveFailures: 2, Timeout: time.Hour},
		Alerter:        recorder,
	})
	require.NoError(t, err)

	grid := d.Grid([]string{"a", "b", "c"}, nil, []int{100})
	results, err := d.Run(context.Background(), grid)
	require.Error(t, err)
	require.Len(t, results, 6)
	assert.Equal(t, int64(2), calls.Load())

	var skipped int
	for _, r := range results {
		require.Error(t, r.Err)
		if errors.Is(r.Err, ErrBreakerOpen) {
			skipped++
		}
	}
	assert.Equal(t, 4, skipped)

	msgs := recorder.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Subject, "fake_join sweep halted")
}

func TestDriverRecoversPanics(t *testing.T) {
	join := func(_ context.Context, p baselines.Params) (types.Metrics, error) {
		if filepath.Base(p.DataDir) == "bad" {
			panic("index corrupted")
		}
		return types.Metrics{"recall": 1}, nil
	}
	recorder := &alert.Recorder{}
	cps, err := checkpoint.NewCheckpointManager(t.TempDir())
	require.NoError(t, err)

	d, err := NewDriver(testBaseline(join), Options{
		Tracker:        openTracker(t),
		OrigWorkingDir: t.TempDir(),
		Workers:        2,
		Checkpoints:    cps,
		Alerter:        recorder,
	})
	require.NoError(t, err)

	results, err := d.Run(context.Background(), d.Grid([]string{"bad", "good"}, nil, nil))
	require.Error(t, err)

	var panicErr *utils.PanicError
	for _, r := range results {
		if r.Config.Dataset() == "bad" {
			assert.ErrorAs(t, r.Err, &panicErr)
		} else {
			assert.NoError(t, r.Err)
		}
	}

	cp, err := cps.Load(context.Background(), d.TrialID(results[0].Config))
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusFailed, cp.Status)
	assert.Len(t, recorder.Messages(), 2, "one alert per trial out of attempts")
}

func TestRunTrialJoinError(t *testing.T) {
	tr := openTracker(t)
	failing := func(context.Context, baselines.Params) (types.Metrics, error) {
		return nil, fmt.Errorf("missing table_a.csv")
	}
	origin := t.TempDir()
	d, err := NewDriver(testBaseline(failing), Options{Tracker: tr, OrigWorkingDir: origin})
	require.NoError(t, err)

	res, err := d.RunTrial(context.Background(), TrialConfig{DataDir: "x", Tokenizer: "regex", NNeighbors: 1})
	require.Error(t, err)

	info, err := tr.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusFailed, info.Status)
	assert.NoFileExists(t, MetricsPath(filepath.Join(origin, "results"), "fake_join", "x"))
}

func TestSparseJoinSweepEndToEnd(t *testing.T) {
	origin := t.TempDir()
	dir := filepath.Join(origin, "data", "blocking", "toy")
	require.NoError(t, os.MkdirAll(dir, 0755))
	files := map[string]string{
		"table_a.csv": "id,title\n0,ipad air 64gb\n1,kindle paperwhite\n2,galaxy tab s7\n",
		"table_b.csv": "id,title\n10,ipad air 64gb wifi\n11,kindle paperwhite 2021\n12,galaxy tab s7 plus\n",
		"matches.csv": "id1,id2\n0,10\n1,11\n2,12\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}

	b := SparseJoin()
	b.Tokenizers = []string{tokenize.Regex, tokenize.Whitespace}
	d, err := NewDriver(b, Options{Tracker: openTracker(t), OrigWorkingDir: origin, Workers: 1})
	require.NoError(t, err)

	dirs, err := d.DefaultDataDirs("", nil)
	require.NoError(t, err)
	require.Equal(t, []string{dir}, dirs)

	results, err := d.Run(context.Background(), d.Grid(dirs, nil, []int{1}))
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.InDelta(t, 1.0, r.Metrics["recall"], 1e-9, r.Config.Tokenizer)
	}

	written, err := ReadMetrics(filepath.Join(origin, "results", "sparse_join", "toy", MetricsFile))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, written["recall"], 1e-9)
}
