package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"github.com/soundprediction/uniblocker/pkg/alert"
	"github.com/soundprediction/uniblocker/pkg/baselines"
	"github.com/soundprediction/uniblocker/pkg/cache"
	"github.com/soundprediction/uniblocker/pkg/checkpoint"
	"github.com/soundprediction/uniblocker/pkg/tokenize"
	"github.com/soundprediction/uniblocker/pkg/tracker"
	"github.com/soundprediction/uniblocker/pkg/types"
	"github.com/soundprediction/uniblocker/pkg/utils"
)

// DefaultProject is the tracker project of every sweep.
const DefaultProject = "universal-blocker"

// RunTag marks every tracked trial run; runs also carry the baseline name.
const RunTag = "baseline"

// OrigWorkingDirEnv names the directory relative paths are resolved against.
const OrigWorkingDirEnv = "TUNE_ORIG_WORKING_DIR"

// ErrBreakerOpen marks trials skipped because the circuit breaker is open.
var ErrBreakerOpen = errors.New("circuit breaker open: trial skipped")

// BreakerSettings configures the sweep circuit breaker.
type BreakerSettings struct {
	Enabled bool
	// MaxConsecutiveFailures opens the breaker.
	MaxConsecutiveFailures uint32
	// MaxRequests may pass while half-open; zero means one.
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// Options configures a Driver.
type Options struct {
	Tracker *tracker.Tracker
	Project string
	// OrigWorkingDir defaults to $TUNE_ORIG_WORKING_DIR, then the process cwd.
	OrigWorkingDir string
	Workers        int

	Checkpoints *checkpoint.CheckpointManager
	// Resume skips trials whose checkpoint is completed.
	Resume      bool
	MaxAttempts int

	Breaker BreakerSettings
	Alerter alert.Alerter

	Cache            *cache.TokenCache
	TokenizerOptions tokenize.Options
	Layout           *baselines.Layout
	Logger           *slog.Logger
}

// TrialResult is the outcome of one grid point.
type TrialResult struct {
	Config      TrialConfig   `json:"config"`
	TrialID     string        `json:"trial_id"`
	RunID       string        `json:"run_id,omitempty"`
	Metrics     types.Metrics `json:"metrics,omitempty"`
	MetricsPath string        `json:"metrics_path,omitempty"`
	// Resumed is set when the metrics come from a completed checkpoint.
	Resumed bool  `json:"resumed,omitempty"`
	Err     error `json:"-"`
}

// Driver runs the trials of one baseline.
type Driver struct {
	baseline Baseline
	opts     Options
	logger   *slog.Logger
	breaker  *gobreaker.CircuitBreaker

	mu         sync.Mutex
	tokenizers map[string]tokenize.Tokenizer

	remaining atomic.Int64
}

// NewDriver validates the baseline and options.
func NewDriver(b Baseline, opts Options) (*Driver, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if opts.Tracker == nil {
		return nil, fmt.Errorf("sweep driver requires a tracker")
	}
	if opts.Project == "" {
		opts.Project = DefaultProject
	}
	if opts.OrigWorkingDir == "" {
		opts.OrigWorkingDir = os.Getenv(OrigWorkingDirEnv)
	}
	if opts.OrigWorkingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		opts.OrigWorkingDir = wd
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Alerter == nil {
		opts.Alerter = &alert.NoOpAlerter{}
	}
	if opts.TokenizerOptions == (tokenize.Options{}) {
		opts.TokenizerOptions = tokenize.DefaultOptions()
	}
	if b.SubwordModel != "" {
		opts.TokenizerOptions.SubwordModel = b.SubwordModel
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Driver{
		baseline:   b,
		opts:       opts,
		logger:     logger.With("baseline", b.Name),
		tokenizers: make(map[string]tokenize.Tokenizer),
	}
	if opts.Breaker.Enabled {
		d.breaker = d.newBreaker(opts.Breaker)
	}
	return d, nil
}

func (d *Driver) newBreaker(cfg BreakerSettings) *gobreaker.CircuitBreaker {
	maxFailures := cfg.MaxConsecutiveFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        d.baseline.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if to != gobreaker.StateOpen {
				return
			}
			d.logger.Error("Circuit breaker opened", "from", from.String(), "remaining", d.remaining.Load())
			subject, msg := alert.BreakerTripped(name, maxFailures, int(d.remaining.Load()))
			if err := d.opts.Alerter.Alert(subject, msg); err != nil {
				d.logger.Warn("Failed to send alert", "error", err)
			}
		},
	})
}

// Baseline returns the driver's baseline.
func (d *Driver) Baseline() Baseline { return d.baseline }

// Grid builds the sweep grid. User-supplied tokenizers are ignored in favour
// of the baseline's list; nil dataDirs and nNeighbors fall back to defaults.
func (d *Driver) Grid(dataDirs, tokenizers []string, nNeighbors []int) Grid {
	if len(tokenizers) > 0 && !slices.Equal(tokenizers, d.baseline.Tokenizers) {
		d.logger.Warn("Ignoring user tokenizers", "given", tokenizers, "using", d.baseline.Tokenizers)
	}
	if len(nNeighbors) == 0 {
		nNeighbors = DefaultNNeighbors
	}
	return Grid{
		DataDirs:   dataDirs,
		Tokenizers: slices.Clone(d.baseline.Tokenizers),
		NNeighbors: nNeighbors,
	}
}

// DefaultDataDirs lists the datasets under root, resolved against the
// origin working directory.
func (d *Driver) DefaultDataDirs(root string, exclude []string) ([]string, error) {
	if root == "" {
		root = DefaultDataRoot
	}
	if exclude == nil {
		exclude = DefaultExclude
	}
	return DefaultDataDirs(d.resolve(root), exclude)
}

func (d *Driver) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(d.opts.OrigWorkingDir, path)
}

// ResultsDir is the absolute results directory of the baseline.
func (d *Driver) ResultsDir() string {
	return d.resolve(d.baseline.ResultsDir)
}

// TrialID is the checkpoint id of a grid point.
func (d *Driver) TrialID(cfg TrialConfig) string {
	return d.baseline.Name + "__" + cfg.ID()
}

func (d *Driver) tokenizer(name string) (tokenize.Tokenizer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.tokenizers[name]; ok {
		return t, nil
	}
	t, err := tokenize.Parse(name, d.opts.TokenizerOptions)
	if err != nil {
		return nil, err
	}
	d.tokenizers[name] = t
	return t, nil
}

func (d *Driver) trialContext(ctx context.Context, cfg TrialConfig) context.Context {
	ctx = context.WithValue(ctx, types.ContextKeyTrialID, d.TrialID(cfg))
	return context.WithValue(ctx, types.ContextKeyBaseline, d.baseline.Name)
}

// RunTrial runs one grid point: it starts a tracker run, calls the join,
// logs and writes the metrics.
func (d *Driver) RunTrial(ctx context.Context, cfg TrialConfig) (TrialResult, error) {
	ctx = d.trialContext(ctx, cfg)
	res := TrialResult{Config: cfg, TrialID: d.TrialID(cfg)}
	dataset := cfg.Dataset()
	logger := d.logger.With("dataset", dataset, "tokenizer", cfg.Tokenizer, "n_neighbors", cfg.NNeighbors)

	tok, err := d.tokenizer(cfg.Tokenizer)
	if err != nil {
		return res, err
	}

	resultsDir := d.ResultsDir()
	run, err := d.opts.Tracker.Init(ctx, tracker.RunOptions{
		Project: d.opts.Project,
		Name:    d.baseline.Name + "/" + dataset,
		Dir:     filepath.Join(resultsDir, d.baseline.Name),
		Config:  cfg.Map(),
		Tags:    []string{RunTag, d.baseline.Name},
	})
	if err != nil {
		return res, fmt.Errorf("failed to start run: %w", err)
	}
	res.RunID = run.ID()
	ctx = context.WithValue(ctx, types.ContextKeyRunID, run.ID())

	logger.InfoContext(ctx, "Starting trial", "run_id", run.ID())
	metrics, err := d.baseline.Join(ctx, baselines.Params{
		DataDir:    d.resolve(cfg.DataDir),
		Tokenizer:  tok,
		NNeighbors: cfg.NNeighbors,
		Layout:     d.opts.Layout,
		Cache:      d.opts.Cache,
		Logger:     logger,
	})
	if err != nil {
		if ferr := run.Finish(ctx, err); ferr != nil {
			logger.WarnContext(ctx, "Failed to finish run", "error", ferr)
		}
		return res, err
	}

	if err := run.Log(ctx, metrics); err != nil {
		run.Finish(ctx, err)
		return res, err
	}
	if err := run.Finish(ctx, nil); err != nil {
		return res, err
	}

	res.Metrics = metrics
	res.MetricsPath = MetricsPath(resultsDir, d.baseline.Name, dataset)
	if err := WriteMetrics(res.MetricsPath, metrics); err != nil {
		return res, err
	}
	logger.InfoContext(ctx, "Wrote metrics", "path", res.MetricsPath, "recall", metrics["recall"])
	return res, nil
}

// Run executes every trial of grid on a bounded worker pool. Results are in
// grid order. A failing trial does not stop its siblings; the returned error
// joins every trial error.
func (d *Driver) Run(ctx context.Context, grid Grid) ([]TrialResult, error) {
	trials := grid.Expand()
	d.remaining.Store(int64(len(trials)))
	d.logger.Info("Starting sweep", "trials", len(trials), "workers", d.opts.Workers)

	pool := utils.NewWorkerPool(d.opts.Workers, func(ctx context.Context, cfg TrialConfig) (TrialResult, error) {
		defer d.remaining.Add(-1)
		return d.runTracked(ctx, cfg)
	})
	results, errs := pool.ProcessItems(ctx, trials)

	var failed []error
	for i := range trials {
		// workers stop early on cancellation and leave zero results behind
		if results[i].TrialID == "" {
			results[i] = TrialResult{Config: trials[i], TrialID: d.TrialID(trials[i])}
			if errs[i] == nil {
				errs[i] = ctx.Err()
			}
		}
		if errs[i] != nil {
			results[i].Err = errs[i]
			failed = append(failed, fmt.Errorf("%s: %w", results[i].TrialID, errs[i]))
		}
	}
	d.logger.Info("Finished sweep", "trials", len(trials), "failed", len(failed))
	return results, errors.Join(failed...)
}

// runTracked wraps RunTrial with checkpoints, the circuit breaker and
// panic recovery.
func (d *Driver) runTracked(ctx context.Context, cfg TrialConfig) (res TrialResult, err error) {
	id := d.TrialID(cfg)
	res = TrialResult{Config: cfg, TrialID: id}

	var cp *checkpoint.TrialCheckpoint
	if d.opts.Checkpoints != nil {
		cp, _, err = d.opts.Checkpoints.LoadOrCreate(ctx, id, d.baseline.Name, cfg.Dataset(), cfg.Map())
		if err != nil {
			return res, err
		}
		if d.opts.Resume && cp.IsDone() {
			d.logger.Info("Skipping completed trial", "trial_id", id)
			res.RunID, res.Metrics, res.Resumed = cp.RunID, cp.Metrics, true
			res.MetricsPath = MetricsPath(d.ResultsDir(), d.baseline.Name, cfg.Dataset())
			return res, nil
		}
		if cp.AttemptCount >= d.opts.MaxAttempts && d.opts.Resume && cp.Status == checkpoint.StatusFailed {
			return res, fmt.Errorf("trial exhausted %d attempts: %s", cp.AttemptCount, cp.LastError)
		}
	}

	run := func() (out TrialResult, err error) {
		defer utils.RecoverAsError(&err)
		if cp != nil {
			if err := d.opts.Checkpoints.MarkRunning(ctx, cp, ""); err != nil {
				return out, err
			}
		}
		return d.RunTrial(ctx, cfg)
	}

	if d.breaker != nil {
		var v any
		v, err = d.breaker.Execute(func() (any, error) {
			r, err := run()
			return r, err
		})
		if r, ok := v.(TrialResult); ok {
			res = r
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %v", ErrBreakerOpen, err)
		}
	} else {
		res, err = run()
	}

	if cp != nil {
		d.saveOutcome(ctx, cp, res, err)
	}
	if err != nil {
		d.logger.ErrorContext(d.trialContext(ctx, cfg), "Trial failed", "trial_id", id, "error", err)
	}
	return res, err
}

func (d *Driver) saveOutcome(ctx context.Context, cp *checkpoint.TrialCheckpoint, res TrialResult, err error) {
	cp.RunID = res.RunID
	if err == nil {
		if serr := d.opts.Checkpoints.MarkCompleted(ctx, cp, res.Metrics); serr != nil {
			d.logger.Warn("Failed to save checkpoint", "trial_id", cp.TrialID, "error", serr)
		}
		return
	}
	if serr := d.opts.Checkpoints.SaveWithError(ctx, cp, err); serr != nil {
		d.logger.Warn("Failed to save checkpoint", "trial_id", cp.TrialID, "error", serr)
	}
	if cp.AttemptCount >= d.opts.MaxAttempts && !errors.Is(err, ErrBreakerOpen) {
		subject, msg := alert.TrialFailed(cp.TrialID, cp.AttemptCount, err)
		if aerr := d.opts.Alerter.Alert(subject, msg); aerr != nil {
			d.logger.Warn("Failed to send alert", "error", aerr)
		}
	}
}
