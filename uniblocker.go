package uniblocker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/soundprediction/uniblocker/pkg/alert"
	"github.com/soundprediction/uniblocker/pkg/cache"
	"github.com/soundprediction/uniblocker/pkg/checkpoint"
	"github.com/soundprediction/uniblocker/pkg/config"
	"github.com/soundprediction/uniblocker/pkg/logger"
	"github.com/soundprediction/uniblocker/pkg/sweep"
	"github.com/soundprediction/uniblocker/pkg/telemetry"
	"github.com/soundprediction/uniblocker/pkg/tokenize"
	"github.com/soundprediction/uniblocker/pkg/tracker"
)

// Blocker runs blocking baselines and records their results.
type Blocker interface {
	// Sweep runs a baseline over every grid point of req. Trial failures do
	// not stop the sweep; they are joined into the returned error.
	Sweep(ctx context.Context, b sweep.Baseline, req SweepRequest) ([]sweep.TrialResult, error)

	// Join runs a single trial without checkpoints or circuit breaking.
	Join(ctx context.Context, b sweep.Baseline, cfg sweep.TrialConfig) (sweep.TrialResult, error)

	// ResultsDir locates the results directory of a registered baseline.
	ResultsDir(baseline string) (string, error)

	// Close flushes telemetry and releases the stores.
	Close() error
}

// SweepRequest selects the grid of a sweep. Empty fields fall back to the
// configured defaults.
type SweepRequest struct {
	DataDirs []string
	// Tokenizers is accepted and ignored; the baseline's list is used.
	Tokenizers []string
	NNeighbors []int
}

// Client is the main implementation of the Blocker interface.
type Client struct {
	config      *config.Config
	logger      *slog.Logger
	tracker     *tracker.Tracker
	cache       *cache.TokenCache
	checkpoints *checkpoint.CheckpointManager
	telemetry   *telemetry.ParquetHandler
	alerter     alert.Alerter
}

var _ Blocker = (*Client)(nil)

// NewClient opens the tracker, telemetry handlers, token cache and
// checkpoint store described by cfg and installs the resulting logger as
// the slog default.
func NewClient(cfg *config.Config) (*Client, error) {
	c := &Client{config: cfg, alerter: alert.New(cfg.Alert)}
	base := logger.NewHandler(os.Stderr, cfg.Log)

	if path := sqlitePath(cfg.Tracker.DSN); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create tracker directory: %w", err)
		}
	}
	tr, err := tracker.Open(cfg.Tracker.DSN, slog.New(base))
	if err != nil {
		return nil, err
	}
	c.tracker = tr

	handler := base
	level := logger.ParseLevel(cfg.Telemetry.Level)
	if cfg.Telemetry.ParquetPath != "" {
		ph, err := telemetry.NewParquetHandler(handler, cfg.Telemetry.ParquetPath, level)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.telemetry = ph
		handler = ph
	}
	if cfg.Telemetry.SQL {
		sh, err := telemetry.NewSQLHandler(handler, tr.DB(), level)
		if err != nil {
			c.Close()
			return nil, err
		}
		handler = sh
	}
	c.logger = slog.New(handler)
	slog.SetDefault(c.logger)

	if cfg.Cache.Enabled {
		tc, err := cache.Open(cfg.Cache.Dir, c.logger)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.cache = tc
	}

	if cfg.Sweep.CheckpointDir != "" {
		cm, err := checkpoint.NewCheckpointManager(cfg.Sweep.CheckpointDir)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.checkpoints = cm
	}
	return c, nil
}

// sqlitePath returns the database file of a SQLite DSN, "" for anything else.
func sqlitePath(dsn string) string {
	if strings.HasPrefix(dsn, "mysql://") {
		return ""
	}
	dsn = strings.TrimPrefix(dsn, "sqlite://")
	if dsn == "" || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return ""
	}
	return dsn
}

// Config returns the client's configuration.
func (c *Client) Config() *config.Config { return c.config }

// Logger returns the logger wrapping the telemetry handlers.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Tracker returns the experiment tracker.
func (c *Client) Tracker() *tracker.Tracker { return c.tracker }

// Checkpoints returns the trial checkpoint store, nil when disabled.
func (c *Client) Checkpoints() *checkpoint.CheckpointManager { return c.checkpoints }

// Driver builds the sweep driver of b from the configuration.
func (c *Client) Driver(b sweep.Baseline) (*sweep.Driver, error) {
	cfg := c.config
	cb := cfg.CircuitBreaker
	if cfg.Data.ResultsDir != "" {
		b.ResultsDir = cfg.Data.ResultsDir
	}
	return sweep.NewDriver(b, sweep.Options{
		Tracker:        c.tracker,
		Project:        cfg.Tracker.Project,
		OrigWorkingDir: cfg.Sweep.OrigWorkingDir,
		Workers:        cfg.Sweep.Workers,
		Checkpoints:    c.checkpoints,
		Resume:         cfg.Sweep.Resume,
		MaxAttempts:    cfg.Sweep.MaxAttempts,
		Breaker: sweep.BreakerSettings{
			Enabled:                cb.Enabled,
			MaxConsecutiveFailures: cb.MaxConsecutiveFailures,
			MaxRequests:            cb.MaxRequests,
			Interval:               time.Duration(cb.Interval) * time.Second,
			Timeout:                time.Duration(cb.Timeout) * time.Second,
		},
		Alerter: c.alerter,
		Cache:   c.cache,
		TokenizerOptions: tokenize.Options{
			QGramSize:    cfg.Tokenizer.QGramSize,
			SubwordModel: cfg.Tokenizer.SubwordModel,
			HFToken:      cfg.Tokenizer.HFToken,
		},
		Logger: c.logger,
	})
}

// Sweep implements Blocker.
func (c *Client) Sweep(ctx context.Context, b sweep.Baseline, req SweepRequest) ([]sweep.TrialResult, error) {
	d, err := c.Driver(b)
	if err != nil {
		return nil, err
	}
	dataDirs := req.DataDirs
	if len(dataDirs) == 0 {
		dataDirs, err = d.DefaultDataDirs(c.config.Data.Root, c.config.Data.Exclude)
		if err != nil {
			return nil, err
		}
	}
	nNeighbors := req.NNeighbors
	if len(nNeighbors) == 0 {
		nNeighbors = c.config.Sweep.NNeighbors
	}
	return d.Run(ctx, d.Grid(dataDirs, req.Tokenizers, nNeighbors))
}

// Join implements Blocker.
func (c *Client) Join(ctx context.Context, b sweep.Baseline, cfg sweep.TrialConfig) (sweep.TrialResult, error) {
	d, err := c.Driver(b)
	if err != nil {
		return sweep.TrialResult{}, err
	}
	return d.RunTrial(ctx, cfg)
}

// ResultsDir implements Blocker.
func (c *Client) ResultsDir(baseline string) (string, error) {
	b, err := sweep.BaselineFor(baseline)
	if err != nil {
		return "", err
	}
	d, err := c.Driver(b)
	if err != nil {
		return "", err
	}
	return d.ResultsDir(), nil
}

// Close implements Blocker.
func (c *Client) Close() error {
	var errs []error
	if c.telemetry != nil {
		errs = append(errs, c.telemetry.Flush())
	}
	if c.cache != nil {
		errs = append(errs, c.cache.Close())
	}
	if c.tracker != nil {
		errs = append(errs, c.tracker.Close())
	}
	return errors.Join(errs...)
}
