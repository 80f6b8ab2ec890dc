package datasets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/soundprediction/uniblocker/pkg/loader"
	"github.com/soundprediction/uniblocker/pkg/table"
	"github.com/soundprediction/uniblocker/pkg/types"
	"github.com/soundprediction/uniblocker/pkg/utils"
)

// Direction selects which table is queried against which.
type Direction string

const (
	DirectionForward  Direction = "forward"
	DirectionReversed Direction = "reversed"
	DirectionBoth     Direction = "both"
)

// ErrNotSetUp is returned when loaders are requested before Setup.
var ErrNotSetUp = errors.New("data module is not set up")

// DeepMatcherConfig locates a DeepMatcher-style benchmark dataset.
type DeepMatcherConfig struct {
	DataDir      string
	TableFiles   []string
	LabelFiles   []string
	LabelColumns [2]string
	LabelColumn  string
	Positive     string
	IndexColumn  string
	NNeighbors   int
	Direction    Direction
	BatchSize    int
	NumWorkers   int
	Seed         uint64
}

// DefaultDeepMatcherConfig returns the Walmart-Amazon layout.
func DefaultDeepMatcherConfig() DeepMatcherConfig {
	return DeepMatcherConfig{
		DataDir:      "./data/deepmatcher/Structured/Walmart-Amazon",
		TableFiles:   []string{"tableA.csv", "tableB.csv"},
		LabelFiles:   []string{"train.csv", "valid.csv", "test.csv"},
		LabelColumns: [2]string{"ltable_id", "rtable_id"},
		LabelColumn:  "label",
		Positive:     "1",
		IndexColumn:  "id",
		NNeighbors:   100,
		BatchSize:    32,
	}
}

// Validate checks the configuration.
func (c DeepMatcherConfig) Validate() error {
	switch c.Direction {
	case "", DirectionForward, DirectionReversed, DirectionBoth:
	default:
		return fmt.Errorf("invalid direction %q", c.Direction)
	}
	if len(c.TableFiles) == 0 {
		return errors.New("at least one table file is required")
	}
	if c.NNeighbors < 0 || c.BatchSize < 0 || c.NumWorkers < 0 {
		return errors.New("n_neighbors, batch_size and num_workers must not be negative")
	}
	return nil
}

// DeepMatcher loads the tables and ground truth of one benchmark dataset and
// serves per-table training loaders.
type DeepMatcher struct {
	cfg    DeepMatcherConfig
	logger *slog.Logger

	mu       sync.Mutex
	tables   [][]types.Features
	matches  types.MatchSet
	collator Collator
}

// NewDeepMatcher creates the data module.
func NewDeepMatcher(cfg DeepMatcherConfig, logger *slog.Logger) (*DeepMatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeepMatcher{cfg: cfg, logger: logger}, nil
}

// Config returns the module configuration.
func (d *DeepMatcher) Config() DeepMatcherConfig { return d.cfg }

// Setup loads and encodes every table concurrently and loads the match set.
// Work already done by an earlier call is kept. enc must be safe for
// concurrent use.
func (d *DeepMatcher) Setup(ctx context.Context, enc Encoder) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tables == nil {
		tables := make([][]types.Features, len(d.cfg.TableFiles))
		jobs := make([]func() error, len(d.cfg.TableFiles))
		for i, f := range d.cfg.TableFiles {
			jobs[i] = func() error {
				rows, err := d.encodeTable(filepath.Join(d.cfg.DataDir, f), enc)
				tables[i] = rows
				return err
			}
		}
		if err := utils.FirstError(utils.NewConcurrentExecutor(len(jobs)).Execute(ctx, jobs...)); err != nil {
			return err
		}
		d.tables = tables
	}

	if d.matches == nil {
		files := make([]string, len(d.cfg.LabelFiles))
		for i, f := range d.cfg.LabelFiles {
			files[i] = filepath.Join(d.cfg.DataDir, f)
		}
		matches, err := LoadMatches(LabelConfig{
			Files:       files,
			LabelColumn: d.cfg.LabelColumn,
			Positive:    d.cfg.Positive,
			Columns:     d.cfg.LabelColumns,
		})
		if err != nil {
			return err
		}
		d.matches = matches
	}

	d.collator, _ = enc.(Collator)
	d.logger.Info("Data module ready", "data_dir", d.cfg.DataDir, "tables", len(d.tables), "matches", d.matches.Len())
	return nil
}

// PrepareData runs Setup.
func (d *DeepMatcher) PrepareData(ctx context.Context, enc Encoder) error {
	return d.Setup(ctx, enc)
}

func (d *DeepMatcher) encodeTable(path string, enc Encoder) ([]types.Features, error) {
	t, err := table.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load table: %w", err)
	}
	t.StripBOM().FillMissing()

	features, err := enc.ConvertToFeatures(Preprocess(t.Batch(), d.cfg.IndexColumn))
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", path, err)
	}
	features, err = SelectColumns(features, enc.FeatureColumns())
	if err != nil {
		return nil, err
	}
	rows, err := SplitRows(features)
	if err != nil {
		return nil, fmt.Errorf("failed to split %s: %w", path, err)
	}
	if len(rows) != t.NumRows() {
		return nil, fmt.Errorf("encoder returned %d rows for %d in %s", len(rows), t.NumRows(), path)
	}
	return rows, nil
}

// Tables returns the encoded rows of every table, in table file order.
func (d *DeepMatcher) Tables() [][]types.Features {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tables
}

// Matches returns the ground-truth match set.
func (d *DeepMatcher) Matches() types.MatchSet {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.matches
}

// TrainLoader returns one shuffled loader per table, drained in table order.
func (d *DeepMatcher) TrainLoader() (*loader.SequentialLoader[types.Features], error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tables == nil {
		return nil, ErrNotSetUp
	}

	collate := func(ctx context.Context, rows []types.Features) (types.Features, error) {
		return CollateRows(rows)
	}
	if d.collator != nil {
		collate = d.collator.Collate
	}

	loaders := make([]loader.Loader[types.Features], len(d.tables))
	for i, rows := range d.tables {
		loaders[i] = loader.NewSliceLoader(rows, collate, loader.Options{
			BatchSize:  d.cfg.BatchSize,
			Shuffle:    true,
			Seed:       d.cfg.Seed + uint64(i),
			NumWorkers: d.cfg.NumWorkers,
		})
	}
	return loader.NewSequentialLoader(loaders...), nil
}
