package datasets

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/soundprediction/uniblocker/pkg/loader"
	"github.com/soundprediction/uniblocker/pkg/table"
	"github.com/soundprediction/uniblocker/pkg/types"
)

// ErrMultiWorker is returned when a single-process dataset is iterated by
// more than one loader worker.
var ErrMultiWorker = errors.New("only single-process data loading is supported")

// GitTablesOptions configures a GitTablesDataset.
type GitTablesOptions struct {
	// Files lists table files relative to the data dir. Empty means
	// recursive discovery by Extensions.
	Files []string
	// Extensions defaults to parquet.
	Extensions []string
	// IndexColumn, when set, moves that column into Record.ID.
	IndexColumn string
	// Validity defaults to table.DefaultValidity.
	Validity *table.ValidityOptions
	Logger   *slog.Logger
}

// GitTablesDataset yields one record per row of every valid table under a
// directory.
type GitTablesDataset struct {
	dir    string
	opts   GitTablesOptions
	logger *slog.Logger
}

// NewGitTablesDataset creates a dataset rooted at dir.
func NewGitTablesDataset(dir string, opts GitTablesOptions) *GitTablesDataset {
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{table.FormatParquet}
	}
	if opts.Validity == nil {
		v := table.DefaultValidity
		opts.Validity = &v
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GitTablesDataset{dir: dir, opts: opts, logger: logger}
}

// Records returns a lazy single-pass sequence of records. Unreadable and
// invalid tables are skipped without surfacing an error.
func (d *GitTablesDataset) Records(ctx context.Context) (iter.Seq[types.Record], error) {
	if info, ok := loader.WorkerInfoFromContext(ctx); ok && info.NumWorkers > 1 {
		return nil, ErrMultiWorker
	}

	return func(yield func(types.Record) bool) {
		files, err := table.Discover(d.dir, d.opts.Files, d.opts.Extensions)
		if err != nil {
			d.logger.Debug("table discovery failed", "dir", d.dir, "error", err)
			return
		}
		for _, f := range files {
			if ctx.Err() != nil {
				return
			}
			t, ok := d.load(f)
			if !ok {
				continue
			}
			for _, row := range t.Rows {
				if !yield(rowRecord(t.Columns, row, d.opts.IndexColumn)) {
					return
				}
			}
		}
	}, nil
}

// Iter implements loader.IterableDataset.
func (d *GitTablesDataset) Iter(ctx context.Context) (iter.Seq[types.Record], error) {
	return d.Records(ctx)
}

func (d *GitTablesDataset) load(path string) (*table.Table, bool) {
	t, err := table.Read(path)
	if err != nil {
		d.logger.Debug("skipping unreadable table", "path", path, "error", err)
		return nil, false
	}
	t.StripBOM().DropDuplicates()
	if err := t.Check(*d.opts.Validity); err != nil {
		d.logger.Debug("skipping invalid table", "path", path, "reason", err)
		return nil, false
	}
	return t.FillMissing(), true
}

func rowRecord(columns []string, row []table.Cell, indexCol string) types.Record {
	rec := types.Record{Fields: make([]types.Field, 0, len(columns))}
	for i, c := range columns {
		if indexCol != "" && c == indexCol {
			rec.ID = row[i].Value
			continue
		}
		rec.Fields = append(rec.Fields, types.Field{Column: c, Value: row[i].Value})
	}
	return rec
}

// ReadRecords loads one table file into records keyed by indexCol. Rows are
// not deduplicated or validated.
func ReadRecords(path, indexCol string) ([]types.Record, error) {
	t, err := table.Read(path)
	if err != nil {
		return nil, err
	}
	t.StripBOM().FillMissing()
	if indexCol != "" && t.ColumnIndex(indexCol) < 0 {
		return nil, fmt.Errorf("%w: %q in %s", table.ErrMissingColumn, indexCol, path)
	}
	out := make([]types.Record, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = rowRecord(t.Columns, row, indexCol)
	}
	return out, nil
}
