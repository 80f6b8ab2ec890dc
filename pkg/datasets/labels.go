package datasets

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/soundprediction/uniblocker/pkg/table"
	"github.com/soundprediction/uniblocker/pkg/types"
)

// ErrMixedLabelFormats is returned when label files do not share one format.
var ErrMixedLabelFormats = errors.New("label files have mixed formats")

// LabelConfig describes labelled pair files.
type LabelConfig struct {
	Files []string
	// LabelColumn holds the label. Empty means every row is a positive pair.
	LabelColumn string
	Positive    string
	// Columns are the left and right identifier columns.
	Columns [2]string
}

// DefaultLabelConfig returns the DeepMatcher label layout for files.
func DefaultLabelConfig(files ...string) LabelConfig {
	return LabelConfig{
		Files:       files,
		LabelColumn: "label",
		Positive:    "1",
		Columns:     [2]string{"ltable_id", "rtable_id"},
	}
}

// LoadMatches concatenates the label files, keeps positive rows and returns
// their identifier pairs.
func LoadMatches(cfg LabelConfig) (types.MatchSet, error) {
	matches := types.NewMatchSet()
	if len(cfg.Files) == 0 {
		return matches, nil
	}

	format := table.Format(cfg.Files[0])
	for _, f := range cfg.Files[1:] {
		if table.Format(f) != format {
			return nil, fmt.Errorf("%w: %s is %q, want %q", ErrMixedLabelFormats, f, table.Format(f), format)
		}
	}

	for _, f := range cfg.Files {
		t, err := table.Read(f)
		if err != nil {
			return nil, fmt.Errorf("failed to load labels: %w", err)
		}
		t.StripBOM()

		left, right := t.ColumnIndex(cfg.Columns[0]), t.ColumnIndex(cfg.Columns[1])
		if left < 0 || right < 0 {
			return nil, fmt.Errorf("%w: %v in %s", table.ErrMissingColumn, cfg.Columns, f)
		}
		label := -1
		if cfg.LabelColumn != "" {
			if label = t.ColumnIndex(cfg.LabelColumn); label < 0 {
				return nil, fmt.Errorf("%w: %q in %s", table.ErrMissingColumn, cfg.LabelColumn, f)
			}
		}

		for _, row := range t.Rows {
			if label >= 0 && (row[label].Null || !labelEquals(row[label].Value, cfg.Positive)) {
				continue
			}
			matches.Add(types.Pair{Left: row[left].Value, Right: row[right].Value})
		}
	}
	return matches, nil
}

// labelEquals compares labels as numbers when both parse, so "1.0" equals "1".
func labelEquals(v, positive string) bool {
	if v == positive {
		return true
	}
	a, errA := strconv.ParseFloat(v, 64)
	b, errB := strconv.ParseFloat(positive, 64)
	return errA == nil && errB == nil && a == b
}
