package baselines

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/soundprediction/uniblocker/pkg/datasets"
	"github.com/soundprediction/uniblocker/pkg/types"
)

// Layout names the files of a blocking dataset directory.
type Layout struct {
	// TableFiles holds one file for deduplication or two for a join.
	TableFiles   []string
	MatchFiles   []string
	MatchColumns [2]string
	// LabelColumn is empty when match files list positive pairs only.
	LabelColumn string
	Positive    string
	IndexColumn string
}

// DefaultLayout is the layout of the blocking benchmark datasets.
func DefaultLayout() Layout {
	return Layout{
		TableFiles:   []string{"table_a.csv", "table_b.csv"},
		MatchFiles:   []string{"matches.csv"},
		MatchColumns: [2]string{"id1", "id2"},
		Positive:     "1",
		IndexColumn:  "id",
	}
}

// Dataset is a loaded blocking dataset.
type Dataset struct {
	Name    string
	Left    []types.Record
	Right   []types.Record
	Matches types.MatchSet
	// Dedupe is set when a single table is matched against itself.
	Dedupe bool
	Tables [2]string
}

// LoadDataset reads the tables and matches of dataDir. A second table file
// that does not exist turns the dataset into a self-join.
func LoadDataset(dataDir string, layout Layout) (*Dataset, error) {
	if len(layout.TableFiles) == 0 || len(layout.TableFiles) > 2 {
		return nil, fmt.Errorf("layout needs one or two table files, got %d", len(layout.TableFiles))
	}
	ds := &Dataset{Name: filepath.Base(filepath.Clean(dataDir))}

	left, err := datasets.ReadRecords(filepath.Join(dataDir, layout.TableFiles[0]), layout.IndexColumn)
	if err != nil {
		return nil, fmt.Errorf("failed to load left table: %w", err)
	}
	ds.Left, ds.Right = left, left
	ds.Tables = [2]string{layout.TableFiles[0], layout.TableFiles[0]}
	ds.Dedupe = true

	if len(layout.TableFiles) == 2 {
		path := filepath.Join(dataDir, layout.TableFiles[1])
		if _, err := os.Stat(path); err == nil {
			right, err := datasets.ReadRecords(path, layout.IndexColumn)
			if err != nil {
				return nil, fmt.Errorf("failed to load right table: %w", err)
			}
			ds.Right = right
			ds.Tables[1] = layout.TableFiles[1]
			ds.Dedupe = false
		}
	}

	files := make([]string, len(layout.MatchFiles))
	for i, f := range layout.MatchFiles {
		files[i] = filepath.Join(dataDir, f)
	}
	ds.Matches, err = datasets.LoadMatches(datasets.LabelConfig{
		Files:       files,
		LabelColumn: layout.LabelColumn,
		Positive:    layout.Positive,
		Columns:     layout.MatchColumns,
	})
	if err != nil {
		return nil, err
	}
	return ds, nil
}

func indexByID(records []types.Record) map[string]int {
	out := make(map[string]int, len(records))
	for i, r := range records {
		if _, ok := out[r.ID]; !ok {
			out[r.ID] = i
		}
	}
	return out
}
