// Package sweep runs baseline joins over a grid of datasets, tokenizers and
// neighbour counts, logging every trial to the experiment tracker and to a
// metrics.json file per dataset.
package sweep

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// DefaultDataRoot is the directory holding one subdirectory per blocking dataset.
const DefaultDataRoot = "data/blocking"

// DefaultExclude lists datasets left out of default sweeps.
var DefaultExclude = []string{"songs", "citeseer-dblp"}

// DefaultNNeighbors is the neighbour-count axis when none is given.
var DefaultNNeighbors = []int{100}

// TrialConfig is one grid point.
type TrialConfig struct {
	DataDir    string `json:"data_dir"`
	Tokenizer  string `json:"tokenizer"`
	NNeighbors int    `json:"n_neighbors"`
}

// Dataset is the dataset name, the base name of DataDir.
func (c TrialConfig) Dataset() string {
	return filepath.Base(filepath.Clean(c.DataDir))
}

// ID identifies the grid point. It is safe to use in file names.
func (c TrialConfig) ID() string {
	return fmt.Sprintf("%s__%s__k%d", sanitize(c.Dataset()), sanitize(c.Tokenizer), c.NNeighbors)
}

// Map returns the configuration logged to the tracker.
func (c TrialConfig) Map() map[string]any {
	return map[string]any{
		"data_dir":    c.DataDir,
		"tokenizer":   c.Tokenizer,
		"n_neighbors": c.NNeighbors,
	}
}

// sanitize maps s onto [A-Za-z0-9_.-]. Any other rune becomes '-' and a
// short hash of s is appended so distinct names stay distinct.
func sanitize(s string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			return r
		}
		return '-'
	}, s)
	clean = strings.ReplaceAll(clean, "..", "-")
	if clean == s {
		return s
	}
	return fmt.Sprintf("%s-%08x", clean, uint32(xxhash.Sum64String(s)))
}

// Grid is a Cartesian parameter space.
type Grid struct {
	DataDirs   []string
	Tokenizers []string
	NNeighbors []int
}

// Size is the number of trials Expand returns.
func (g Grid) Size() int {
	return len(g.DataDirs) * len(g.Tokenizers) * len(g.NNeighbors)
}

// Expand returns every grid point, data directory outermost and neighbour
// count innermost.
func (g Grid) Expand() []TrialConfig {
	trials := make([]TrialConfig, 0, g.Size())
	for _, dir := range g.DataDirs {
		for _, tok := range g.Tokenizers {
			for _, k := range g.NNeighbors {
				trials = append(trials, TrialConfig{DataDir: dir, Tokenizer: tok, NNeighbors: k})
			}
		}
	}
	return trials
}

// DefaultDataDirs lists the subdirectories of root, sorted, skipping the
// names in exclude.
func DefaultDataDirs(root string, exclude []string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() || slices.Contains(exclude, e.Name()) {
			continue
		}
		dirs = append(dirs, filepath.Join(root, e.Name()))
	}
	return dirs, nil
}
