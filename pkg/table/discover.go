package table

import (
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// Discover returns the table files under dir. Explicit files are joined to
// dir in the given order; otherwise dir is walked recursively for files whose
// logical format is one of exts (e.g. "parquet"), returned sorted.
func Discover(dir string, files []string, exts []string) ([]string, error) {
	if len(files) > 0 {
		out := make([]string, len(files))
		for i, f := range files {
			out[i] = filepath.Join(dir, f)
		}
		return out, nil
	}

	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		want[strings.TrimPrefix(strings.ToLower(e), ".")] = true
	}

	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if want[Format(path)] {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(out)
	return out, nil
}
