package sweep

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/soundprediction/uniblocker/pkg/types"
)

// MetricsFile is the per-dataset result file name.
const MetricsFile = "metrics.json"

// MetricsPath is <resultsDir>/<baseline>/<dataset>/metrics.json.
func MetricsPath(resultsDir, baseline, dataset string) string {
	return filepath.Join(resultsDir, baseline, dataset, MetricsFile)
}

// WriteMetrics writes metrics as two-space indented JSON, creating parent
// directories. Non-ASCII text is written as is.
func WriteMetrics(path string, metrics types.Metrics) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(metrics); err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}

	// trials of one dataset finish concurrently; each writes its own temp file
	tmp, err := os.CreateTemp(filepath.Dir(path), ".metrics-*.json")
	if err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	_, err = tmp.Write(buf.Bytes())
	if err == nil {
		err = tmp.Chmod(0o644)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// ReadMetrics loads a file written by WriteMetrics.
func ReadMetrics(path string) (types.Metrics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m types.Metrics
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return m, nil
}
