package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/soundprediction/uniblocker/pkg/types"
	"github.com/soundprediction/uniblocker/pkg/utils"
	"gopkg.in/yaml.v3"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	StatusRunning  RunStatus = "running"
	StatusFinished RunStatus = "finished"
	StatusFailed   RunStatus = "failed"
)

// Artifact file names written into the run directory.
const (
	ConfigFile  = "config.yaml"
	SummaryFile = "summary.json"
	HistoryFile = "history.parquet"
)

// RunOptions configures Init.
type RunOptions struct {
	Project string
	Name    string
	// Dir is the parent directory of the run directory.
	Dir    string
	Config map[string]any
	Tags   []string
}

// RunInfo is the persisted view of a run.
type RunInfo struct {
	ID         string         `json:"id"`
	Project    string         `json:"project"`
	Name       string         `json:"name"`
	Dir        string         `json:"dir"`
	Tags       []string       `json:"tags"`
	Config     map[string]any `json:"config"`
	Status     RunStatus      `json:"status"`
	Error      string         `json:"error,omitempty"`
	Summary    types.Metrics  `json:"summary"`
	CreatedAt  time.Time      `json:"created_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// HasTag reports whether the run carries tag.
func (r RunInfo) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// MetricPoint is one logged value.
type MetricPoint struct {
	Step     int64     `json:"step" parquet:"step"`
	Name     string    `json:"name" parquet:"name"`
	Value    float64   `json:"value" parquet:"value"`
	LoggedAt time.Time `json:"logged_at" parquet:"logged_at,timestamp"`
}

// Run is an active run.
type Run struct {
	tracker *Tracker

	mu      sync.Mutex
	info    RunInfo
	step    int64
	history []MetricPoint
}

// Init starts a run, creates its directory and writes config.yaml.
func (t *Tracker) Init(ctx context.Context, opts RunOptions) (*Run, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("run name is required")
	}
	if opts.Config == nil {
		opts.Config = map[string]any{}
	}
	if opts.Tags == nil {
		opts.Tags = []string{}
	}

	id := utils.GenerateUUID()
	now := time.Now().UTC()
	dir := filepath.Join(opts.Dir, fmt.Sprintf("run-%s-%s", now.Format("20060102_150405"), id[:8]))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	cfgYAML, err := yaml.Marshal(opts.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ConfigFile), cfgYAML, 0644); err != nil {
		return nil, fmt.Errorf("failed to write run config: %w", err)
	}

	tags, _ := json.Marshal(opts.Tags)
	cfgJSON, err := json.Marshal(opts.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run config: %w", err)
	}
	_, err = t.db.ExecContext(ctx, `
		INSERT INTO runs (id, project, name, dir, tags, config, status, error, summary, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, '', '{}', ?, '')`,
		id, opts.Project, opts.Name, dir, string(tags), string(cfgJSON), string(StatusRunning), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}

	t.logger.Debug("Started run", "run_id", id, "name", opts.Name, "dir", dir)
	return &Run{
		tracker: t,
		info: RunInfo{
			ID:        id,
			Project:   opts.Project,
			Name:      opts.Name,
			Dir:       dir,
			Tags:      opts.Tags,
			Config:    opts.Config,
			Status:    StatusRunning,
			Summary:   types.Metrics{},
			CreatedAt: now,
		},
	}, nil
}

// ID returns the run id.
func (r *Run) ID() string { return r.info.ID }

// Dir returns the run directory.
func (r *Run) Dir() string { return r.info.Dir }

// Summary returns a copy of the latest value of every metric.
func (r *Run) Summary() types.Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info.Summary.Clone()
}

// Log records one step of metrics and updates the summary.
func (r *Run) Log(ctx context.Context, metrics types.Metrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.info.Status != StatusRunning {
		return ErrRunFinished
	}

	now := time.Now().UTC()
	points := make([]MetricPoint, 0, len(metrics))
	for _, name := range metrics.Keys() {
		points = append(points, MetricPoint{Step: r.step, Name: name, Value: metrics[name], LoggedAt: now})
	}

	tx, err := r.tracker.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to log metrics: %w", err)
	}
	for _, p := range points {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_metrics (run_id, step, name, value, logged_at) VALUES (?, ?, ?, ?, ?)`,
			r.info.ID, p.Step, p.Name, p.Value, now.Format(time.RFC3339Nano)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to log metrics: %w", err)
		}
	}
	summary := r.info.Summary.Clone().Merge(metrics)
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE runs SET summary = ? WHERE id = ?`, string(summaryJSON), r.info.ID); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to update summary: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to log metrics: %w", err)
	}

	r.info.Summary = summary
	r.history = append(r.history, points...)
	r.step++
	return nil
}

// Finish marks the run finished, or failed when runErr is not nil, and
// writes summary.json and history.parquet. Finishing twice is a no-op.
func (r *Run) Finish(ctx context.Context, runErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.info.Status != StatusRunning {
		return nil
	}

	status, msg := StatusFinished, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	now := time.Now().UTC()

	summaryJSON, err := json.MarshalIndent(r.info.Summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.info.Dir, SummaryFile), summaryJSON, 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	if err := utils.WriteParquetFile(filepath.Join(r.info.Dir, HistoryFile), r.history); err != nil {
		return err
	}

	_, err = r.tracker.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), msg, now.Format(time.RFC3339Nano), r.info.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	r.info.Status, r.info.Error, r.info.FinishedAt = status, msg, &now
	r.tracker.logger.Debug("Finished run", "run_id", r.info.ID, "status", status)
	return nil
}

// Info returns a snapshot of the run.
func (r *Run) Info() RunInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	info := r.info
	info.Summary = r.info.Summary.Clone()
	return info
}
