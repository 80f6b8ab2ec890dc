package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/soundprediction/uniblocker/pkg/types"
)

// RunFilter narrows ListRuns. Empty fields match everything.
type RunFilter struct {
	Project string
	Name    string
	Tag     string
	Status  RunStatus
}

const runColumns = `id, project, name, dir, tags, config, status, error, summary, created_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (*RunInfo, error) {
	var (
		info                       RunInfo
		tags, cfg, summary, status string
		createdAt, finishedAt      string
	)
	if err := s.Scan(&info.ID, &info.Project, &info.Name, &info.Dir, &tags, &cfg, &status, &info.Error, &summary, &createdAt, &finishedAt); err != nil {
		return nil, err
	}
	info.Status = RunStatus(status)
	if err := json.Unmarshal([]byte(tags), &info.Tags); err != nil {
		return nil, fmt.Errorf("bad tags for run %s: %w", info.ID, err)
	}
	if err := json.Unmarshal([]byte(cfg), &info.Config); err != nil {
		return nil, fmt.Errorf("bad config for run %s: %w", info.ID, err)
	}
	if err := json.Unmarshal([]byte(summary), &info.Summary); err != nil {
		return nil, fmt.Errorf("bad summary for run %s: %w", info.ID, err)
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		info.CreatedAt = t
	}
	if finishedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, finishedAt); err == nil {
			info.FinishedAt = &t
		}
	}
	return &info, nil
}

// ListRuns returns the runs matching filter, newest first.
func (t *Tracker) ListRuns(ctx context.Context, filter RunFilter) ([]RunInfo, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any
	if filter.Project != "" {
		query += ` AND project = ?`
		args = append(args, filter.Project)
	}
	if filter.Name != "" {
		query += ` AND name = ?`
		args = append(args, filter.Name)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []RunInfo{}
	for rows.Next() {
		info, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		if filter.Tag != "" && !info.HasTag(filter.Tag) {
			continue
		}
		runs = append(runs, *info)
	}
	return runs, rows.Err()
}

// GetRun returns one run.
func (t *Tracker) GetRun(ctx context.Context, id string) (*RunInfo, error) {
	row := t.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	info, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return info, nil
}

// RunMetrics returns every logged value of a run ordered by step and name.
func (t *Tracker) RunMetrics(ctx context.Context, id string) ([]MetricPoint, error) {
	if _, err := t.GetRun(ctx, id); err != nil {
		return nil, err
	}
	rows, err := t.db.QueryContext(ctx,
		`SELECT step, name, value, logged_at FROM run_metrics WHERE run_id = ? ORDER BY step, name`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	points := []MetricPoint{}
	for rows.Next() {
		var (
			p        MetricPoint
			loggedAt string
		)
		if err := rows.Scan(&p.Step, &p.Name, &p.Value, &loggedAt); err != nil {
			return nil, err
		}
		p.LoggedAt, _ = time.Parse(time.RFC3339Nano, loggedAt)
		points = append(points, p)
	}
	return points, rows.Err()
}

// LatestSummary returns the summary of the newest finished run with name.
func (t *Tracker) LatestSummary(ctx context.Context, project, name string) (types.Metrics, error) {
	runs, err := t.ListRuns(ctx, RunFilter{Project: project, Name: name, Status: StatusFinished})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, name)
	}
	return runs[0].Summary, nil
}
