package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/soundprediction/uniblocker/pkg/types"
	"github.com/soundprediction/uniblocker/pkg/utils"
)

// LoadOrCreate returns the stored checkpoint of trialID, or saves and
// returns a new pending one. existed reports which happened.
func (m *CheckpointManager) LoadOrCreate(ctx context.Context, trialID, baseline, dataset string, config map[string]any) (cp *TrialCheckpoint, existed bool, err error) {
	if cp, err = m.Load(ctx, trialID); err != nil || cp != nil {
		return cp, cp != nil, err
	}
	cp = NewCheckpoint(trialID, baseline, dataset, config)
	if err := m.Save(ctx, cp); err != nil {
		return nil, false, err
	}
	return cp, false, nil
}

// MarkRunning counts a new attempt.
func (m *CheckpointManager) MarkRunning(ctx context.Context, cp *TrialCheckpoint, runID string) error {
	cp.Status = StatusRunning
	cp.AttemptCount++
	cp.RunID = runID
	return m.Save(ctx, cp)
}

// MarkCompleted stores the final metrics and clears earlier failures.
func (m *CheckpointManager) MarkCompleted(ctx context.Context, cp *TrialCheckpoint, metrics types.Metrics) error {
	cp.Status = StatusCompleted
	cp.Metrics = metrics
	cp.LastError, cp.LastErrorStack = "", ""
	return m.Save(ctx, cp)
}

// SaveWithError marks cp failed with err. The stack of a recovered panic is
// kept when err carries one.
func (m *CheckpointManager) SaveWithError(ctx context.Context, cp *TrialCheckpoint, err error) error {
	stack := debug.Stack()
	var pe *utils.PanicError
	if errors.As(err, &pe) {
		stack = pe.Stack
	}
	cp.Status = StatusFailed
	cp.LastError = err.Error()
	cp.LastErrorStack = string(stack)
	return m.Save(ctx, cp)
}

// RecordError marks the stored checkpoint of trialID failed.
func (m *CheckpointManager) RecordError(ctx context.Context, trialID string, err error, stack string) error {
	cp, lerr := m.Load(ctx, trialID)
	if lerr != nil {
		return lerr
	}
	if cp == nil {
		return fmt.Errorf("no checkpoint for trial %s", trialID)
	}
	cp.Status = StatusFailed
	cp.LastError = err.Error()
	cp.LastErrorStack = stack
	return m.Save(ctx, cp)
}

// FindStalled returns running trials not updated within d, usually left
// behind by a killed sweep.
func (m *CheckpointManager) FindStalled(ctx context.Context, d time.Duration) ([]*TrialCheckpoint, error) {
	all, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-d)
	var out []*TrialCheckpoint
	for _, cp := range all {
		if cp.stalled(cutoff) {
			out = append(out, cp)
		}
	}
	return out, nil
}

// CleanOld deletes checkpoints not updated within maxAge and returns how
// many were removed.
func (m *CheckpointManager) CleanOld(ctx context.Context, maxAge time.Duration) (int, error) {
	all, err := m.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, cp := range all {
		if !cp.LastUpdatedAt.Before(cutoff) {
			continue
		}
		if m.Delete(ctx, cp.TrialID) == nil {
			removed++
		}
	}
	return removed, nil
}

// CheckpointStatistics counts checkpoints per status and per baseline.
type CheckpointStatistics struct {
	Total      int            `json:"total"`
	Completed  int            `json:"completed"`
	Running    int            `json:"running"`
	Failed     int            `json:"failed"`
	Pending    int            `json:"pending"`
	ByBaseline map[string]int `json:"by_baseline"`
}

// GetStatistics summarizes every stored checkpoint.
func (m *CheckpointManager) GetStatistics(ctx context.Context) (*CheckpointStatistics, error) {
	all, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	stats := &CheckpointStatistics{Total: len(all), ByBaseline: map[string]int{}}
	for _, cp := range all {
		stats.ByBaseline[cp.Baseline]++
		switch cp.Status {
		case StatusCompleted:
			stats.Completed++
		case StatusRunning:
			stats.Running++
		case StatusFailed:
			stats.Failed++
		default:
			stats.Pending++
		}
	}
	return stats, nil
}
