// Package checkpoint persists per-trial progress of a sweep so that an
// interrupted or partially failed sweep can be resumed.
package checkpoint

import (
	"fmt"
	"strings"
	"time"

	"github.com/soundprediction/uniblocker/pkg/types"
)

// TrialStatus is the state of one sweep trial.
type TrialStatus string

const (
	StatusPending   TrialStatus = "pending"
	StatusRunning   TrialStatus = "running"
	StatusCompleted TrialStatus = "completed"
	StatusFailed    TrialStatus = "failed"
)

// TrialCheckpoint is the on-disk record of one trial.
type TrialCheckpoint struct {
	TrialID  string      `json:"trial_id"`
	Baseline string      `json:"baseline"`
	Dataset  string      `json:"dataset"`
	Status   TrialStatus `json:"status"`

	CreatedAt      time.Time `json:"created_at"`
	LastUpdatedAt  time.Time `json:"last_updated_at"`
	AttemptCount   int       `json:"attempt_count"`
	LastError      string    `json:"last_error,omitempty"`
	LastErrorStack string    `json:"last_error_stack,omitempty"`

	// Config is the trial configuration as logged to the tracker.
	Config  map[string]any `json:"config,omitempty"`
	RunID   string         `json:"run_id,omitempty"`
	Metrics types.Metrics  `json:"metrics,omitempty"`
}

// NewCheckpoint returns a pending checkpoint for a trial.
func NewCheckpoint(trialID, baseline, dataset string, config map[string]any) *TrialCheckpoint {
	now := time.Now()
	return &TrialCheckpoint{
		TrialID:       trialID,
		Baseline:      baseline,
		Dataset:       dataset,
		Status:        StatusPending,
		CreatedAt:     now,
		LastUpdatedAt: now,
		Config:        config,
	}
}

// IsDone reports whether the trial completed.
func (c *TrialCheckpoint) IsDone() bool {
	return c.Status == StatusCompleted
}

// CanRetry reports whether another attempt is allowed: the trial has not
// completed, has attempts left and was created within maxAge.
func (c *TrialCheckpoint) CanRetry(maxAttempts int, maxAge time.Duration) bool {
	return !c.IsDone() && c.AttemptCount < maxAttempts && time.Since(c.CreatedAt) <= maxAge
}

func (c *TrialCheckpoint) stalled(cutoff time.Time) bool {
	return c.Status == StatusRunning && c.LastUpdatedAt.Before(cutoff)
}

// Summary renders the checkpoint for the checkpoints CLI.
func (c *TrialCheckpoint) Summary() string {
	var b strings.Builder
	line := func(label string, v any) { fmt.Fprintf(&b, "%-13s %v\n", label+":", v) }

	line("Trial", c.TrialID)
	line("Baseline", c.Baseline)
	line("Dataset", c.Dataset)
	line("Status", c.Status)
	line("Attempts", c.AttemptCount)
	line("Created", c.CreatedAt.Format(time.RFC3339))
	line("Last Updated", c.LastUpdatedAt.Format(time.RFC3339))
	if c.RunID != "" {
		line("Run", c.RunID)
	}
	if c.LastError != "" {
		line("Last Error", c.LastError)
	}
	for _, k := range c.Metrics.Keys() {
		fmt.Fprintf(&b, "  %s: %g\n", k, c.Metrics[k])
	}
	return b.String()
}
