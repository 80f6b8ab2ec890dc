package dto

import (
	"time"

	"github.com/soundprediction/uniblocker/pkg/tracker"
	"github.com/soundprediction/uniblocker/pkg/types"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// RunListRequest holds the query parameters of GET /api/v1/runs
type RunListRequest struct {
	Project string `form:"project"`
	Name    string `form:"name"`
	Tag     string `form:"tag"`
	Status  string `form:"status" binding:"omitempty,oneof=running finished failed"`
}

// Filter converts the request to a tracker filter
func (r RunListRequest) Filter() tracker.RunFilter {
	return tracker.RunFilter{
		Project: r.Project,
		Name:    r.Name,
		Tag:     r.Tag,
		Status:  tracker.RunStatus(r.Status),
	}
}

// RunListResponse lists runs
type RunListResponse struct {
	Runs  []tracker.RunInfo `json:"runs"`
	Total int               `json:"total"`
}

// RunMetricsResponse holds the logged history of a run
type RunMetricsResponse struct {
	RunID   string                `json:"run_id"`
	Summary types.Metrics         `json:"summary"`
	History []tracker.MetricPoint `json:"history"`
}

// ResultResponse is the metrics.json of one baseline and dataset
type ResultResponse struct {
	Baseline  string        `json:"baseline"`
	Dataset   string        `json:"dataset"`
	Path      string        `json:"path"`
	UpdatedAt time.Time     `json:"updated_at"`
	Metrics   types.Metrics `json:"metrics"`
}
