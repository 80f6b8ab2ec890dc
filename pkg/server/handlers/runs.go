package handlers

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/uniblocker/pkg/server/dto"
	"github.com/soundprediction/uniblocker/pkg/sweep"
	"github.com/soundprediction/uniblocker/pkg/tracker"
	"github.com/soundprediction/uniblocker/pkg/utils"
)

// RunStore is the read side of the experiment tracker.
type RunStore interface {
	ListRuns(ctx context.Context, filter tracker.RunFilter) ([]tracker.RunInfo, error)
	GetRun(ctx context.Context, id string) (*tracker.RunInfo, error)
	RunMetrics(ctx context.Context, id string) ([]tracker.MetricPoint, error)
}

// ResultsLocator returns the results directory of a baseline.
type ResultsLocator func(baseline string) (string, error)

// RunsHandler serves tracker runs and metrics files
type RunsHandler struct {
	store   RunStore
	results ResultsLocator
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(store RunStore, results ResultsLocator) *RunsHandler {
	return &RunsHandler{store: store, results: results}
}

func (h *RunsHandler) unavailable(c *gin.Context) bool {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
			Error: "tracker not initialized",
			Code:  http.StatusServiceUnavailable,
		})
		return true
	}
	return false
}

func notFoundOr500(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, tracker.ErrRunNotFound) || errors.Is(err, os.ErrNotExist) {
		code = http.StatusNotFound
	}
	c.JSON(code, dto.ErrorResponse{Error: http.StatusText(code), Message: err.Error(), Code: code})
}

// ListRuns handles GET /api/v1/runs
func (h *RunsHandler) ListRuns(c *gin.Context) {
	if h.unavailable(c) {
		return
	}
	var req dto.RunListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid query", Message: err.Error(), Code: http.StatusBadRequest})
		return
	}

	runs, err := h.store.ListRuns(c.Request.Context(), req.Filter())
	if err != nil {
		notFoundOr500(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.RunListResponse{Runs: runs, Total: len(runs)})
}

// GetRun handles GET /api/v1/runs/:id
func (h *RunsHandler) GetRun(c *gin.Context) {
	if h.unavailable(c) {
		return
	}
	run, err := h.store.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		notFoundOr500(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// GetRunMetrics handles GET /api/v1/runs/:id/metrics
func (h *RunsHandler) GetRunMetrics(c *gin.Context) {
	if h.unavailable(c) {
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	run, err := h.store.GetRun(ctx, id)
	if err != nil {
		notFoundOr500(c, err)
		return
	}
	history, err := h.store.RunMetrics(ctx, id)
	if err != nil {
		notFoundOr500(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.RunMetricsResponse{RunID: id, Summary: run.Summary, History: history})
}

// GetResult handles GET /api/v1/results/:baseline/:dataset
func (h *RunsHandler) GetResult(c *gin.Context) {
	baseline, dataset := c.Param("baseline"), c.Param("dataset")
	if utils.ValidateID(baseline) != nil || utils.ValidateID(dataset) != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid path", Code: http.StatusBadRequest})
		return
	}
	if h.results == nil {
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "results not configured", Code: http.StatusServiceUnavailable})
		return
	}
	dir, err := h.results(baseline)
	if err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "unknown baseline", Message: err.Error(), Code: http.StatusNotFound})
		return
	}

	path := sweep.MetricsPath(dir, baseline, dataset)
	info, err := os.Stat(path)
	if err != nil {
		notFoundOr500(c, err)
		return
	}
	metrics, err := sweep.ReadMetrics(path)
	if err != nil {
		notFoundOr500(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ResultResponse{
		Baseline:  baseline,
		Dataset:   dataset,
		Path:      path,
		UpdatedAt: info.ModTime().UTC(),
		Metrics:   metrics,
	})
}
