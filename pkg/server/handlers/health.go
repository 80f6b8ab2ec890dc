package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/uniblocker/pkg/server/dto"
)

// Set with -ldflags "-X .../handlers.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

const (
	serviceName  = "uniblocker"
	probeTimeout = 5 * time.Second
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	tracker Pinger
	started time.Time
}

// NewHealthHandler returns a handler probing tracker for readiness. A nil
// tracker makes the service report not ready.
func NewHealthHandler(tracker Pinger) *HealthHandler {
	return &HealthHandler{tracker: tracker, started: time.Now()}
}

func (h *HealthHandler) status(s string) dto.HealthResponse {
	return dto.HealthResponse{
		Status:    s,
		Service:   serviceName,
		Version:   Version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// HealthCheck handles GET /health.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, h.status("healthy"))
}

// LivenessCheck handles GET /live.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, h.status("alive"))
}

// ReadinessCheck handles GET /ready: 200 once the run tracker answers a ping.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
	defer cancel()

	tracker := probe(ctx, h.tracker)
	resp := dto.ReadinessResponse{
		HealthResponse: h.status("ready"),
		Checks: map[string]dto.CheckResult{
			"tracker": tracker,
			"system":  {Status: "healthy", Uptime: time.Since(h.started).String()},
		},
	}

	code := http.StatusOK
	if tracker.Status != "healthy" {
		resp.Status = "not_ready"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

func probe(ctx context.Context, p Pinger) dto.CheckResult {
	if p == nil {
		return dto.CheckResult{Status: "unhealthy", Error: "tracker not initialized"}
	}
	start := time.Now()
	res := dto.CheckResult{Status: "healthy"}
	if err := p.Ping(ctx); err != nil {
		res.Status, res.Error = "unhealthy", err.Error()
	}
	res.Duration = time.Since(start).String()
	return res
}

// DetailedHealthCheck handles GET /health/detailed.
func (h *HealthHandler) DetailedHealthCheck(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	const mb = 1 << 20

	c.JSON(http.StatusOK, dto.DetailedHealthResponse{
		HealthResponse: h.status("healthy"),
		Build: dto.BuildInfo{
			Version:   Version,
			GitCommit: GitCommit,
			BuildTime: BuildTime,
			GoVersion: runtime.Version(),
		},
		Runtime: dto.RuntimeStats{
			HeapAllocMB: float64(m.HeapAlloc) / mb,
			StackMB:     float64(m.StackSys) / mb,
			HeapObjects: m.HeapObjects,
			Goroutines:  runtime.NumGoroutine(),
			GCCycles:    m.NumGC,
		},
		Uptime: time.Since(h.started).String(),
	})
}
