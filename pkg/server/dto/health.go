package dto

// HealthResponse answers /health and /live.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version,omitempty"`
	Timestamp string `json:"timestamp"`
}

// CheckResult is the outcome of one readiness probe.
type CheckResult struct {
	Status   string `json:"status"`
	Duration string `json:"duration,omitempty"`
	Uptime   string `json:"uptime,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ReadinessResponse answers /ready.
type ReadinessResponse struct {
	HealthResponse
	Checks map[string]CheckResult `json:"checks"`
}

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// RuntimeStats is a snapshot of the Go runtime.
type RuntimeStats struct {
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	StackMB     float64 `json:"stack_mb"`
	HeapObjects uint64  `json:"heap_objects"`
	Goroutines  int     `json:"goroutines"`
	GCCycles    uint32  `json:"gc_cycles"`
}

// DetailedHealthResponse answers /health/detailed.
type DetailedHealthResponse struct {
	HealthResponse
	Build   BuildInfo    `json:"build"`
	Runtime RuntimeStats `json:"runtime"`
	Uptime  string       `json:"uptime"`
}
