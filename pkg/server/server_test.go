package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/uniblocker/pkg/config"
	"github.com/soundprediction/uniblocker/pkg/server/dto"
	"github.com/soundprediction/uniblocker/pkg/sweep"
	"github.com/soundprediction/uniblocker/pkg/tracker"
	"github.com/soundprediction/uniblocker/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host: "localhost",
			Port: 8080,
			Mode: gin.TestMode,
		},
	}
}

func newTestServer(t *testing.T) (*Server, *tracker.Tracker, string) {
	t.Helper()
	tr, err := tracker.Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })

	results := t.TempDir()
	s := New(testConfig(), tr, func(string) (string, error) { return results, nil }, nil)
	s.Setup()
	return s, tr, results
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestSetup(t *testing.T) {
	server := New(testConfig(), nil, nil, nil)
	server.Setup()

	require.NotNil(t, server.router)
	require.NotNil(t, server.server)
	assert.Equal(t, "localhost:8080", server.server.Addr)
}

func TestHealthEndpoints(t *testing.T) {
	bare := New(testConfig(), nil, nil, nil)
	bare.Setup()
	withTracker, _, _ := newTestServer(t)

	tests := []struct {
		name   string
		server *Server
		path   string
		code   int
	}{
		{"health", bare, "/health", http.StatusOK},
		{"healthcheck", bare, "/healthcheck", http.StatusOK},
		{"live", bare, "/live", http.StatusOK},
		{"detailed", bare, "/health/detailed", http.StatusOK},
		{"ready without tracker", bare, "/ready", http.StatusServiceUnavailable},
		{"ready with tracker", withTracker, "/ready", http.StatusOK},
		{"runs without tracker", bare, "/api/v1/runs", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, serve(tt.server, http.MethodGet, tt.path).Code)
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	server := New(testConfig(), nil, nil, nil)
	server.Setup()

	w := serve(server, http.MethodOptions, "/health")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Methods"))
}

func TestRunsAPI(t *testing.T) {
	s, tr, _ := newTestServer(t)
	ctx := context.Background()

	for _, name := range []string{"sparse_join/abt-buy", "nmslib_join/abt-buy"} {
		run, err := tr.Init(ctx, tracker.RunOptions{
			Project: sweep.DefaultProject,
			Name:    name,
			Dir:     t.TempDir(),
			Tags:    []string{filepath.Dir(name)},
		})
		require.NoError(t, err)
		require.NoError(t, run.Log(ctx, types.Metrics{"recall": 0.75}))
		require.NoError(t, run.Finish(ctx, nil))
	}

	w := serve(s, http.MethodGet, "/api/v1/runs?tag=sparse_join")
	require.Equal(t, http.StatusOK, w.Code)
	var list dto.RunListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Total)
	run := list.Runs[0]
	assert.Equal(t, "sparse_join/abt-buy", run.Name)

	w = serve(s, http.MethodGet, "/api/v1/runs?project="+sweep.DefaultProject)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Total)

	w = serve(s, http.MethodGet, "/api/v1/runs?status=bogus")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(s, http.MethodGet, "/api/v1/runs/"+run.ID)
	require.Equal(t, http.StatusOK, w.Code)
	var info tracker.RunInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, tracker.StatusFinished, info.Status)

	w = serve(s, http.MethodGet, "/api/v1/runs/"+run.ID+"/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	var metrics dto.RunMetricsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &metrics))
	assert.Equal(t, 0.75, metrics.Summary["recall"])
	require.Len(t, metrics.History, 1)

	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/api/v1/runs/missing").Code)
	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/api/v1/runs/missing/metrics").Code)
}

func TestResultsAPI(t *testing.T) {
	s, _, results := newTestServer(t)
	require.NoError(t, sweep.WriteMetrics(sweep.MetricsPath(results, "sparse_join", "abt-buy"), types.Metrics{"recall": 0.9}))

	w := serve(s, http.MethodGet, "/api/v1/results/sparse_join/abt-buy")
	require.Equal(t, http.StatusOK, w.Code)
	var res dto.ResultResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 0.9, res.Metrics["recall"])
	assert.Equal(t, "abt-buy", res.Dataset)

	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/api/v1/results/sparse_join/songs").Code)
	assert.Equal(t, http.StatusBadRequest, serve(s, http.MethodGet, "/api/v1/results/sparse_join/..").Code)
}

func TestRequestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	s := New(testConfig(), nil, nil, logger)
	s.Setup()

	serve(s, http.MethodGet, "/live")
	assert.Empty(t, buf.String(), "probes log at debug")

	serve(s, http.MethodGet, "/api/v1/runs")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "server", entry["component"])
	assert.Equal(t, "/api/v1/runs", entry["path"])
	assert.EqualValues(t, http.StatusServiceUnavailable, entry["status"])
}

func TestServerConfig(t *testing.T) {
	tests := []struct {
		name         string
		host         string
		port         int
		expectedAddr string
	}{
		{"localhost:8080", "localhost", 8080, "localhost:8080"},
		{"0.0.0.0:3000", "0.0.0.0", 3000, "0.0.0.0:3000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Server.Host, cfg.Server.Port = tt.host, tt.port

			server := New(cfg, nil, nil, nil)
			server.Setup()
			assert.Equal(t, tt.expectedAddr, server.server.Addr)
		})
	}
}
