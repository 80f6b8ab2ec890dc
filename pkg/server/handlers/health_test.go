package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/uniblocker/pkg/server/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func init() {
	gin.SetMode(gin.TestMode)
}

func call(handler gin.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	handler(c)
	return w
}

func TestHealthCheck(t *testing.T) {
	w := call(NewHealthHandler(nil).HealthCheck)
	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, "uniblocker", response["service"])
	assert.Contains(t, response, "timestamp")
	assert.Contains(t, response, "version")
}

func TestReadinessCheck(t *testing.T) {
	tests := []struct {
		name  string
		store Pinger
		code  int
	}{
		{"no tracker", nil, http.StatusServiceUnavailable},
		{"healthy", pingFunc(func(context.Context) error { return nil }), http.StatusOK},
		{"unreachable", pingFunc(func(context.Context) error { return errors.New("database is locked") }), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := call(NewHealthHandler(tt.store).ReadinessCheck)
			assert.Equal(t, tt.code, w.Code)

			var resp dto.ReadinessResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "healthy", resp.Checks["system"].Status)
			if tt.code == http.StatusOK {
				assert.Equal(t, "ready", resp.Status)
				assert.Equal(t, "healthy", resp.Checks["tracker"].Status)
			} else {
				assert.Equal(t, "not_ready", resp.Status)
				assert.NotEmpty(t, resp.Checks["tracker"].Error)
			}
		})
	}
}

func TestDetailedHealthCheck(t *testing.T) {
	w := call(NewHealthHandler(nil).DetailedHealthCheck)
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.DetailedHealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, Version, resp.Build.Version)
	assert.Equal(t, runtime.Version(), resp.Build.GoVersion)
	assert.Positive(t, resp.Runtime.Goroutines)
	assert.NotEmpty(t, resp.Uptime)
}

func TestLivenessCheck(t *testing.T) {
	w := call(NewHealthHandler(nil).LivenessCheck)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"alive"`)
}
