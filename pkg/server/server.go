package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/uniblocker/pkg/config"
	"github.com/soundprediction/uniblocker/pkg/server/handlers"
	"github.com/soundprediction/uniblocker/pkg/tracker"
	"github.com/soundprediction/uniblocker/pkg/types"
)

// Server exposes tracked runs and written results over HTTP.
type Server struct {
	config  *config.Config
	router  *gin.Engine
	tracker *tracker.Tracker
	results handlers.ResultsLocator
	server  *http.Server
	logger  *slog.Logger
}

// New creates a server. tr and results may be nil; the endpoints that need
// them then answer 503.
func New(cfg *config.Config, tr *tracker.Tracker, results handlers.ResultsLocator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:  cfg,
		tracker: tr,
		results: results,
		logger:  logger.With("component", "server"),
	}
}

// Setup builds the router and the underlying http.Server.
func (s *Server) Setup() {
	if s.config.Server.Mode != "" {
		gin.SetMode(s.config.Server.Mode)
	}

	s.router = gin.New()
	s.router.Use(
		gin.Recovery(),
		requestLogger(s.logger),
		corsMiddleware(),
		contextMiddleware(),
	)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.config.Server.Host, strconv.Itoa(s.config.Server.Port)),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) setupRoutes() {
	var (
		pinger handlers.Pinger
		store  handlers.RunStore
	)
	// keep typed nils out of the interfaces
	if s.tracker != nil {
		pinger, store = s.tracker, s.tracker
	}
	health := handlers.NewHealthHandler(pinger)
	runs := handlers.NewRunsHandler(store, s.results)

	s.router.GET("/health", health.HealthCheck)
	s.router.GET("/healthcheck", health.HealthCheck)
	s.router.GET("/health/detailed", health.DetailedHealthCheck)
	s.router.GET("/ready", health.ReadinessCheck)
	s.router.GET("/live", health.LivenessCheck)

	v1 := s.router.Group("/api/v1")
	v1.GET("/runs", runs.ListRuns)
	v1.GET("/runs/:id", runs.GetRun)
	v1.GET("/runs/:id/metrics", runs.GetRunMetrics)
	v1.GET("/results/:baseline/:dataset", runs.GetResult)
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler { return s.router }

// Start blocks serving until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("Starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop drains in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping server")
	return s.server.Shutdown(ctx)
}

// requestLogger logs one line per request; probes are logged at debug.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		case c.FullPath() == "/live" || c.FullPath() == "/ready":
			level = slog.LevelDebug
		}
		logger.Log(c.Request.Context(), level, "Handled request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, X-Run-ID, X-Trial-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// contextMiddleware copies run and trial ids from headers into the request
// context so telemetry records carry them.
func contextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := c.GetHeader("X-Run-ID"); id != "" {
			ctx = context.WithValue(ctx, types.ContextKeyRunID, id)
		}
		if id := c.GetHeader("X-Trial-ID"); id != "" {
			ctx = context.WithValue(ctx, types.ContextKeyTrialID, id)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
