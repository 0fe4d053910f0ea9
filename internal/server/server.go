// Package server exposes the pipeline over HTTP: liveness and readiness
// probes, the Prometheus scrape, counter catalog, the paginated query
// API, source liveness, bulk export, and inspection of the quarantine
// and dead-letter areas.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nagendra0018/dcn/internal/config"
	"github.com/nagendra0018/dcn/internal/intake"
	"github.com/nagendra0018/dcn/internal/logging"
	"github.com/nagendra0018/dcn/internal/store"
	"github.com/nagendra0018/dcn/internal/validate"
)

// Deps are the pipeline components the HTTP surface reads from.
type Deps struct {
	Store       *store.Store
	Schemas     *validate.SchemaRegistry
	Sources     *intake.Registry
	Quarantine  *validate.QuarantineStore
	DeadLetters *store.DeadLetterLog

	// MetricsHandler serves GET /metrics.
	MetricsHandler http.Handler

	// Ready reports whether the pipeline accepts and persists samples.
	Ready func() bool

	// Reclassify replays quarantined samples against the current schema
	// registry. Nil disables POST /api/v1/quarantine/reclassify.
	Reclassify func(ctx context.Context) (int, error)
}

// Server is the HTTP API server.
type Server struct {
	addr      string
	deps      Deps
	server    *http.Server
	logger    *slog.Logger
	startTime time.Time
}

// New creates the HTTP server for the given listen address.
func New(cfg *config.Config, deps Deps) *Server {
	return &Server{
		addr:   cfg.Listen,
		deps:   deps,
		logger: logging.Component("server"),
	}
}

// Router builds the gin handler tree. Exposed so tests can drive the
// routes without a listener.
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)
	if s.deps.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(s.deps.MetricsHandler))
	}

	api := r.Group("/api/v1")
	api.GET("/counters", s.handleCounters)
	api.GET("/counters/:type", s.handleCountersByType)
	api.POST("/query", s.handleQuery)
	api.GET("/sources", s.handleSources)
	api.GET("/export/:format", s.handleExport)
	api.GET("/quarantine", s.handleQuarantine)
	api.POST("/quarantine/reclassify", s.handleReclassify)
	api.GET("/deadletter", s.handleDeadLetter)

	return r
}

// Start begins serving requests. It returns once the listener is bound;
// request handling continues in the background until Stop.
func (s *Server) Start() error {
	s.server = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.startTime = time.Now()
	s.logger.Info("http api listening", "address", listener.Addr().String())

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server stopped", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
