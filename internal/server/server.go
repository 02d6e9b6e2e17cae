// Package server exposes the video generation pipeline over HTTP: a JSON API
// for generation and persona discovery, multipart upload for reference style
// extraction, static serving of per-request artifacts, and the usual health
// and metrics endpoints.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumenlabs/lumen/internal/config"
	"github.com/lumenlabs/lumen/internal/health"
	"github.com/lumenlabs/lumen/internal/observe"
	"github.com/lumenlabs/lumen/internal/pipeline"
	"github.com/lumenlabs/lumen/internal/refstyle"
)

// shutdownTimeout bounds graceful drain on Run exit.
const shutdownTimeout = 10 * time.Second

// Config wires a Server. Orchestrator is required.
type Config struct {
	Orchestrator *pipeline.Orchestrator

	// Extractor serves reference style extraction. Nil disables the endpoint.
	Extractor *refstyle.Extractor

	// OutputDir is served read-only under /outputs.
	OutputDir string

	// StyleDir is where extracted style profiles are persisted.
	StyleDir string

	// Health serves /healthz and /readyz. Nil means a checker-less handler.
	Health *health.Handler

	// Server carries the listen address and TLS settings.
	Server config.ServerConfig

	// Metrics instruments HTTP handling. Nil means the process default.
	Metrics *observe.Metrics
}

// Server is the Lumen HTTP front end.
type Server struct {
	orch      *pipeline.Orchestrator
	extractor *refstyle.Extractor
	outputDir string
	styleDir  string
	health    *health.Handler
	cfg       config.ServerConfig
	metrics   *observe.Metrics
}

// New validates the wiring.
func New(cfg Config) (*Server, error) {
	if cfg.Orchestrator == nil {
		return nil, errors.New("server: orchestrator is required")
	}
	h := cfg.Health
	if h == nil {
		h = health.New()
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Server{
		orch:      cfg.Orchestrator,
		extractor: cfg.Extractor,
		outputDir: cfg.OutputDir,
		styleDir:  cfg.StyleDir,
		health:    h,
		cfg:       cfg.Server,
		metrics:   m,
	}, nil
}

// Routes builds the gin engine with all endpoints mounted. The observability
// middleware wraps the whole engine so every route gets a span, a correlation
// ID, and a latency sample.
func (s *Server) Routes() http.Handler {
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", gin.WrapF(s.health.Healthz))
	engine.GET("/readyz", gin.WrapF(s.health.Readyz))
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api")
	api.POST("/generate", s.handleGenerate)
	api.GET("/personas", s.handlePersonas)
	api.POST("/styles/reference", s.handleReferenceStyle)

	if s.outputDir != "" {
		engine.Static("/outputs", s.outputDir)
	}
	return observe.Middleware(s.metrics)(engine)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.Routes(),
	}

	errc := make(chan error, 1)
	go func() {
		if s.cfg.TLS != nil {
			errc <- srv.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
			return
		}
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
