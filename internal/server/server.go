package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/flightontime/flightontime/internal/core/pipeline"
	"github.com/flightontime/flightontime/internal/observability"
	"github.com/flightontime/flightontime/internal/server/handlers"
	servermw "github.com/flightontime/flightontime/internal/server/middleware"
)

// Default timeouts used when Options leaves them zero.
const (
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
	DefaultIdleTimeout  = 120 * time.Second
)

// Options wires the server to the admission pipeline and its collaborators.
type Options struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MetricsPort is the Prometheus exporter port proxied at /metrics.
	MetricsPort int

	// Pipeline runs on every request. Nil serves routes without admission control.
	Pipeline *pipeline.Pipeline

	Health    *handlers.HealthManager
	Admission *handlers.AdmissionHandler

	Build    handlers.BuildInfo
	Identity *appidentity.Identity

	// AdminToken enables POST /admin/signal when non-empty.
	AdminToken string
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	opts   Options
}

// New creates a new HTTP server instance
func New(opts Options) *Server {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Health == nil {
		opts.Health = handlers.NewHealthManager(opts.Build.Version)
	}

	r := chi.NewRouter()

	// RequestID -> Metrics -> Recovery -> admission pipeline. The client key
	// is resolved by the rate limit stage, so chi's RealIP is not used.
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)
	if opts.Pipeline != nil {
		r.Use(opts.Pipeline.Handler)
	}

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	s := &Server{
		router: r,
		opts:   opts,
	}

	s.registerRoutes()

	return s
}

// Start listens on the configured address and blocks until the server stops.
func (s *Server) Start() error {
	addr := s.Addr()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}

	observability.ServerLogger.Info("Starting HTTP server",
		zap.String("addr", addr),
		zap.Strings("admission_stages", s.stageNames()),
		zap.Duration("read_timeout", s.opts.ReadTimeout),
		zap.Duration("write_timeout", s.opts.WriteTimeout))

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	observability.ServerLogger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
}

// Port returns the server port for testing
func (s *Server) Port() int {
	return s.opts.Port
}

func (s *Server) stageNames() []string {
	if s.opts.Pipeline == nil {
		return nil
	}
	return s.opts.Pipeline.Stages()
}
