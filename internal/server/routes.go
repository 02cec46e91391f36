package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/flightontime/flightontime/internal/core"
	"github.com/flightontime/flightontime/internal/core/auth"
	"github.com/flightontime/flightontime/internal/observability"
	"github.com/flightontime/flightontime/internal/server/handlers"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	health := s.opts.Health
	s.router.Get("/health", health.HealthHandler)
	s.router.Get("/health/live", health.LivenessHandler)
	s.router.Get("/health/ready", health.ReadinessHandler)
	s.router.Get("/health/startup", health.StartupHandler)

	s.router.Get("/version", handlers.NewVersionHandler(s.opts.Build, s.opts.Identity))
	s.router.Get("/metrics", metricsHandler(s.opts.MetricsPort))

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", handlers.APIHealthHandler)

		r.With(auth.RequireAuthenticated).Get("/me", handlers.MeHandler)

		if s.opts.Admission != nil {
			r.With(auth.RequireRole(core.RoleAdmin)).Get("/admin/ratelimit", s.opts.Admission.ServeHTTP)
		}
	})

	s.registerAdminEndpoint()
}

// registerAdminEndpoint exposes the gofulmen signal endpoint when an admin
// token is configured.
func (s *Server) registerAdminEndpoint() {
	logger := observability.ServerLogger

	if s.opts.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no admin token set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.opts.AdminToken,
		RateLimit: 10,
		RateBurst: 5,
		Manager:   nil, // global manager
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("rate_limit", "10/min, burst 5"))
		logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
	}
}
