// Package core provides the HTTP chassis for the SEEP chat service. It owns
// the chi router and enforces cross-cutting concerns (recovery, logging,
// compression, metrics and sessions) before requests reach the handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"seep/internal/config"
)

// MetricsCollector defines the interface for recording API telemetry.
type MetricsCollector interface {
	// RecordRequest records latency and count for one request. endpoint is
	// the matched route pattern, never the raw path.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// RouteRegistrar mounts a group of handlers on the session-aware router.
// Registrars are supplied by main so core never imports handler packages.
type RouteRegistrar func(r chi.Router)

// Server encapsulates the dependencies of the HTTP surface, allowing easy
// injection during testing.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   MetricsCollector

	// MetricsHandler is mounted at /metrics when non-nil.
	MetricsHandler http.Handler

	// SessionMiddleware attaches the visitor session to every registrar route.
	SessionMiddleware func(http.Handler) http.Handler

	// RateLimitStore backs the RateLimit middleware. Nil disables limiting.
	RateLimitStore RateLimitStore

	HealthChecks    []HealthCheck
	RouteRegistrars []RouteRegistrar

	router *chi.Mux
}

// NewServer validates the critical dependencies and prepares an empty router.
// The caller fills in the optional fields and then calls MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases server-owned resources: it flushes the metrics
// collector when it supports closing.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	if closer, ok := s.Metrics.(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(ctx); err != nil {
			s.Logger.Error("error flushing metrics", "error", err)
			return fmt.Errorf("flushing metrics: %w", err)
		}
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
