// Package main is the entry point for the SEEP chat widget server.
//
// It loads configuration, builds the plan service, access guard, session
// manager and upstream clients, mounts the routes on the core chassis and
// serves HTTP until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"seep/internal/access"
	"seep/internal/api/handlers"
	"seep/internal/billing"
	"seep/internal/chat"
	"seep/internal/config"
	"seep/internal/core"
	"seep/internal/external"
	"seep/internal/session"
	"seep/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("starting seep",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
		"version", cfg.Build.Version,
	)

	srv, err := buildServer(context.Background(), cfg, logger)
	if err != nil {
		return err
	}

	return runHTTPServer(srv, cfg, logger)
}

// buildServer wires every component onto a core.Server and mounts its routes.
func buildServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*core.Server, error) {
	metrics, err := telemetry.New(ctx, cfg.Observability, logger.With("component", "telemetry"))
	if err != nil {
		return nil, fmt.Errorf("creating metrics collector: %w", err)
	}

	plans := billing.NewService(billing.ServiceConfig{
		Events: metrics,
		Logger: logger.With("component", "billing"),
	})
	guard := access.NewGuard(plans, access.Defaults{
		BotName:         cfg.Bot.Name,
		ShopDomain:      access.NormalizeDomain(cfg.Bot.ShopDomain),
		StorefrontToken: cfg.Bot.StorefrontToken,
	})

	codec, err := session.NewCodec(cfg.Session.Key, nil)
	if err != nil {
		return nil, fmt.Errorf("creating session codec: %w", err)
	}
	sessions := session.NewManager(
		session.NewStore(cfg.Session.MaxEntries, cfg.Session.IdleTTL),
		codec,
		session.CookieConfig{
			Name:   cfg.Session.CookieName,
			Secure: cfg.Session.Secure,
			MaxAge: cfg.Session.IdleTTL,
		},
		logger.With("component", "session"),
	)

	clients := external.NewClientRegistry(cfg, logger, external.WithFailureRecorder(metrics))
	responder := chat.NewService(clients.Storefront, clients.LLM, logger.With("component", "chat"))

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = metrics
	srv.MetricsHandler = metrics.Handler()
	srv.SessionMiddleware = sessions.Middleware
	srv.RateLimitStore = core.NewMemoryRateLimitStore(0, core.RateLimitWindow, nil)
	for _, b := range clients.Breakers {
		srv.HealthChecks = append(srv.HealthChecks, core.BreakerCheck{Source: b})
	}

	pages, err := handlers.LoadPages()
	if err != nil {
		return nil, fmt.Errorf("parsing page templates: %w", err)
	}

	chatHandler := handlers.NewChatHandler(guard, responder, pages, logger)
	setupHandler := handlers.NewSetupHandler(guard, srv.Validator, pages, logger)
	billingHandler := handlers.NewBillingHandler(plans, pages, logger)

	srv.RouteRegistrars = []core.RouteRegistrar{
		func(r chi.Router) { chatHandler.RegisterRoutes(r, srv.RateLimit) },
		setupHandler.RegisterRoutes,
		billingHandler.RegisterRoutes,
		handlers.RegisterStatic,
	}

	srv.MountRoutes()
	return srv, nil
}

// runHTTPServer serves until a shutdown signal or a listener error, then
// drains in-flight requests.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	// The LLM call can take most of LLM_TIMEOUT, so the write deadline
	// follows the request timeout rather than a fixed value.
	writeTimeout := cfg.Server.RequestTimeout + 5*time.Second

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// Flushes buffered metrics.
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
