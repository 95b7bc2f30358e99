// Package core provides the HTTP chassis of the surfcast API. It builds a chi
// router with the cross-cutting concerns (panic recovery, request IDs,
// logging, metrics and health checks) in place before requests reach the
// domain handlers.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"surfcast/internal/config"
)

// RequestMetrics records served requests. Implemented by
// *observability.Metrics.
type RequestMetrics interface {
	// ObserveRequest records one request. route is the matched chi pattern.
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

// Server holds the dependencies of the API so tests can inject their own.
type Server struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics RequestMetrics

	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler

	// HealthChecks are run by GET /health.
	HealthChecks []HealthCheck

	// V1RouteRegistrars mount the domain handlers under /v1. They are
	// populated by main to keep core free of handler imports.
	V1RouteRegistrars []func(chi.Router)

	// Closers release resources on Shutdown, in order.
	Closers []func() error

	router *chi.Mux
}

// NewServer creates a Server. Routes are mounted separately with
// MountRoutes so tests can customize registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
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

// ListenAndServe serves on the configured port until ctx ends, then drains
// connections within ShutdownTimeout and runs Shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + s.Config.Server.Port,
		Handler:      s.router,
		ReadTimeout:  s.Config.Server.ReadTimeout,
		WriteTimeout: s.Config.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("http server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.Logger.Error("http server shutdown failed", "error", err)
	}
	return s.Shutdown(shutdownCtx)
}

// Shutdown runs the registered closers. All closers run; the first error is
// returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")

	var firstErr error
	for _, closeFn := range s.Closers {
		if err := closeFn(); err != nil {
			s.Logger.ErrorContext(ctx, "error releasing server resource", "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("closing server resources: %w", err)
			}
		}
	}

	s.Logger.InfoContext(ctx, "server shutdown complete")
	return firstErr
}
