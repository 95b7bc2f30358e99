// Package main is the entry point for the surfcast API server.
//
// It loads the configuration, wires the forecast acquisition stack, the
// beach profiles for star ratings and the Prometheus metrics, builds the HTTP
// server on the core chassis and serves until SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"surfcast/internal/alerts"
	"surfcast/internal/api/handlers"
	"surfcast/internal/app"
	"surfcast/internal/config"
	"surfcast/internal/core"
	"surfcast/internal/db"
	"surfcast/internal/forecasts"
	"surfcast/internal/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := app.NewLogger(os.Stdout, cfg.LogLevel)
	logger.Info("surfcast API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	awsClients, err := app.NewAWSClients(ctx, cfg.AWS)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics(nil)

	stack, err := app.BuildForecastStack(cfg, app.ForecastStackDeps{
		S3:      awsClients.S3,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("building forecast stack: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		_ = stack.Close()
		return fmt.Errorf("connecting to database: %w", err)
	}

	profiles, err := db.NewBeachRepository(pool).ListAll(ctx)
	if err != nil {
		pool.Close()
		_ = stack.Close()
		return fmt.Errorf("loading beach profiles: %w", err)
	}
	scorer, err := alerts.NewSuitabilityScorer(profiles)
	if err != nil {
		pool.Close()
		_ = stack.Close()
		return fmt.Errorf("building star rating scorer: %w", err)
	}
	logger.Info("beach profiles loaded", "count", len(profiles))

	checks := []core.HealthCheck{core.NewPingCheck("database", pool.Ping)}
	if stack.Redis != nil {
		checks = append(checks, core.NewPingCheck("cache", func(ctx context.Context) error {
			return stack.Redis.Ping(ctx).Err()
		}))
	}

	srv, err := buildServer(cfg, logger, serverDeps{
		Forecasts: stack.Service,
		Scorer:    scorer,
		Metrics:   metrics,
		Gatherer:  prometheus.DefaultGatherer,
		Checks:    checks,
		Closers: []func() error{
			func() error { pool.Close(); return nil },
			stack.Close,
		},
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("server stopped cleanly")
	return nil
}

// serverDeps are the collaborators buildServer wires into the chassis.
type serverDeps struct {
	Forecasts *forecasts.Service
	Scorer    alerts.RatingScorer
	Metrics   *observability.Metrics
	Gatherer  prometheus.Gatherer
	Checks    []core.HealthCheck
	Closers   []func() error
}

// buildServer creates the server and mounts the forecast and alert routes.
func buildServer(cfg *config.Config, logger *slog.Logger, deps serverDeps) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, err
	}
	if deps.Metrics != nil {
		srv.Metrics = deps.Metrics
	}
	if deps.Gatherer != nil {
		srv.MetricsHandler = promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})
	}
	srv.HealthChecks = deps.Checks
	srv.Closers = deps.Closers

	forecastHandler := handlers.NewForecastHandler(deps.Forecasts, deps.Forecasts.Catalog(), logger)
	alertHandler := handlers.NewAlertHandler(deps.Forecasts, alerts.NewEngine(deps.Scorer), logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		r.Route("/forecasts", forecastHandler.RegisterRoutes)
		r.Route("/alerts", alertHandler.RegisterRoutes)
	})

	srv.MountRoutes()
	return srv, nil
}
