// Package main is the entrypoint for the Alert Runner Lambda function.
//
// The runner is triggered on a schedule by an EventBridge rule. For the
// requested forecast date (today by default) it fetches the forecast of every
// region with active alerts, evaluates the alerts and queues a notification
// for each match.
//
// This file handles dependency wiring (Cold Start) and delegates all business
// logic to the internal/scheduler package (AlertRunner.Run).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"surfcast/internal/alerts"
	"surfcast/internal/app"
	"surfcast/internal/config"
	"surfcast/internal/db"
	"surfcast/internal/dispatch"
	"surfcast/internal/scheduler"
)

func main() {
	logger := app.NewLogger(os.Stdout, os.Getenv("LOG_LEVEL"))
	logger.Info("AlertRunner Lambda initializing (cold start)")

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	awsClients, err := app.NewAWSClients(ctx, cfg.AWS)
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}

	// Beach profiles change rarely; a cold start picks up edits.
	profiles, err := db.NewBeachRepository(pool).ListAll(ctx)
	if err != nil {
		logger.Error("failed to load beach profiles", "error", err)
		os.Exit(1)
	}
	scorer, err := alerts.NewSuitabilityScorer(profiles)
	if err != nil {
		logger.Error("invalid beach profiles", "error", err)
		os.Exit(1)
	}

	var metrics *dispatch.CloudWatchRunMetrics
	deps := app.ForecastStackDeps{S3: awsClients.S3, Logger: logger}
	if cfg.Observability.EnableMetrics {
		metrics = dispatch.NewCloudWatchRunMetrics(awsClients.CloudWatch, cfg.Observability.MetricNamespace, logger)
		deps.Metrics = metrics
	}

	stack, err := app.BuildForecastStack(cfg, deps)
	if err != nil {
		logger.Error("failed to build forecast stack", "error", err)
		os.Exit(1)
	}

	runnerCfg := scheduler.AlertRunnerConfig{
		Forecasts: stack.Service,
		Alerts:    db.NewAlertRepository(pool),
		Matcher:   alerts.NewEngine(scorer),
		Publisher: dispatch.NewPublisher(awsClients.SQS, cfg.AWS.NotificationQueue, logger),
		Logger:    logger,
	}
	var flusher metricsFlusher
	if metrics != nil {
		runnerCfg.Metrics = metrics
		flusher = metrics
	}
	runner := scheduler.NewAlertRunner(runnerCfg)

	logger.Info("AlertRunner Lambda initialized",
		"environment", cfg.Environment,
		"notification_queue", cfg.AWS.NotificationQueue,
		"beach_profiles", len(profiles),
		"regions", len(stack.Service.Catalog().Names()),
		"shared_cache", stack.Redis != nil,
	)

	lambda.Start(newHandler(runner, flusher, logger))
}

// alertRunner is implemented by *scheduler.AlertRunner.
type alertRunner interface {
	Run(ctx context.Context, input scheduler.RunInput) (scheduler.RunSummary, error)
}

// metricsFlusher is implemented by *dispatch.CloudWatchRunMetrics.
type metricsFlusher interface {
	Flush(ctx context.Context)
}

// newHandler creates the Lambda handler that processes scheduler.RunInput
// events. Buffered metrics are flushed after every invocation, failed or not,
// because the execution environment may be frozen right after it returns.
func newHandler(runner alertRunner, metrics metricsFlusher, logger *slog.Logger) func(ctx context.Context, input scheduler.RunInput) (scheduler.RunSummary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, input scheduler.RunInput) (scheduler.RunSummary, error) {
		logger.InfoContext(ctx, "AlertRunner handler invoked",
			"date", input.Date,
			"regions", input.Regions,
			"dry_run", input.DryRun,
		)
		if metrics != nil {
			defer metrics.Flush(context.WithoutCancel(ctx))
		}

		summary, err := runner.Run(ctx, input)
		if err != nil {
			logger.ErrorContext(ctx, "alert run failed",
				"error", err,
				"evaluated_before_error", summary.Evaluated,
			)
			return summary, fmt.Errorf("alert runner failed: %w", err)
		}
		return summary, nil
	}
}
