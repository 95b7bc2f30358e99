// Package scheduler implements the scheduled alert run: for one forecast date
// it fetches the forecast of every region with active alerts, evaluates those
// alerts and hands matches to the notification queue.
//
// Key behaviors:
//   - Regions are processed in parallel up to a concurrency limit.
//   - A region whose forecast is unavailable fires nothing (fail closed) and
//     does not stop the other regions.
//   - Alerts that cannot be evaluated are counted and logged, never sent.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"surfcast/internal/alerts"
	"surfcast/internal/types"
)

// DefaultConcurrency bounds the regions fetched at once. Each browser-backed
// fetch owns a full browser session.
const DefaultConcurrency = 4

// RunInput is the Lambda event of an alert run.
type RunInput struct {
	// Date is the forecast date, YYYY-MM-DD. Empty means today (UTC).
	Date string `json:"date"`
	// Regions restricts the run. Empty means every region with active alerts.
	Regions []string `json:"regions,omitempty"`
	// DryRun evaluates without publishing.
	DryRun bool `json:"dry_run"`
}

// RunSummary reports what a run did.
type RunSummary struct {
	RunID     string `json:"run_id"`
	Date      string `json:"date"`
	Regions   int    `json:"regions"`
	Evaluated int    `json:"evaluated"`
	Matched   int    `json:"matched"`
	Published int    `json:"published"`
	// Failed counts alerts that could not be evaluated or handed off.
	Failed int `json:"failed"`
	// FailedRegions lists regions skipped because their forecast or alerts
	// could not be loaded.
	FailedRegions []string `json:"failed_regions,omitempty"`
}

// ForecastSource provides canonical forecasts. Implemented by
// *forecasts.Service.
type ForecastSource interface {
	Get(ctx context.Context, region, date string) (*types.CanonicalForecast, error)
}

// AlertRepo abstracts the alert reads of the run. Implemented by
// *db.AlertRepository.
type AlertRepo interface {
	ListActive(ctx context.Context, region, date string) ([]types.AlertConfig, error)
	ListActiveRegions(ctx context.Context, date string) ([]string, error)
}

// Matcher evaluates alerts against a forecast. Implemented by *alerts.Engine.
type Matcher interface {
	EvaluateAll(ctx context.Context, f types.CanonicalForecast, configs []types.AlertConfig) ([]alerts.Outcome, error)
}

// MatchPublisher hands matches off. Implemented by *dispatch.Publisher.
type MatchPublisher interface {
	Publish(ctx context.Context, alert types.AlertConfig, result types.MatchResult) (bool, error)
}

// RunMetrics receives per-region counts. Implemented by
// *dispatch.CloudWatchRunMetrics.
type RunMetrics interface {
	AlertsEvaluated(region string, evaluated, matched, failed int)
}

// AlertRunnerConfig holds the dependencies of an AlertRunner.
type AlertRunnerConfig struct {
	Forecasts   ForecastSource
	Alerts      AlertRepo
	Matcher     Matcher
	Publisher   MatchPublisher
	Metrics     RunMetrics
	Concurrency int
	Clock       types.Clock
	Logger      *slog.Logger
	// NewID generates run IDs. Defaults to random UUIDs.
	NewID func() string
}

// AlertRunner executes alert runs.
type AlertRunner struct {
	forecasts   ForecastSource
	alerts      AlertRepo
	matcher     Matcher
	publisher   MatchPublisher
	metrics     RunMetrics
	concurrency int
	clock       types.Clock
	logger      *slog.Logger
	newID       func() string
}

// NewAlertRunner creates an AlertRunner. Metrics, Clock, Logger and NewID
// are optional.
func NewAlertRunner(cfg AlertRunnerConfig) *AlertRunner {
	r := &AlertRunner{
		forecasts:   cfg.Forecasts,
		alerts:      cfg.Alerts,
		matcher:     cfg.Matcher,
		publisher:   cfg.Publisher,
		metrics:     cfg.Metrics,
		concurrency: cfg.Concurrency,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		newID:       cfg.NewID,
	}
	if r.concurrency <= 0 {
		r.concurrency = DefaultConcurrency
	}
	if r.clock == nil {
		r.clock = types.RealClock{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.metrics == nil {
		r.metrics = noopRunMetrics{}
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	return r
}

// regionResult is the contribution of one region to the summary.
type regionResult struct {
	evaluated int
	matched   int
	published int
	failed    int
	skipped   bool
}

// Run executes one alert run. The returned error is reserved for problems
// that stop the whole run: an invalid date, failing to list regions, or ctx
// ending. Per-region and per-alert failures are reported in the summary.
func (r *AlertRunner) Run(ctx context.Context, input RunInput) (RunSummary, error) {
	start := r.clock.Now()
	date := input.Date
	if date == "" {
		date = types.Today(r.clock)
	}
	if _, err := types.ParseDate(date); err != nil {
		return RunSummary{}, types.NewAppError(types.ErrCodeValidationInvalidDate, "date must be YYYY-MM-DD", err)
	}

	regions := dedupe(input.Regions)
	if len(regions) == 0 {
		listed, err := r.alerts.ListActiveRegions(ctx, date)
		if err != nil {
			return RunSummary{Date: date}, fmt.Errorf("listing regions with active alerts: %w", err)
		}
		regions = listed
	}

	summary := RunSummary{RunID: r.newID(), Date: date, Regions: len(regions)}
	ctx = types.WithRunID(ctx, summary.RunID)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, region := range regions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := r.runRegion(gctx, region, date, input.DryRun)

			mu.Lock()
			defer mu.Unlock()
			summary.Evaluated += res.evaluated
			summary.Matched += res.matched
			summary.Published += res.published
			summary.Failed += res.failed
			if res.skipped {
				summary.FailedRegions = append(summary.FailedRegions, region)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	sort.Strings(summary.FailedRegions)

	r.logger.InfoContext(ctx, "alert run complete",
		"run_id", summary.RunID,
		"date", date,
		"regions", summary.Regions,
		"evaluated", summary.Evaluated,
		"matched", summary.Matched,
		"published", summary.Published,
		"failed", summary.Failed,
		"failed_regions", summary.FailedRegions,
		"dry_run", input.DryRun,
		"elapsed", r.clock.Now().Sub(start).Round(time.Millisecond).String(),
	)
	return summary, nil
}

func (r *AlertRunner) runRegion(ctx context.Context, region, date string, dryRun bool) regionResult {
	var res regionResult

	configs, err := r.alerts.ListActive(ctx, region, date)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to list alerts, region skipped",
			"region", region,
			"date", date,
			"error", err,
		)
		res.skipped = true
		return res
	}
	if len(configs) == 0 {
		return res
	}

	forecast, err := r.forecasts.Get(ctx, region, date)
	if err != nil {
		r.logger.WarnContext(ctx, "forecast unavailable, alerts not evaluated",
			"region", region,
			"date", date,
			"alerts", len(configs),
			"error", err,
		)
		res.skipped = true
		return res
	}

	outcomes, err := r.matcher.EvaluateAll(ctx, *forecast, configs)
	if err != nil {
		r.logger.WarnContext(ctx, "alert evaluation interrupted",
			"region", region,
			"date", date,
			"error", err,
		)
		res.skipped = true
		return res
	}

	for _, o := range outcomes {
		res.evaluated++
		switch {
		case o.Err != nil:
			res.failed++
			r.logger.WarnContext(ctx, "alert not evaluated",
				"alert_id", o.Alert.ID,
				"region", region,
				"date", date,
				"error", o.Err,
			)
		case !o.Result.Matched:
			r.logger.DebugContext(ctx, "alert did not match",
				"alert_id", o.Alert.ID,
				"reason", o.Result.Reason,
			)
		default:
			res.matched++
			if dryRun {
				continue
			}
			if _, err := r.publisher.Publish(ctx, o.Alert, o.Result); err != nil {
				res.failed++
				r.logger.ErrorContext(ctx, "failed to publish match",
					"alert_id", o.Alert.ID,
					"region", region,
					"date", date,
					"error", err,
				)
				continue
			}
			res.published++
		}
	}

	r.metrics.AlertsEvaluated(region, res.evaluated, res.matched, res.failed)
	return res
}

func dedupe(regions []string) []string {
	seen := make(map[string]bool, len(regions))
	var out []string
	for _, r := range regions {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

type noopRunMetrics struct{}

func (noopRunMetrics) AlertsEvaluated(string, int, int, int) {}
