// Package forecasts produces canonical forecasts per (region, date): it
// resolves the region in the catalog, runs the source fetcher under the retry
// coordinator and memoizes results in a single-flight TTL cache.
package forecasts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"surfcast/internal/retry"
	"surfcast/internal/types"
)

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Catalog     *RegionCatalog
	Fetchers    map[types.SourceID]Fetcher
	Coordinator *retry.Coordinator
	Cache       *Cache
	Metrics     Metrics
	Clock       clockwork.Clock
	Logger      *slog.Logger
}

// Service is the forecast acquisition entry point shared by the HTTP API and
// the alert runner.
type Service struct {
	catalog     *RegionCatalog
	fetchers    map[types.SourceID]Fetcher
	coordinator *retry.Coordinator
	cache       *Cache
	metrics     Metrics
	clock       clockwork.Clock
	logger      *slog.Logger
}

// NewService creates a Service. Catalog, Fetchers and Coordinator are
// required.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("forecasts: catalog is required")
	}
	if cfg.Coordinator == nil {
		return nil, errors.New("forecasts: retry coordinator is required")
	}
	if len(cfg.Fetchers) == 0 {
		return nil, errors.New("forecasts: at least one fetcher is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if cfg.Cache == nil {
		cfg.Cache = NewCache(DefaultCacheTTL, WithCacheClock(cfg.Clock), WithCacheLogger(cfg.Logger), WithCacheMetrics(cfg.Metrics))
	}
	return &Service{
		catalog:     cfg.Catalog,
		fetchers:    cfg.Fetchers,
		coordinator: cfg.Coordinator,
		cache:       cfg.Cache,
		metrics:     cfg.Metrics,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
	}, nil
}

// Catalog returns the region catalog.
func (s *Service) Catalog() *RegionCatalog {
	return s.catalog
}

// MaxAttempts is the number of attempts a forecast gets before it is
// reported unavailable.
func (s *Service) MaxAttempts() int {
	return s.coordinator.Policy().MaxRetries
}

// Get returns the forecast for region and date, waiting through upstream
// retry signals. It returns *types.RetryExhausted when the source never
// published in time, and source failures unchanged.
//
// Every attempt goes through the cache flight for the key, so Get shares an
// in-flight fetch with concurrent Get and Attempt callers. The coordinator
// waits outside the flight.
func (s *Service) Get(ctx context.Context, region, date string) (*types.CanonicalForecast, error) {
	reg, fetcher, err := s.resolve(region, date)
	if err != nil {
		return nil, err
	}

	key := types.ForecastKey(region, date)
	req := retry.Request{Region: region, Date: date}
	f, err := s.coordinator.Do(ctx, req, func(ctx context.Context, attempt int, _ retry.Request) (*types.CanonicalForecast, error) {
		return s.cache.Get(ctx, key, func(ctx context.Context) (*types.CanonicalForecast, error) {
			return s.fetch(ctx, fetcher, reg, date, attempt)
		})
	})

	var exhausted *types.RetryExhausted
	if errors.As(err, &exhausted) {
		s.metrics.FetchCompleted(reg.Source, OutcomeExhausted, 0)
		s.logger.WarnContext(ctx, "forecast still unpublished after all attempts",
			"region", region,
			"date", date,
			"attempts", exhausted.Attempts,
		)
	}
	return f, err
}

// Attempt makes the single numbered attempt of a caller that does its own
// waiting, like an HTTP client honoring 202 + Retry-After. A fetch already in
// flight for the key is joined, and its outcome is judged against this
// caller's attempt number. A retry signal is returned to the caller and never
// cached; once attempt reaches MaxAttempts a pending source is reported as
// *types.RetryExhausted.
func (s *Service) Attempt(ctx context.Context, region, date string, attempt int) (*types.CanonicalForecast, error) {
	if attempt < 1 {
		attempt = 1
	}
	reg, fetcher, err := s.resolve(region, date)
	if err != nil {
		return nil, err
	}

	f, err := s.cache.Get(ctx, types.ForecastKey(region, date), func(ctx context.Context) (*types.CanonicalForecast, error) {
		return s.fetch(ctx, fetcher, reg, date, attempt)
	})

	var signal *types.RetrySignal
	if errors.As(err, &signal) {
		signal.Attempt = attempt
		if signal.RetryAfter <= 0 {
			signal.RetryAfter = s.coordinator.Delay(attempt, signal)
		}
		if attempt >= s.MaxAttempts() {
			s.metrics.FetchCompleted(reg.Source, OutcomeExhausted, 0)
			return nil, &types.RetryExhausted{Attempts: attempt, Last: signal}
		}
	}
	return f, err
}

func (s *Service) resolve(region, date string) (Region, Fetcher, error) {
	if _, err := types.ParseDate(date); err != nil {
		return Region{}, nil, types.NewAppError(types.ErrCodeValidationInvalidDate, "date must be YYYY-MM-DD", err)
	}
	reg, err := s.catalog.Lookup(region)
	if err != nil {
		return Region{}, nil, err
	}
	fetcher, ok := s.fetchers[reg.Source]
	if !ok {
		return Region{}, nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("no fetcher configured for source %q", reg.Source), nil)
	}
	return reg, fetcher, nil
}

func (s *Service) fetch(ctx context.Context, fetcher Fetcher, reg Region, date string, attempt int) (*types.CanonicalForecast, error) {
	start := s.clock.Now()
	f, err := fetcher.Fetch(ctx, reg, date, attempt)
	elapsed := s.clock.Since(start)

	var signal *types.RetrySignal
	switch {
	case err == nil:
		s.metrics.FetchCompleted(reg.Source, OutcomeSuccess, elapsed)
		s.logger.InfoContext(ctx, "forecast fetched",
			"region", reg.Name,
			"date", date,
			"source", string(reg.Source),
			"attempt", attempt,
			"forecast_hour", f.ForecastHour,
			"unavailable", len(f.Unavailable),
			"elapsed", elapsed.Round(time.Millisecond).String(),
		)
	case errors.As(err, &signal):
		s.metrics.FetchCompleted(reg.Source, OutcomePending, elapsed)
	default:
		s.metrics.FetchCompleted(reg.Source, OutcomeError, elapsed)
		s.logger.WarnContext(ctx, "forecast fetch failed",
			"region", reg.Name,
			"date", date,
			"source", string(reg.Source),
			"attempt", attempt,
			"error", err,
		)
	}
	return f, err
}
