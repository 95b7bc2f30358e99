package forecasts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"surfcast/internal/external"
	"surfcast/internal/normalize"
	"surfcast/internal/scraper"
	"surfcast/internal/types"
)

// Fetcher performs one attempt at producing the canonical forecast of a
// region and date. A *types.RetrySignal means the data is not published yet.
type Fetcher interface {
	Fetch(ctx context.Context, region Region, date string, attempt int) (*types.CanonicalForecast, error)
}

// ----- Browser sources

// ExtractorFetcher scrapes the region page, picks the reference-hour row and
// normalizes it.
type ExtractorFetcher struct {
	extractor  scraper.Extractor
	normalizer *normalize.Normalizer
	window     scraper.TargetWindow
	logger     *slog.Logger
}

// NewExtractorFetcher creates a fetcher for a browser-backed source.
func NewExtractorFetcher(e scraper.Extractor, n *normalize.Normalizer, window scraper.TargetWindow, logger *slog.Logger) *ExtractorFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractorFetcher{extractor: e, normalizer: n, window: window, logger: logger}
}

func (f *ExtractorFetcher) Fetch(ctx context.Context, region Region, date string, attempt int) (*types.CanonicalForecast, error) {
	rows, err := f.extractor.Extract(ctx, region.SourceURL(date), region.Name)
	if err != nil {
		return nil, err
	}

	row, err := scraper.SelectTargetRow(rows, date, f.window)
	if errors.Is(err, scraper.ErrNoTargetRow) {
		// The page rendered but the day is not published yet.
		return nil, &types.RetrySignal{
			Attempt: attempt,
			Reason:  fmt.Sprintf("no %02d:00-%02d:00 row for %s yet", f.window.StartHour, f.window.EndHour, date),
		}
	}
	if err != nil {
		return nil, err
	}

	forecast, warnings, err := f.normalizer.NormalizeRow(region.Name, date, row)
	if err != nil {
		return nil, types.NewExtractionError(row.Source, types.ReasonParseError, region.SourceURL(date), err)
	}
	logWarnings(ctx, f.logger, region.Name, date, warnings)
	return &forecast, nil
}

// ----- JSON API source

// APIFetcher reads the hourly JSON forecast and normalizes the first record
// inside the reference window.
type APIFetcher struct {
	client     external.HourlyFetcher
	normalizer *normalize.Normalizer
	window     scraper.TargetWindow
	logger     *slog.Logger
}

// NewAPIFetcher creates a fetcher for the JSON forecast API.
func NewAPIFetcher(client external.HourlyFetcher, n *normalize.Normalizer, window scraper.TargetWindow, logger *slog.Logger) *APIFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIFetcher{client: client, normalizer: n, window: window, logger: logger}
}

func (f *APIFetcher) Fetch(ctx context.Context, region Region, date string, attempt int) (*types.CanonicalForecast, error) {
	records, err := f.client.FetchHourly(ctx, external.ForecastQuery{
		Region:    region.Name,
		Date:      date,
		Latitude:  region.Latitude,
		Longitude: region.Longitude,
		Timezone:  region.Timezone,
	}, attempt)
	if err != nil {
		var signal *types.RetrySignal
		if errors.As(err, &signal) && signal.Attempt == 0 {
			signal.Attempt = attempt
		}
		return nil, err
	}

	for _, rec := range records {
		if !strings.HasPrefix(rec.Time, date) {
			continue
		}
		forecast, warnings := f.normalizer.NormalizeAPI(region.Name, date, rec)
		if !f.window.Contains(forecast.ForecastHour) {
			continue
		}
		logWarnings(ctx, f.logger, region.Name, date, warnings)
		return &forecast, nil
	}
	return nil, &types.RetrySignal{
		Attempt: attempt,
		Reason:  fmt.Sprintf("forecast api has no reference-hour record for %s yet", date),
	}
}

func logWarnings(ctx context.Context, logger *slog.Logger, region, date string, warnings []types.NormalizationWarning) {
	for _, w := range warnings {
		logger.WarnContext(ctx, "forecast field unavailable",
			"region", region,
			"date", date,
			"field", string(w.Field),
			"raw", w.Raw,
			"reason", w.Reason,
		)
	}
}

// ----- Circuit breaking

// BreakerFetcher trips after repeated hard failures of a source and then
// refuses attempts until the open period ends. A retry signal is not a
// failure. An open breaker is reported as a blocked extraction.
type BreakerFetcher struct {
	source  types.SourceID
	inner   Fetcher
	breaker *gobreaker.CircuitBreaker[*types.CanonicalForecast]
}

// NewBreakerFetcher wraps inner with a circuit breaker that opens after
// consecutiveFailures hard failures in a row.
func NewBreakerFetcher(source types.SourceID, inner Fetcher, consecutiveFailures uint32, openTimeout time.Duration) *BreakerFetcher {
	cb := gobreaker.NewCircuitBreaker[*types.CanonicalForecast](gobreaker.Settings{
		Name:        "source-" + string(source),
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			var signal *types.RetrySignal
			return err == nil || errors.As(err, &signal)
		},
	})
	return &BreakerFetcher{source: source, inner: inner, breaker: cb}
}

// State reports the breaker state.
func (b *BreakerFetcher) State() gobreaker.State {
	return b.breaker.State()
}

func (b *BreakerFetcher) Fetch(ctx context.Context, region Region, date string, attempt int) (*types.CanonicalForecast, error) {
	f, err := b.breaker.Execute(func() (*types.CanonicalForecast, error) {
		return b.inner.Fetch(ctx, region, date, attempt)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, types.NewExtractionError(b.source, types.ReasonBlocked, region.SourceURL(date), err)
	}
	return f, err
}
