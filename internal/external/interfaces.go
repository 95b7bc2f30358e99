package external

import (
	"context"

	"surfcast/internal/normalize"
)

// HourlyFetcher abstracts the JSON forecast API so the forecast service can
// run against the stub locally and in tests.
type HourlyFetcher interface {
	// FetchHourly returns the hourly records of q.Date. A forecast the
	// service is still preparing yields a *types.RetrySignal.
	FetchHourly(ctx context.Context, q ForecastQuery, attempt int) ([]normalize.APIRecord, error)
}

var (
	_ HourlyFetcher = (*ForecastAPIClient)(nil)
	_ HourlyFetcher = (*StubForecastAPI)(nil)
)
