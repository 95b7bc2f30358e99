package external

import (
	"context"
	"fmt"
	"log/slog"

	"surfcast/internal/normalize"
)

// StubForecastAPI implements HourlyFetcher with fixed mild conditions for
// every hour of the requested day. Used when config.IsTestMode is true or
// APP_ENV=local so the service boots without network access.
type StubForecastAPI struct {
	logger *slog.Logger
}

// NewStubForecastAPI creates a new StubForecastAPI.
func NewStubForecastAPI(logger *slog.Logger) *StubForecastAPI {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubForecastAPI{logger: logger}
}

func (s *StubForecastAPI) FetchHourly(ctx context.Context, q ForecastQuery, attempt int) ([]normalize.APIRecord, error) {
	s.logger.InfoContext(ctx, "stub: FetchHourly called",
		"region", q.Region,
		"date", q.Date,
		"attempt", attempt,
	)

	records := make([]normalize.APIRecord, 0, 24)
	for hour := 0; hour < 24; hour++ {
		records = append(records, normalize.APIRecord{
			Time:           fmt.Sprintf("%sT%02d:00", q.Date, hour),
			WindSpeed:      ptr(12 + float64(hour)/2),
			WindDirection:  ptr(90),
			SwellHeight:    ptr(1.2),
			SwellPeriod:    ptr(11),
			SwellDirection: ptr(285),
		})
	}
	return records, nil
}

func ptr(v float64) *float64 { return &v }
