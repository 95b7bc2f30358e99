package external

import (
	"log/slog"
	"net/http"

	"surfcast/internal/config"
)

// ClientRegistry holds the external service clients. It is the single point
// of access for the rest of the application to third-party HTTP services.
type ClientRegistry struct {
	ForecastAPI HourlyFetcher
}

// NewClientRegistry initializes the external clients. If cfg.IsTestMode is
// true or cfg.Environment is "local", stub implementations are used so no
// network access is needed. Otherwise real clients are built with strict
// timeouts.
func NewClientRegistry(cfg *config.Config, logger *slog.Logger) (*ClientRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.IsTestMode || cfg.Environment == "local" {
		logger.Info("initializing external clients in STUB mode",
			"is_test_mode", cfg.IsTestMode,
			"environment", cfg.Environment,
		)
		return &ClientRegistry{
			ForecastAPI: NewStubForecastAPI(logger.With("mode", "stub")),
		}, nil
	}

	logger.Info("initializing external clients in PRODUCTION mode",
		"environment", cfg.Environment,
	)

	// No transport retries: a hard failure must reach the caller at once and
	// only the 202 signal is retried, by the coordinator.
	base := NewBaseClient(
		&http.Client{Timeout: cfg.ForecastAPI.Timeout},
		DefaultBreakerSettings("forecast-api"),
		RetryPolicy{},
		cfg.Scraper.UserAgent,
	)
	return &ClientRegistry{
		ForecastAPI: NewForecastAPIClient(base, ForecastAPIConfig{
			BaseURL:           cfg.ForecastAPI.BaseURL,
			DefaultRetryAfter: cfg.Retry.Backoff,
			Logger:            logger.With("client", "forecast-api"),
		}),
	}, nil
}
