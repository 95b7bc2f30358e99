// Package config loads surfcast process settings once at start-up. A value
// comes from the process environment first, then a .env file, then Parameter
// Store via a *_SSM_PARAM pointer. Anything missing or malformed fails
// LoadConfig.
package config

import (
	"time"
)

// Config is the top-level configuration struct. Sub-components receive only
// the section they need.
type Config struct {
	// Process identity
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"surfcast"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Redis         RedisConfig
	Scraper       ScraperConfig
	Retry         RetryConfig
	Cache         CacheConfig
	ForecastAPI   ForecastAPIConfig
	Observability ObservabilityConfig

	// Filled by NewBuildInfo, never from the environment.
	Build BuildInfo
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"90s"` // a browser fetch may take a while
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
	// RequestTimeout bounds a request context. It must leave room for the
	// retry coordinator's full budget on alert previews.
	RequestTimeout     time.Duration `envconfig:"HTTP_REQUEST_TIMEOUT" default:"85s"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	// Usually a DATABASE_URL_SSM_PARAM pointer outside local.
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"eu-west-1"`

	NotificationQueue string `envconfig:"SQS_NOTIFICATIONS" validate:"required,url"`
	// DiagnosticsBucket receives screenshots of failed extractions. Empty
	// disables archiving.
	DiagnosticsBucket string `envconfig:"DIAGNOSTICS_BUCKET"`
	DiagnosticsPrefix string `envconfig:"DIAGNOSTICS_PREFIX" default:"extraction-failures"`

	// Points the SDK at LocalStack when set.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// RedisConfig configures the shared forecast cache. An empty Addr keeps the
// cache in process only.
type RedisConfig struct {
	Addr     string       `envconfig:"REDIS_ADDR"`
	Password SecretString `envconfig:"REDIS_PASSWORD"`
	DB       int          `envconfig:"REDIS_DB" default:"0" validate:"min=0"`
}

// ScraperConfig tunes the headless browser and the page readiness gates.
type ScraperConfig struct {
	Headless       bool          `envconfig:"SCRAPER_HEADLESS" default:"true"`
	UserAgent      string        `envconfig:"SCRAPER_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"`
	ViewportWidth  int           `envconfig:"SCRAPER_VIEWPORT_WIDTH" default:"1366" validate:"min=320"`
	ViewportHeight int           `envconfig:"SCRAPER_VIEWPORT_HEIGHT" default:"768" validate:"min=240"`
	GateTimeout    time.Duration `envconfig:"SCRAPER_GATE_TIMEOUT" default:"15s"`
	MinRows        int           `envconfig:"SCRAPER_MIN_ROWS" default:"5" validate:"min=0"`
	LateDataWait   time.Duration `envconfig:"SCRAPER_LATE_DATA_WAIT" default:"3s"`

	// Reference window for the daily forecast row, inclusive hours.
	TargetHourStart int `envconfig:"TARGET_HOUR_START" default:"7" validate:"min=0,max=23"`
	TargetHourEnd   int `envconfig:"TARGET_HOUR_END" default:"8" validate:"min=0,max=23,gtefield=TargetHourStart"`

	RegionCatalog string `envconfig:"REGION_CATALOG" default:"regions.yaml" validate:"required"`
}

// RetryConfig configures the retry coordinator.
type RetryConfig struct {
	MaxRetries int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3" validate:"min=1"`
	Backoff    time.Duration `envconfig:"RETRY_BACKOFF" default:"5s"`
	MaxBackoff time.Duration `envconfig:"RETRY_MAX_BACKOFF" default:"60s"`
	Strategy   string        `envconfig:"RETRY_STRATEGY" default:"fixed" validate:"oneof=fixed exponential"`
}

// CacheConfig configures the (region, date) forecast cache.
type CacheConfig struct {
	TTL time.Duration `envconfig:"FORECAST_CACHE_TTL" default:"30m"`
}

// ForecastAPIConfig configures the JSON forecast API source.
type ForecastAPIConfig struct {
	BaseURL string        `envconfig:"FORECAST_API_URL" default:"https://marine-api.open-meteo.com" validate:"required,url"`
	Timeout time.Duration `envconfig:"FORECAST_API_TIMEOUT" default:"10s"`
}

// ObservabilityConfig holds monitoring configuration.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Surfcast"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo identifies the binary in logs and /health.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType says which loading stage failed.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILURE"
	ErrParsing       ConfigErrorType = "PARSING_FAILURE"
)
