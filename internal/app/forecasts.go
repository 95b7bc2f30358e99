package app

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"surfcast/internal/config"
	"surfcast/internal/external"
	"surfcast/internal/forecasts"
	"surfcast/internal/normalize"
	"surfcast/internal/retry"
	"surfcast/internal/scraper"
	"surfcast/internal/types"
)

// Source breaker tuning. A run of blocked or broken pages stops browser
// launches against that site for a minute.
const (
	sourceBreakerFailures = 5
	sourceBreakerTimeout  = time.Minute
)

// browserSources are the sources read through a headless browser.
var browserSources = []types.SourceID{types.SourceSurfForecast, types.SourceWindfinder}

// ForecastStackDeps are the optional collaborators of BuildForecastStack.
type ForecastStackDeps struct {
	// S3 receives failed-extraction captures when cfg.AWS.DiagnosticsBucket
	// is set.
	S3      scraper.S3PutClient
	Metrics forecasts.Metrics
	Logger  *slog.Logger
}

// ForecastStack is the forecast acquisition pipeline: browser extractors,
// the JSON API client, the retry coordinator and the cache behind a Service.
type ForecastStack struct {
	Service    *forecasts.Service
	Extractors *scraper.Registry
	// Redis is nil when the cache is in process only.
	Redis *redis.Client
}

// Close releases the shared cache connection.
func (s *ForecastStack) Close() error {
	if s.Redis == nil {
		return nil
	}
	return s.Redis.Close()
}

// BuildForecastStack wires a forecast Service from cfg. Nothing is launched
// or dialled until the first fetch.
func BuildForecastStack(cfg *config.Config, deps ForecastStackDeps) (*ForecastStack, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	catalog, err := forecasts.LoadRegionCatalog(cfg.Scraper.RegionCatalog)
	if err != nil {
		return nil, err
	}

	var extractorOpts []scraper.BrowserExtractorOption
	extractorOpts = append(extractorOpts, scraper.WithLogger(logger.With("component", "extractor")))
	if cfg.AWS.DiagnosticsBucket != "" {
		if deps.S3 == nil {
			return nil, errors.New("diagnostics bucket configured without an S3 client")
		}
		diag, err := scraper.NewS3Diagnostics(deps.S3, cfg.AWS.DiagnosticsBucket, cfg.AWS.DiagnosticsPrefix, logger)
		if err != nil {
			return nil, fmt.Errorf("creating extraction diagnostics: %w", err)
		}
		extractorOpts = append(extractorOpts, scraper.WithDiagnostics(diag))
	}

	launcher := scraper.NewChromeLauncher(scraper.LaunchOptions{
		Headless:       cfg.Scraper.Headless,
		UserAgent:      cfg.Scraper.UserAgent,
		ViewportWidth:  cfg.Scraper.ViewportWidth,
		ViewportHeight: cfg.Scraper.ViewportHeight,
	}, logger.With("component", "chrome"))
	gates := scraper.Config{
		GateTimeout:  cfg.Scraper.GateTimeout,
		MinRows:      cfg.Scraper.MinRows,
		LateDataWait: cfg.Scraper.LateDataWait,
	}

	registry := scraper.NewRegistry()
	for _, source := range browserSources {
		registry.Register(source, scraper.NewBrowserExtractor(source, launcher, gates, scraper.SchemasFor(source), extractorOpts...))
	}

	normalizer := normalize.Default(types.RealClock{})
	window := scraper.TargetWindow{StartHour: cfg.Scraper.TargetHourStart, EndHour: cfg.Scraper.TargetHourEnd}

	fetchers := make(map[types.SourceID]forecasts.Fetcher, len(browserSources)+1)
	for _, source := range registry.Sources() {
		extractor, err := registry.Get(source)
		if err != nil {
			return nil, err
		}
		fetchers[source] = forecasts.NewBreakerFetcher(source,
			forecasts.NewExtractorFetcher(extractor, normalizer, window, logger),
			sourceBreakerFailures, sourceBreakerTimeout)
	}

	clients, err := external.NewClientRegistry(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating external clients: %w", err)
	}
	fetchers[types.SourceForecastAPI] = forecasts.NewAPIFetcher(clients.ForecastAPI, normalizer, window, logger)

	clock := clockwork.NewRealClock()
	coordinator := retry.NewCoordinator(retry.Policy{
		MaxRetries: cfg.Retry.MaxRetries,
		Backoff:    cfg.Retry.Backoff,
		MaxBackoff: cfg.Retry.MaxBackoff,
		Strategy:   retry.Strategy(cfg.Retry.Strategy),
	}, clock, logger)

	stack := &ForecastStack{Extractors: registry}
	cacheOpts := []forecasts.CacheOption{
		forecasts.WithCacheClock(clock),
		forecasts.WithCacheLogger(logger),
	}
	if deps.Metrics != nil {
		cacheOpts = append(cacheOpts, forecasts.WithCacheMetrics(deps.Metrics))
	}
	if cfg.Redis.Addr != "" {
		stack.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password.Unmask(),
			DB:       cfg.Redis.DB,
		})
		cacheOpts = append(cacheOpts, forecasts.WithStore(forecasts.NewRedisStore(stack.Redis)))
		logger.Info("forecast cache backed by redis", "addr", cfg.Redis.Addr)
	}

	svc, err := forecasts.NewService(forecasts.ServiceConfig{
		Catalog:     catalog,
		Fetchers:    fetchers,
		Coordinator: coordinator,
		Cache:       forecasts.NewCache(cfg.Cache.TTL, cacheOpts...),
		Metrics:     deps.Metrics,
		Clock:       clock,
		Logger:      logger,
	})
	if err != nil {
		_ = stack.Close()
		return nil, err
	}
	stack.Service = svc
	return stack, nil
}
