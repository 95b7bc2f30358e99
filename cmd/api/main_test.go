package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surfcast/internal/app"
	"surfcast/internal/config"
	"surfcast/internal/core"
	"surfcast/internal/observability"
	"surfcast/internal/types"
)

const testCatalog = `
regions:
  - name: nazare
    source: forecast_api
    lat: 39.6
    lon: -9.07
    timezone: Europe/Lisbon
`

// buildTestServer wires the real forecast stack in stub mode so no browser,
// database or network is needed.
func buildTestServer(t *testing.T, checks ...core.HealthCheck) (*core.Server, *prometheus.Registry) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "regions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o600))
	cfg := &config.Config{
		Environment: "local",
		IsTestMode:  true,
		Scraper: config.ScraperConfig{
			TargetHourStart: 7,
			TargetHourEnd:   8,
			RegionCatalog:   path,
		},
		Retry:  config.RetryConfig{MaxRetries: 3, Backoff: time.Millisecond, Strategy: "fixed"},
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	stack, err := app.BuildForecastStack(cfg, app.ForecastStackDeps{Metrics: metrics, Logger: logger})
	require.NoError(t, err)

	srv, err := buildServer(cfg, logger, serverDeps{
		Forecasts: stack.Service,
		Metrics:   metrics,
		Gatherer:  reg,
		Checks:    checks,
		Closers:   []func() error{stack.Close},
	})
	require.NoError(t, err)
	return srv, reg
}

func serve(srv *core.Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func today() string {
	return types.Today(types.RealClock{})
}

func TestHealth(t *testing.T) {
	srv, _ := buildTestServer(t, core.NewPingCheck("database", func(context.Context) error { return nil }))

	rec := serve(srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHealth_FailingCheck(t *testing.T) {
	srv, _ := buildTestServer(t, core.NewPingCheck("database", func(context.Context) error {
		return errors.New("connection refused")
	}))

	rec := serve(srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestForecastRoutes(t *testing.T) {
	srv, _ := buildTestServer(t)

	rec := serve(srv, http.MethodGet, "/v1/forecasts/regions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"nazare"`)

	rec = serve(srv, http.MethodGet, "/v1/forecasts?region=nazare&date="+today(), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Data struct {
			Region       string         `json:"region"`
			Source       types.SourceID `json:"source"`
			ForecastHour int            `json:"forecastHour"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "nazare", body.Data.Region)
	assert.Equal(t, types.SourceForecastAPI, body.Data.Source)
	assert.Equal(t, 7, body.Data.ForecastHour)

	rec = serve(srv, http.MethodGet, "/v1/forecasts?region=atlantis&date="+today(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlertRoutes(t *testing.T) {
	srv, _ := buildTestServer(t)

	rec := serve(srv, http.MethodPost, "/v1/alerts/validate", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(srv, http.MethodGet, "/v1/alerts/validate", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := buildTestServer(t)

	serve(srv, http.MethodGet, "/v1/forecasts/regions", "")

	rec := serve(srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "surfcast_http_requests_total")
}
