package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"surfcast/internal/normalize"
	"surfcast/internal/types"
)

// hourlyVariables are requested from the forecast API, in APIRecord order.
var hourlyVariables = []string{
	"wind_speed_10m",
	"wind_direction_10m",
	"swell_wave_height",
	"swell_wave_period",
	"swell_wave_direction",
}

// ForecastQuery locates one region-day for the forecast API.
type ForecastQuery struct {
	Region    string
	Date      string
	Latitude  float64
	Longitude float64
	Timezone  string
}

// ForecastAPIConfig configures ForecastAPIClient.
type ForecastAPIConfig struct {
	BaseURL string
	// DefaultRetryAfter is reported when a 202 carries no Retry-After.
	DefaultRetryAfter time.Duration
	Logger            *slog.Logger
}

// ForecastAPIClient reads hourly wind and swell from a JSON forecast API. The
// service answers 202 Accepted while a forecast is still being prepared; that
// answer becomes a *types.RetrySignal rather than an error status.
type ForecastAPIClient struct {
	base       *BaseClient
	baseURL    string
	retryAfter time.Duration
	logger     *slog.Logger
}

// NewForecastAPIClient creates a client on top of a BaseClient.
func NewForecastAPIClient(base *BaseClient, cfg ForecastAPIConfig) *ForecastAPIClient {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DefaultRetryAfter <= 0 {
		cfg.DefaultRetryAfter = 5 * time.Second
	}
	return &ForecastAPIClient{
		base:       base,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		retryAfter: cfg.DefaultRetryAfter,
		logger:     cfg.Logger,
	}
}

// hourlyResponse is the columnar payload: parallel arrays indexed by hour.
type hourlyResponse struct {
	Hourly struct {
		Time               []string   `json:"time"`
		WindSpeed10m       []*float64 `json:"wind_speed_10m"`
		WindDirection10m   []*float64 `json:"wind_direction_10m"`
		SwellWaveHeight    []*float64 `json:"swell_wave_height"`
		SwellWavePeriod    []*float64 `json:"swell_wave_period"`
		SwellWaveDirection []*float64 `json:"swell_wave_direction"`
	} `json:"hourly"`
}

// FetchHourly requests the hourly records for q.Date. attempt is forwarded so
// the service can tell first requests from follow-ups.
func (c *ForecastAPIClient) FetchHourly(ctx context.Context, q ForecastQuery, attempt int) ([]normalize.APIRecord, error) {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(q.Latitude, 'f', 4, 64))
	params.Set("longitude", strconv.FormatFloat(q.Longitude, 'f', 4, 64))
	params.Set("start_date", q.Date)
	params.Set("end_date", q.Date)
	params.Set("hourly", strings.Join(hourlyVariables, ","))
	if q.Timezone != "" {
		params.Set("timezone", q.Timezone)
	}
	params.Set("attempt", strconv.Itoa(attempt))

	endpoint := c.baseURL + "/v1/forecast?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build forecast request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted:
		wait, ok := ParseRetryAfter(resp.Header.Get("Retry-After"))
		if !ok || wait <= 0 {
			wait = c.retryAfter
		}
		c.logger.InfoContext(ctx, "forecast API still preparing data",
			"region", q.Region,
			"date", q.Date,
			"attempt", attempt,
			"retry_after", wait.String(),
		)
		return nil, &types.RetrySignal{RetryAfter: wait, Attempt: attempt, Reason: "forecast api returned 202"}

	case resp.StatusCode == http.StatusNotFound:
		return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamForecast, "forecast api has no data for this location", nil, map[string]any{
			"region": q.Region,
			"date":   q.Date,
		})

	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("forecast api returned %d", resp.StatusCode),
			fmt.Errorf("body: %s", strings.TrimSpace(string(body))))
	}

	var payload hourlyResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamForecast, "malformed forecast api response", err)
	}
	return payload.records(), nil
}

func (p hourlyResponse) records() []normalize.APIRecord {
	at := func(col []*float64, i int) *float64 {
		if i < len(col) {
			return col[i]
		}
		return nil
	}
	h := p.Hourly
	out := make([]normalize.APIRecord, 0, len(h.Time))
	for i, t := range h.Time {
		out = append(out, normalize.APIRecord{
			Time:           t,
			WindSpeed:      at(h.WindSpeed10m, i),
			WindDirection:  at(h.WindDirection10m, i),
			SwellHeight:    at(h.SwellWaveHeight, i),
			SwellPeriod:    at(h.SwellWavePeriod, i),
			SwellDirection: at(h.SwellWaveDirection, i),
		})
	}
	return out
}
