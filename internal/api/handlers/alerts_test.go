package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surfcast/internal/alerts"
	"surfcast/internal/core"
	"surfcast/internal/types"
)

func serveAlerts(svc *mockForecastService, engine AlertEvaluator, path, body string) *httptest.ResponseRecorder {
	h := NewAlertHandler(svc, engine, discardLogger())
	r := chi.NewRouter()
	r.Route("/v1/alerts", h.RegisterRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rec
}

const validAlert = `{
	"id": "alert-1",
	"userId": "user-1",
	"region": "hossegor",
	"forecastDate": "2026-03-14",
	"active": true,
	"notificationMethod": "app",
	"alertType": "variables",
	"properties": [{"property": "windSpeed", "target": 10, "range": 2}]
}`

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) core.ErrorDetail {
	t.Helper()
	var resp core.APIErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

func TestHandleValidate_Valid(t *testing.T) {
	rec := serveAlerts(&mockForecastService{}, alerts.NewEngine(nil), "/v1/alerts/validate", validAlert)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleValidate_ReportsEveryViolation(t *testing.T) {
	body := `{
		"id": "alert-2",
		"userId": "user-1",
		"region": "hossegor",
		"forecastDate": "2026-03-14",
		"notificationMethod": "email",
		"alertType": "variables",
		"properties": [
			{"property": "windSpeed", "target": 10, "range": -1},
			{"property": "windSpeed", "target": 12, "range": 2}
		]
	}`
	rec := serveAlerts(&mockForecastService{}, alerts.NewEngine(nil), "/v1/alerts/validate", body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	detail := decodeErrorBody(t, rec)
	assert.Equal(t, "validation_invalid_alert", detail.Code)

	violations, ok := detail.Details["violations"].([]any)
	require.True(t, ok, "violations must be listed in details")
	joined, _ := json.Marshal(violations)
	assert.Contains(t, string(joined), "duplicate property")
	assert.Contains(t, string(joined), "range must not be negative")
	assert.Contains(t, string(joined), "contactInfo")
}

func TestHandleValidate_BadJSON(t *testing.T) {
	rec := serveAlerts(&mockForecastService{}, alerts.NewEngine(nil), "/v1/alerts/validate", `{"id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_invalid_json", decodeErrorBody(t, rec).Code)
}

func TestHandlePreview_EvaluatesAgainstForecast(t *testing.T) {
	svc := &mockForecastService{forecast: sampleForecast()}
	rec := serveAlerts(svc, alerts.NewEngine(nil), "/v1/alerts/preview", `{"alert":`+validAlert+`}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data previewResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Data.Result.Matched, "12 km/h is within 10±2")
	assert.Equal(t, attemptCall{"hossegor", "2026-03-14", 0}, svc.calls[0])
}

func TestHandlePreview_SeedsTargets(t *testing.T) {
	svc := &mockForecastService{forecast: sampleForecast()}
	body := `{"seed": true, "alert":` + strings.Replace(validAlert, `"target": 10`, `"target": 0`, 1) + `}`
	rec := serveAlerts(svc, alerts.NewEngine(nil), "/v1/alerts/preview", body)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data previewResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 12.0, resp.Data.Alert.Properties[0].Target)
	assert.True(t, resp.Data.Result.Matched)
}

func TestHandlePreview_InvalidAlertSkipsFetch(t *testing.T) {
	svc := &mockForecastService{forecast: sampleForecast()}
	body := `{"alert":` + strings.Replace(validAlert, `"range": 2`, `"range": -2`, 1) + `}`
	rec := serveAlerts(svc, alerts.NewEngine(nil), "/v1/alerts/preview", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.calls)
}

func TestHandlePreview_MissingBeachProfile(t *testing.T) {
	svc := &mockForecastService{forecast: sampleForecast()}
	scorer, err := alerts.NewSuitabilityScorer(nil)
	require.NoError(t, err)

	body := `{"alert":` + strings.Replace(
		strings.Replace(validAlert, `"alertType": "variables"`, `"alertType": "rating", "starRating": "4+"`, 1),
		`"properties": [{"property": "windSpeed", "target": 10, "range": 2}]`, `"properties": []`, 1) + `}`
	rec := serveAlerts(svc, alerts.NewEngine(scorer), "/v1/alerts/preview", body)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(types.ErrCodeNotFoundBeach), decodeErrorBody(t, rec).Code)
}

func TestHandlePreview_ForecastUnavailable(t *testing.T) {
	svc := &mockForecastService{err: &types.RetryExhausted{Attempts: 3}}
	rec := serveAlerts(svc, alerts.NewEngine(nil), "/v1/alerts/preview", `{"alert":`+validAlert+`}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "upstream_forecast_unavailable", decodeErrorBody(t, rec).Code)
}
