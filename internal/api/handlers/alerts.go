package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"surfcast/internal/alerts"
	"surfcast/internal/core"
	"surfcast/internal/types"
)

// ForecastGetter returns a forecast, waiting through upstream retry signals.
// Implemented by *forecasts.Service.
type ForecastGetter interface {
	Get(ctx context.Context, region, date string) (*types.CanonicalForecast, error)
}

// AlertEvaluator evaluates one alert. Implemented by *alerts.Engine.
type AlertEvaluator interface {
	Evaluate(f types.CanonicalForecast, alert types.AlertConfig) (types.MatchResult, error)
}

// AlertHandler serves the write-time checks of the alert editor. Alerts are
// stored by an external CRUD service; these endpoints only validate and
// preview them.
type AlertHandler struct {
	forecasts ForecastGetter
	engine    AlertEvaluator
	logger    *slog.Logger
}

// NewAlertHandler creates an AlertHandler.
func NewAlertHandler(forecasts ForecastGetter, engine AlertEvaluator, logger *slog.Logger) *AlertHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertHandler{forecasts: forecasts, engine: engine, logger: logger}
}

// RegisterRoutes mounts the alert endpoints.
func (h *AlertHandler) RegisterRoutes(r chi.Router) {
	r.Post("/validate", h.HandleValidate)
	r.Post("/preview", h.HandlePreview)
}

// previewRequest asks how an alert would fare against its forecast. With
// Seed set, the criteria targets are first taken from that forecast.
type previewRequest struct {
	Alert types.AlertConfig `json:"alert"`
	Seed  bool              `json:"seed"`
}

type previewResponse struct {
	Alert  types.AlertConfig `json:"alert"`
	Result types.MatchResult `json:"result"`
}

// HandleValidate handles POST /v1/alerts/validate. A valid alert is echoed
// back; an invalid one is answered with validation_invalid_alert listing
// every violation.
func (h *AlertHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var alert types.AlertConfig
	if err := core.DecodeJSON(w, r, &alert); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := alerts.Validate(alert); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: alert})
}

// HandlePreview handles POST /v1/alerts/preview. It validates the alert,
// fetches the forecast of its region and date, optionally seeds the
// criteria targets from it and evaluates the alert.
func (h *AlertHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	alert := req.Alert
	if err := alerts.Validate(alert); err != nil {
		core.Error(w, r, err)
		return
	}

	f, err := h.forecasts.Get(r.Context(), alert.Region, alert.ForecastDate)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if req.Seed && alert.AlertType == types.AlertTypeVariables {
		seeded, err := alerts.SeedTargets(*f, alert.ID, alert.Properties)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		alert.Properties = seeded
	}

	result, err := h.engine.Evaluate(*f, alert)
	if err != nil {
		h.logger.WarnContext(r.Context(), "alert preview failed",
			"alert_id", alert.ID,
			"region", alert.Region,
			"error", err,
		)
		if errors.Is(err, alerts.ErrNoBeachProfile) {
			err = types.NewAppError(types.ErrCodeNotFoundBeach, "no beach profile for region "+alert.Region, err)
		}
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: previewResponse{Alert: alert, Result: result}})
}
