// Package handlers contains the HTTP handlers of the surfcast API.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"surfcast/internal/core"
	"surfcast/internal/forecasts"
	"surfcast/internal/normalize"
	"surfcast/internal/types"
)

// ForecastAttempter makes one numbered forecast attempt. Implemented by
// *forecasts.Service.
type ForecastAttempter interface {
	Attempt(ctx context.Context, region, date string, attempt int) (*types.CanonicalForecast, error)
}

// RegionCatalog lists the known regions. Implemented by
// *forecasts.RegionCatalog.
type RegionCatalog interface {
	Names() []string
	Lookup(name string) (forecasts.Region, error)
}

// ForecastHandler serves canonical forecasts. The client drives retries: an
// upstream retry signal is answered with 202 and a Retry-After header, and
// the client calls again with the next attempt number.
type ForecastHandler struct {
	service ForecastAttempter
	catalog RegionCatalog
	logger  *slog.Logger
}

// NewForecastHandler creates a ForecastHandler.
func NewForecastHandler(svc ForecastAttempter, catalog RegionCatalog, logger *slog.Logger) *ForecastHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ForecastHandler{service: svc, catalog: catalog, logger: logger}
}

// RegisterRoutes mounts the forecast endpoints.
func (h *ForecastHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleGetForecast)
	r.Get("/regions", h.HandleListRegions)
}

// displayArrows are the rotations of the "going to" arrows a client draws.
// The canonical directions stay meteorological "from" values.
type displayArrows struct {
	WindArrowDeg  float64 `json:"windArrowDeg"`
	SwellArrowDeg float64 `json:"swellArrowDeg"`
}

type forecastView struct {
	types.CanonicalForecast
	Display displayArrows `json:"display"`
}

type pendingView struct {
	Status            string `json:"status"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
	NextAttempt       int    `json:"next_attempt"`
	Reason            string `json:"reason,omitempty"`
}

type regionView struct {
	Name     string         `json:"name"`
	Source   types.SourceID `json:"source"`
	Timezone string         `json:"timezone"`
}

// HandleGetForecast handles GET /v1/forecasts?region=&date=&attempt=.
//
//   - 200: the forecast plus display arrows.
//   - 202: the source asked for more time; retry after Retry-After seconds
//     with attempt=next_attempt.
//   - 4xx/5xx: error envelope. A source still pending on the last attempt is
//     upstream_forecast_unavailable with details.attempts set.
func (h *ForecastHandler) HandleGetForecast(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	region := q.Get("region")
	if region == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "region query parameter is required", nil))
		return
	}
	date := q.Get("date")
	if date == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "date query parameter is required", nil))
		return
	}

	attempt := 1
	if raw := q.Get("attempt"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidNumber, "attempt must be a positive integer", nil))
			return
		}
		attempt = n
	}

	f, err := h.service.Attempt(r.Context(), region, date, attempt)
	var signal *types.RetrySignal
	switch {
	case errors.As(err, &signal):
		seconds := max(1, int(math.Ceil(signal.RetryAfter.Seconds())))
		h.logger.InfoContext(r.Context(), "forecast pending upstream",
			"region", region,
			"date", date,
			"attempt", attempt,
			"retry_after_seconds", seconds,
		)
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		core.JSON(w, r, http.StatusAccepted, core.APIResponse{Data: pendingView{
			Status:            "pending",
			RetryAfterSeconds: seconds,
			NextAttempt:       attempt + 1,
			Reason:            signal.Reason,
		}})
		return
	case err != nil:
		core.Error(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=300")
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: forecastView{
		CanonicalForecast: *f,
		Display: displayArrows{
			WindArrowDeg:  normalize.ArrowDeg(f.Wind.DirectionDeg),
			SwellArrowDeg: normalize.ArrowDeg(f.Swell.DirectionDeg),
		},
	}})
}

// HandleListRegions handles GET /v1/forecasts/regions.
func (h *ForecastHandler) HandleListRegions(w http.ResponseWriter, r *http.Request) {
	names := h.catalog.Names()
	out := make([]regionView, 0, len(names))
	for _, name := range names {
		reg, err := h.catalog.Lookup(name)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		out = append(out, regionView{Name: reg.Name, Source: reg.Source, Timezone: reg.Timezone})
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: out})
}
