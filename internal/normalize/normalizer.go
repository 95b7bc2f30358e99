// Package normalize converts source-specific forecast rows and API records
// into the canonical forecast model.
//
// Every numeric field ends up finite and non-negative, with directions in
// [0, 360). A field that cannot be read becomes 0, is listed in
// CanonicalForecast.Unavailable and produces a NormalizationWarning; it never
// turns into NaN or a silent zero.
package normalize

import (
	"fmt"
	"math"
	"time"

	"surfcast/internal/types"
)

// FieldMap tells the normalizer where a source keeps each canonical field and
// which units and direction notation it uses.
type FieldMap struct {
	Time           string
	WindSpeed      string
	WindDirection  string
	SwellHeight    string
	SwellPeriod    string
	SwellDirection string

	// Optional per-row unit fields. When a row carries them they override
	// the defaults below.
	WindUnitField   string
	HeightUnitField string

	SpeedUnit      SpeedUnit
	HeightUnit     HeightUnit
	WindDirFormat  DirectionFormat
	SwellDirFormat DirectionFormat
}

// SurfForecastFields maps the column-oriented surf-forecast style tables.
var SurfForecastFields = FieldMap{
	Time:            "time",
	WindSpeed:       "wind",
	WindDirection:   "wind-letters",
	SwellHeight:     "wave-height",
	SwellPeriod:     "periods",
	SwellDirection:  "swell-letters",
	WindUnitField:   "wind-unit",
	HeightUnitField: "wave-unit",
	SpeedUnit:       SpeedKmh,
	HeightUnit:      HeightM,
	WindDirFormat:   DirCompass16,
	SwellDirFormat:  DirCompass16,
}

// WindfinderFields maps the row-oriented windfinder style tables.
var WindfinderFields = FieldMap{
	Time:            "time",
	WindSpeed:       "windSpeed",
	WindDirection:   "windDir",
	SwellHeight:     "waveHeight",
	SwellPeriod:     "wavePeriod",
	SwellDirection:  "swellDir",
	WindUnitField:   "windUnit",
	HeightUnitField: "waveUnit",
	SpeedUnit:       SpeedKmh,
	HeightUnit:      HeightM,
	WindDirFormat:   DirDegrees,
	SwellDirFormat:  DirDegrees,
}

// Normalizer builds CanonicalForecasts. It holds no mutable state and is safe
// for concurrent use.
type Normalizer struct {
	fields map[types.SourceID]FieldMap
	clock  types.Clock
}

// New creates a Normalizer with the given per-source field maps. A nil clock
// uses the real clock.
func New(clock types.Clock, fields map[types.SourceID]FieldMap) *Normalizer {
	if clock == nil {
		clock = types.RealClock{}
	}
	m := make(map[types.SourceID]FieldMap, len(fields))
	for k, v := range fields {
		m[k] = v
	}
	return &Normalizer{fields: m, clock: clock}
}

// Default returns a Normalizer that knows the built-in scraped sources.
func Default(clock types.Clock) *Normalizer {
	return New(clock, map[types.SourceID]FieldMap{
		types.SourceSurfForecast: SurfForecastFields,
		types.SourceWindfinder:   WindfinderFields,
	})
}

// FieldsFor returns the field map registered for a source.
func (n *Normalizer) FieldsFor(source types.SourceID) (FieldMap, bool) {
	fm, ok := n.fields[source]
	return fm, ok
}

// NormalizeRow converts one scraped row. Individual unreadable fields are
// reported as warnings; an unknown source is an error.
func (n *Normalizer) NormalizeRow(region, date string, row types.RawRow) (types.CanonicalForecast, []types.NormalizationWarning, error) {
	fm, ok := n.fields[row.Source]
	if !ok {
		return types.CanonicalForecast{}, nil, fmt.Errorf("normalize: no field map for source %q", row.Source)
	}

	b := newBuilder(region, date, row.Source, n.clock)

	if hour, ok := ParseHour(row.Get(fm.Time)); ok {
		b.f.ForecastHour = hour
	} else {
		b.f.ForecastHour = -1
	}

	speedUnit := fm.SpeedUnit
	if u := row.Get(fm.WindUnitField); fm.WindUnitField != "" && u != "" {
		if detected, ok := detectSpeedUnit(u); ok {
			speedUnit = detected
		}
	}
	heightUnit := fm.HeightUnit
	if u := row.Get(fm.HeightUnitField); fm.HeightUnitField != "" && u != "" {
		if detected, ok := detectHeightUnit(u); ok {
			heightUnit = detected
		}
	}

	rawSpeed := row.Get(fm.WindSpeed)
	if unit, ok := detectSpeedUnit(rawSpeed); ok {
		speedUnit = unit
	}
	b.f.Wind.SpeedKmh = b.number(types.PropWindSpeed, rawSpeed, func(v float64) float64 {
		return ToKmh(v, speedUnit)
	})

	rawHeight := row.Get(fm.SwellHeight)
	if unit, ok := detectHeightUnit(rawHeight); ok {
		heightUnit = unit
	}
	b.f.Swell.HeightM = b.number(types.PropSwellHeight, rawHeight, func(v float64) float64 {
		return ToMetres(v, heightUnit)
	})

	b.f.Swell.PeriodS = b.number(types.PropSwellPeriod, row.Get(fm.SwellPeriod), round2)
	b.f.Wind.DirectionDeg = b.direction(types.PropWindDirection, row.Get(fm.WindDirection), fm.WindDirFormat)
	b.f.Swell.DirectionDeg = b.direction(types.PropSwellDirection, row.Get(fm.SwellDirection), fm.SwellDirFormat)

	return b.f, b.warnings, nil
}

// APIRecord is one hourly record of the JSON forecast API. Speeds are km/h,
// heights metres, periods seconds and directions degrees. Missing values are
// null.
type APIRecord struct {
	Time           string   `json:"time"`
	WindSpeed      *float64 `json:"wind_speed_10m"`
	WindDirection  *float64 `json:"wind_direction_10m"`
	SwellHeight    *float64 `json:"swell_wave_height"`
	SwellPeriod    *float64 `json:"swell_wave_period"`
	SwellDirection *float64 `json:"swell_wave_direction"`
}

// NormalizeAPI converts a JSON API record.
func (n *Normalizer) NormalizeAPI(region, date string, rec APIRecord) (types.CanonicalForecast, []types.NormalizationWarning) {
	b := newBuilder(region, date, types.SourceForecastAPI, n.clock)

	b.f.ForecastHour = -1
	if t, err := parseAPITime(rec.Time); err == nil {
		b.f.ForecastHour = t.Hour()
	}

	b.f.Wind.SpeedKmh = b.value(types.PropWindSpeed, rec.WindSpeed, round2)
	b.f.Wind.DirectionDeg = b.value(types.PropWindDirection, rec.WindDirection, NormalizeDegrees)
	b.f.Swell.HeightM = b.value(types.PropSwellHeight, rec.SwellHeight, round2)
	b.f.Swell.PeriodS = b.value(types.PropSwellPeriod, rec.SwellPeriod, round2)
	b.f.Swell.DirectionDeg = b.value(types.PropSwellDirection, rec.SwellDirection, NormalizeDegrees)

	return b.f, b.warnings
}

var apiTimeLayouts = []string{"2006-01-02T15:04", time.RFC3339, "2006-01-02T15:04:05"}

func parseAPITime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range apiTimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// builder accumulates one forecast plus the warnings raised while filling it.
type builder struct {
	f        types.CanonicalForecast
	warnings []types.NormalizationWarning
}

func newBuilder(region, date string, source types.SourceID, clock types.Clock) *builder {
	return &builder{
		f: types.CanonicalForecast{
			Region:    region,
			Date:      date,
			Source:    source,
			FetchedAt: clock.Now(),
		},
	}
}

func (b *builder) unavailable(p types.Property, raw, reason string) float64 {
	b.f.Unavailable = append(b.f.Unavailable, p)
	b.warnings = append(b.warnings, types.NormalizationWarning{Field: p, Raw: raw, Reason: reason})
	return 0
}

func (b *builder) number(p types.Property, raw string, convert func(float64) float64) float64 {
	if raw == "" {
		return b.unavailable(p, raw, "missing")
	}
	v, err := ParseNumber(raw)
	if err != nil {
		return b.unavailable(p, raw, err.Error())
	}
	return convert(v)
}

func (b *builder) direction(p types.Property, raw string, format DirectionFormat) float64 {
	if raw == "" {
		return b.unavailable(p, raw, "missing")
	}
	if v, err := ParseNumber(raw); err == nil {
		return NormalizeDegrees(v)
	}
	if deg, ok := CompassToDegrees(raw, format); ok {
		return deg
	}
	return b.unavailable(p, raw, fmt.Sprintf("unrecognised %s direction", format))
}

func (b *builder) value(p types.Property, v *float64, convert func(float64) float64) float64 {
	if v == nil {
		return b.unavailable(p, "", "missing")
	}
	raw := fmt.Sprintf("%g", *v)
	if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
		return b.unavailable(p, raw, "out of range")
	}
	return convert(*v)
}
