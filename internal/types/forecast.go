package types

import (
	"fmt"
	"time"
)

// DateLayout is the wire and cache-key format of a forecast date.
const DateLayout = "2006-01-02"

// Wind holds wind conditions. DirectionDeg is the meteorological "from"
// direction in [0, 360).
type Wind struct {
	SpeedKmh     float64 `json:"speedKmh"`
	DirectionDeg float64 `json:"directionDeg"`
}

// Swell holds the primary swell component. DirectionDeg is the "from"
// direction in [0, 360).
type Swell struct {
	HeightM      float64 `json:"heightM"`
	PeriodS      float64 `json:"periodS"`
	DirectionDeg float64 `json:"directionDeg"`
}

// CanonicalForecast is the source-independent forecast for one region and day.
//
// All numeric fields are finite and non-negative. A value the source could not
// provide is stored as 0 and listed in Unavailable, so it can never be mistaken
// for a real zero. Values are built only by the normalizer and treated as
// immutable afterwards; use Clone before handing one to code that may retain it.
type CanonicalForecast struct {
	Region       string     `json:"region"`
	Date         string     `json:"date"`
	Wind         Wind       `json:"wind"`
	Swell        Swell      `json:"swell"`
	Unavailable  []Property `json:"unavailable,omitempty"`
	Source       SourceID   `json:"source"`
	ForecastHour int        `json:"forecastHour"`
	FetchedAt    time.Time  `json:"fetchedAt"`
}

// Key returns the (region, date) natural key used for caching and dedup.
func (f CanonicalForecast) Key() string {
	return ForecastKey(f.Region, f.Date)
}

// ForecastKey builds the cache key for a region and date.
func ForecastKey(region, date string) string {
	return fmt.Sprintf("%s|%s", region, date)
}

// Value returns the observed value for a property and whether it is available.
func (f CanonicalForecast) Value(p Property) (float64, bool) {
	var v float64
	switch p {
	case PropWindSpeed:
		v = f.Wind.SpeedKmh
	case PropWindDirection:
		v = f.Wind.DirectionDeg
	case PropSwellHeight:
		v = f.Swell.HeightM
	case PropSwellPeriod:
		v = f.Swell.PeriodS
	case PropSwellDirection:
		v = f.Swell.DirectionDeg
	default:
		return 0, false
	}
	return v, f.IsAvailable(p)
}

// IsAvailable reports whether the source supplied a value for p.
func (f CanonicalForecast) IsAvailable(p Property) bool {
	for _, u := range f.Unavailable {
		if u == p {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (f CanonicalForecast) Clone() CanonicalForecast {
	out := f
	if f.Unavailable != nil {
		out.Unavailable = append([]Property(nil), f.Unavailable...)
	}
	return out
}

// ParseDate validates a YYYY-MM-DD forecast date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid forecast date %q: %w", s, err)
	}
	return d, nil
}

// RawRow is one row of source-specific data as scraped from a page. Field
// names are the source's own; the normalizer owns the mapping.
type RawRow struct {
	Source SourceID          `json:"source"`
	Day    string            `json:"day,omitempty"`
	Fields map[string]string `json:"fields"`
}

// Get returns the named field, or "" when absent.
func (r RawRow) Get(name string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[name]
}

// NormalizationWarning is a non-fatal note that a field defaulted to zero and
// was flagged unavailable.
type NormalizationWarning struct {
	Field  Property `json:"field"`
	Raw    string   `json:"raw"`
	Reason string   `json:"reason"`
}

func (w NormalizationWarning) String() string {
	return fmt.Sprintf("%s: %s (raw=%q)", w.Field, w.Reason, w.Raw)
}
