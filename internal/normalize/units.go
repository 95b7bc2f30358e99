package normalize

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// SpeedUnit is a wind speed unit as reported by a source.
type SpeedUnit string

const (
	SpeedKmh SpeedUnit = "kmh"
	SpeedKts SpeedUnit = "kts"
	SpeedMs  SpeedUnit = "ms"
	SpeedMph SpeedUnit = "mph"
)

// HeightUnit is a wave height unit as reported by a source.
type HeightUnit string

const (
	HeightM  HeightUnit = "m"
	HeightFt HeightUnit = "ft"
)

var (
	errNoNumber  = errors.New("no numeric value")
	errNegative  = errors.New("negative value")
	errNotFinite = errors.New("value is not finite")
)

var numberPattern = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)

// ParseNumber pulls the first number out of decorated text such as "10 s",
// "180°", "1,2m" or "1.2-1.5" (lower bound). The result is finite and >= 0.
func ParseNumber(raw string) (float64, error) {
	match := numberPattern.FindString(raw)
	if match == "" {
		return 0, errNoNumber
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", "."), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotFinite
	}
	if v < 0 {
		return 0, errNegative
	}
	return v, nil
}

// detectSpeedUnit looks for a unit suffix in the raw text.
func detectSpeedUnit(raw string) (SpeedUnit, bool) {
	s := strings.ToLower(raw)
	switch {
	case strings.Contains(s, "km/h"), strings.Contains(s, "kmh"), strings.Contains(s, "kph"):
		return SpeedKmh, true
	case strings.Contains(s, "kts"), strings.Contains(s, "knot"), strings.Contains(s, "kn"):
		return SpeedKts, true
	case strings.Contains(s, "m/s"), strings.Contains(s, "mps"):
		return SpeedMs, true
	case strings.Contains(s, "mph"):
		return SpeedMph, true
	}
	return "", false
}

// detectHeightUnit looks for a unit suffix in the raw text.
func detectHeightUnit(raw string) (HeightUnit, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.HasSuffix(s, "ft"), strings.Contains(s, "feet"):
		return HeightFt, true
	case strings.HasSuffix(s, "m"):
		return HeightM, true
	}
	return "", false
}

// ToKmh converts a wind speed to km/h.
func ToKmh(v float64, unit SpeedUnit) float64 {
	switch unit {
	case SpeedKts:
		return round2(v * 1.852)
	case SpeedMs:
		return round2(v * 3.6)
	case SpeedMph:
		return round2(v * 1.609344)
	default:
		return round2(v)
	}
}

// ToMetres converts a wave height to metres.
func ToMetres(v float64, unit HeightUnit) float64 {
	if unit == HeightFt {
		return round2(v * 0.3048)
	}
	return round2(v)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

var hourPattern = regexp.MustCompile(`(?i)^\s*(\d{1,2})(?::\d{2})?\s*(h|am|pm)?`)

// ParseHour reads the hour of day from labels like "08", "08h", "08:00",
// "7am" or "2PM". It returns false when no hour can be read.
func ParseHour(raw string) (int, bool) {
	m := hourPattern.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	h, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "am":
		if h == 12 {
			h = 0
		}
	case "pm":
		if h < 12 {
			h += 12
		}
	}
	if h < 0 || h > 23 {
		return 0, false
	}
	return h, true
}
