package normalize

import (
	"math"
	"strings"
)

// DirectionFormat declares how a source reports directions.
type DirectionFormat string

const (
	// DirDegrees is numeric degrees ("180°", "200"). Compass text is still
	// accepted and resolved with the 16-point table.
	DirDegrees DirectionFormat = "degrees"
	// DirCompass16 is 16-point compass text in 22.5° steps ("NNE").
	DirCompass16 DirectionFormat = "compass16"
	// DirCompass8 is 8-point compass text in 45° steps ("NE").
	DirCompass8 DirectionFormat = "compass8"
)

var compass16 = map[string]float64{
	"N": 0, "NNE": 22.5, "NE": 45, "ENE": 67.5,
	"E": 90, "ESE": 112.5, "SE": 135, "SSE": 157.5,
	"S": 180, "SSW": 202.5, "SW": 225, "WSW": 247.5,
	"W": 270, "WNW": 292.5, "NW": 315, "NNW": 337.5,
}

var compass8 = map[string]float64{
	"N": 0, "NE": 45, "E": 90, "SE": 135,
	"S": 180, "SW": 225, "W": 270, "NW": 315,
}

// CompassToDegrees resolves compass text using the table matching format.
// Degrees-format sources fall back to the 16-point table.
func CompassToDegrees(text string, format DirectionFormat) (float64, bool) {
	token := strings.ToUpper(strings.TrimSpace(text))
	token = strings.Trim(token, ".")
	table := compass16
	if format == DirCompass8 {
		table = compass8
	}
	deg, ok := table[token]
	return deg, ok
}

// NormalizeDegrees wraps any finite angle into [0, 360).
func NormalizeDegrees(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	// math.Mod can return values that round back to 360 for tiny negatives.
	if d >= 360 {
		d = 0
	}
	return d
}

// ArrowDeg returns the rotation of a display arrow for a meteorological "from"
// direction. Arrows point where the wind or swell is heading, so the value is
// reversed. It is only for presentation; stored values keep the "from" angle.
func ArrowDeg(fromDeg float64) float64 {
	return NormalizeDegrees(fromDeg + 180)
}

// AngularDistance is the smallest absolute difference between two headings.
func AngularDistance(a, b float64) float64 {
	d := math.Abs(NormalizeDegrees(a) - NormalizeDegrees(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}
