package scraper

import (
	"errors"

	"surfcast/internal/normalize"
	"surfcast/internal/types"
)

// ErrNoTargetRow means no row falls inside the reference hour window. The
// forecast is unavailable; callers must not substitute a neighbouring row.
var ErrNoTargetRow = errors.New("no forecast row for the reference hour")

// TargetWindow is the local reference hour range, inclusive on both ends.
type TargetWindow struct {
	StartHour int
	EndHour   int
}

// DefaultTargetWindow covers the 07:00-08:00 early session.
var DefaultTargetWindow = TargetWindow{StartHour: 7, EndHour: 8}

// Contains reports whether hour lies inside the window.
func (w TargetWindow) Contains(hour int) bool {
	return hour >= w.StartHour && hour <= w.EndHour
}

// SelectTargetRow returns the first row for date whose hour label falls in the
// window. Rows without a day are assumed to belong to the requested date.
func SelectTargetRow(rows []types.RawRow, date string, window TargetWindow) (types.RawRow, error) {
	for _, r := range rows {
		if r.Day != "" && r.Day != date {
			continue
		}
		hour, ok := normalize.ParseHour(r.Get(FieldTime))
		if !ok {
			continue
		}
		if window.Contains(hour) {
			return r, nil
		}
	}
	return types.RawRow{}, ErrNoTargetRow
}
