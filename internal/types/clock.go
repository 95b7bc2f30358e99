package types

import "time"

// Clock supplies the current time. Components that stamp or default dates
// take one so tests can pin "now".
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock in UTC.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns T.
type FixedClock struct{ T time.Time }

func (c FixedClock) Now() time.Time { return c.T }

// Today returns the current UTC forecast date of c as YYYY-MM-DD.
func Today(c Clock) string {
	return c.Now().UTC().Format(DateLayout)
}
