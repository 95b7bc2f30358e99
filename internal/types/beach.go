package types

// Arc is a clockwise compass sector from From to To, in degrees. An arc with
// From > To wraps through north.
type Arc struct {
	From float64 `json:"from"`
	To   float64 `json:"to"`
}

// Band is an inclusive numeric interval.
type Band struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies in [Min, Max].
func (b Band) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// BeachProfile is the beach metadata behind star ratings: where the wind and
// swell should come from, how big and long the swell should be, and when the
// spot works.
type BeachProfile struct {
	Region           string  `json:"region"`
	Name             string  `json:"name"`
	OptimalWindDirs  []Arc   `json:"optimalWindDirs"`
	OptimalSwellDirs []Arc   `json:"optimalSwellDirs"`
	SwellHeightM     Band    `json:"swellHeightM"`
	SwellPeriodS     Band    `json:"swellPeriodS"`
	MaxWindKmh       float64 `json:"maxWindKmh"`
	// SeasonMonths are the months (1-12) the spot is in season. Empty means
	// all year.
	SeasonMonths []int `json:"seasonMonths,omitempty"`
}
