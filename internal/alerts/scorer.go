package alerts

import (
	"errors"
	"fmt"
	"slices"

	"surfcast/internal/normalize"
	"surfcast/internal/types"
)

// Scoring constants. Each of the five factors earns 0, 1 or 2 half-stars.
const (
	// calmWindKmh is light enough that wind direction no longer matters.
	calmWindKmh = 8.0
	// nearArcDeg is how far outside an optimal arc a heading still earns
	// partial credit (one compass-16 point).
	nearArcDeg = 22.5
	// swellHeightSlack widens the height band for partial credit.
	swellHeightSlack = 0.25
	// swellPeriodSlackS widens the period band for partial credit.
	swellPeriodSlackS = 2.0
	// strongWindFactor of MaxWindKmh still earns partial credit.
	strongWindFactor = 1.5
)

// ErrNoBeachProfile is returned when a forecast's region has no profile.
var ErrNoBeachProfile = errors.New("alerts: no beach profile for region")

// SuitabilityScorer rates forecasts against per-region beach profiles.
type SuitabilityScorer struct {
	profiles map[string]types.BeachProfile
}

var _ RatingScorer = (*SuitabilityScorer)(nil)

// NewSuitabilityScorer indexes profiles by region. Profiles are validated;
// duplicate regions are rejected.
func NewSuitabilityScorer(profiles []types.BeachProfile) (*SuitabilityScorer, error) {
	index := make(map[string]types.BeachProfile, len(profiles))
	for _, p := range profiles {
		if err := validateProfile(p); err != nil {
			return nil, err
		}
		if _, dup := index[p.Region]; dup {
			return nil, fmt.Errorf("alerts: duplicate beach profile for region %q", p.Region)
		}
		index[p.Region] = p
	}
	return &SuitabilityScorer{profiles: index}, nil
}

func validateProfile(p types.BeachProfile) error {
	switch {
	case p.Region == "":
		return errors.New("alerts: beach profile without region")
	case p.SwellHeightM.Min < 0 || p.SwellHeightM.Min > p.SwellHeightM.Max:
		return fmt.Errorf("alerts: beach profile %q: invalid swell height band", p.Region)
	case p.SwellPeriodS.Min < 0 || p.SwellPeriodS.Min > p.SwellPeriodS.Max:
		return fmt.Errorf("alerts: beach profile %q: invalid swell period band", p.Region)
	case p.MaxWindKmh <= 0:
		return fmt.Errorf("alerts: beach profile %q: max wind must be positive", p.Region)
	}
	for _, m := range p.SeasonMonths {
		if m < 1 || m > 12 {
			return fmt.Errorf("alerts: beach profile %q: invalid season month %d", p.Region, m)
		}
	}
	return nil
}

// Score implements RatingScorer.
func (s *SuitabilityScorer) Score(f types.CanonicalForecast) (int, error) {
	p, ok := s.profiles[f.Region]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoBeachProfile, f.Region)
	}
	return ScoreProfile(p, f), nil
}

// ScoreProfile rates f against p from 1 to 5 stars. Swell height, swell
// period, swell direction, wind direction and wind speed each earn up to two
// half-stars; the total is floored to whole stars, and a forecast outside the
// beach's season loses one star.
func ScoreProfile(p types.BeachProfile, f types.CanonicalForecast) int {
	half := bandScore(f.Swell.HeightM, p.SwellHeightM, p.SwellHeightM.Max*swellHeightSlack) +
		bandScore(f.Swell.PeriodS, p.SwellPeriodS, swellPeriodSlackS) +
		arcScore(f.Swell.DirectionDeg, p.OptimalSwellDirs) +
		windDirectionScore(f.Wind, p.OptimalWindDirs) +
		windSpeedScore(f.Wind.SpeedKmh, p.MaxWindKmh)

	stars := half / 2
	if !inSeason(p.SeasonMonths, f.Date) {
		stars--
	}
	return min(max(stars, 1), 5)
}

func bandScore(v float64, b types.Band, slack float64) int {
	switch {
	case b.Contains(v):
		return 2
	case v >= b.Min-slack && v <= b.Max+slack:
		return 1
	default:
		return 0
	}
}

// arcScore gives full credit inside any arc, partial credit near one. No
// arcs means every heading works.
func arcScore(deg float64, arcs []types.Arc) int {
	if len(arcs) == 0 {
		return 2
	}
	best := 0
	for _, a := range arcs {
		switch d := arcDistance(deg, a); {
		case d == 0:
			return 2
		case d <= nearArcDeg:
			best = 1
		}
	}
	return best
}

func windDirectionScore(w types.Wind, arcs []types.Arc) int {
	if w.SpeedKmh <= calmWindKmh {
		return 2
	}
	return arcScore(w.DirectionDeg, arcs)
}

func windSpeedScore(kmh, maxKmh float64) int {
	switch {
	case kmh <= maxKmh:
		return 2
	case kmh <= maxKmh*strongWindFactor:
		return 1
	default:
		return 0
	}
}

// arcDistance is 0 inside the clockwise arc, otherwise the angular distance
// to its nearest edge.
func arcDistance(deg float64, a types.Arc) float64 {
	deg = normalize.NormalizeDegrees(deg)
	from := normalize.NormalizeDegrees(a.From)
	to := normalize.NormalizeDegrees(a.To)

	var inside bool
	if from <= to {
		inside = deg >= from && deg <= to
	} else {
		inside = deg >= from || deg <= to
	}
	if inside {
		return 0
	}
	return min(normalize.AngularDistance(deg, from), normalize.AngularDistance(deg, to))
}

func inSeason(months []int, date string) bool {
	if len(months) == 0 {
		return true
	}
	d, err := types.ParseDate(date)
	if err != nil {
		return true
	}
	return slices.Contains(months, int(d.Month()))
}

