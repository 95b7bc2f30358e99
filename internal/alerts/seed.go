package alerts

import (
	"fmt"

	"surfcast/internal/types"
)

// SeedTargets returns a copy of criteria whose targets are the forecast's
// observed values, the way an alert is created from the forecast a user is
// looking at. Ranges are kept. A property the forecast could not provide
// cannot seed a target and is reported as a configuration error.
func SeedTargets(f types.CanonicalForecast, alertID string, criteria types.Criteria) (types.Criteria, error) {
	seeded := make(types.Criteria, len(criteria))
	var violations []string
	for i, c := range criteria {
		seeded[i] = c
		if !c.Property.Valid() {
			violations = append(violations, fmt.Sprintf("properties: unknown property %q", c.Property))
			continue
		}
		v, ok := f.Value(c.Property)
		if !ok {
			violations = append(violations, fmt.Sprintf("properties.%s: forecast value unavailable, cannot seed target", c.Property))
			continue
		}
		seeded[i].Target = v
	}
	if len(violations) > 0 {
		return nil, &types.ConfigurationError{AlertID: alertID, Violations: violations}
	}
	return seeded, nil
}
