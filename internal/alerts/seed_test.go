package alerts

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surfcast/internal/types"
)

func TestSeedTargets(t *testing.T) {
	f := baseForecast()
	criteria := types.Criteria{
		crit(types.PropWindSpeed, 0, 2),
		crit(types.PropSwellDirection, 0, 20),
	}

	seeded, err := SeedTargets(f, "a1", criteria)
	require.NoError(t, err)

	wind, _ := f.Value(types.PropWindSpeed)
	swellDir, _ := f.Value(types.PropSwellDirection)
	assert.Equal(t, wind, seeded[0].Target)
	assert.Equal(t, 2.0, seeded[0].Range)
	assert.Equal(t, swellDir, seeded[1].Target)
	assert.Zero(t, criteria[0].Target, "input criteria must not be modified")

	result, err := NewEngine(nil).Evaluate(f, variablesAlert(seeded...))
	require.NoError(t, err)
	assert.True(t, result.Matched, "an alert seeded from a forecast matches that forecast")
}

func TestSeedTargets_UnavailableValue(t *testing.T) {
	f := baseForecast()
	f.Unavailable = []types.Property{types.PropSwellPeriod}

	_, err := SeedTargets(f, "a1", types.Criteria{crit(types.PropSwellPeriod, 0, 1)})

	var cfgErr *types.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "a1", cfgErr.AlertID)
	assert.Contains(t, cfgErr.Violations[0], "swellPeriod")
}
