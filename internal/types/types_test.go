package types

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDContext(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))

	ctx := WithRequestID(context.Background(), "req-42")
	assert.Equal(t, "req-42", GetRequestID(ctx))
}

func TestRunIDContext(t *testing.T) {
	assert.Empty(t, GetRunID(context.Background()))

	ctx := WithRunID(WithRequestID(context.Background(), "req-1"), "run-9")
	assert.Equal(t, "run-9", GetRunID(ctx))
	assert.Equal(t, "req-1", GetRequestID(ctx), "run and request ids use distinct keys")
}

func TestToday(t *testing.T) {
	// 23:30 at UTC-5 is already the next day in UTC.
	east := time.FixedZone("EST", -5*3600)
	c := FixedClock{T: time.Date(2026, 3, 14, 23, 30, 0, 0, east)}
	assert.Equal(t, "2026-03-15", Today(c))
}

func TestBandContainsIsInclusive(t *testing.T) {
	b := Band{Min: 1, Max: 2.5}
	assert.True(t, b.Contains(1))
	assert.True(t, b.Contains(2.5))
	assert.False(t, b.Contains(0.99))
	assert.False(t, b.Contains(2.51))
}

func TestCanonicalForecastValue(t *testing.T) {
	f := CanonicalForecast{
		Region:      "hossegor",
		Date:        "2026-03-14",
		Wind:        Wind{SpeedKmh: 14, DirectionDeg: 90},
		Swell:       Swell{HeightM: 1.8, PeriodS: 0, DirectionDeg: 290},
		Unavailable: []Property{PropSwellPeriod},
	}

	v, ok := f.Value(PropWindSpeed)
	assert.True(t, ok)
	assert.Equal(t, 14.0, v)

	v, ok = f.Value(PropSwellPeriod)
	assert.False(t, ok, "an unavailable zero is not a real zero")
	assert.Zero(t, v)

	_, ok = f.Value(Property("tide"))
	assert.False(t, ok)

	assert.Equal(t, "hossegor|2026-03-14", f.Key())
}

func TestCanonicalForecastClone(t *testing.T) {
	f := CanonicalForecast{Unavailable: []Property{PropWindDirection}}
	c := f.Clone()
	c.Unavailable[0] = PropSwellHeight
	assert.Equal(t, PropWindDirection, f.Unavailable[0])
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, 14, d.Day())

	_, err = ParseDate("2026-02-30")
	assert.Error(t, err)
	_, err = ParseDate("14/03/2026")
	assert.ErrorContains(t, err, "invalid forecast date")
}

func TestProperty(t *testing.T) {
	assert.True(t, PropWindDirection.IsDirection())
	assert.False(t, PropSwellHeight.IsDirection())
	assert.True(t, PropSwellPeriod.Valid())
	assert.False(t, Property("tide").Valid())
}

func TestCriteriaScanValue(t *testing.T) {
	var c Criteria
	require.NoError(t, c.Scan([]byte(`[{"property":"windSpeed","target":12,"range":3}]`)))
	require.Len(t, c, 1)
	assert.Equal(t, PropWindSpeed, c[0].Property)

	require.NoError(t, c.Scan(nil))
	assert.Nil(t, c)

	assert.Error(t, c.Scan(42))

	v, err := Criteria(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}
