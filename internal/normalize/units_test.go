package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		raw     string
		want    float64
		wantErr bool
	}{
		{raw: "15", want: 15},
		{raw: "10 s", want: 10},
		{raw: "180°", want: 180},
		{raw: "1,2m", want: 1.2},
		{raw: "1.2-1.5", want: 1.2},
		{raw: " 0.8 m ", want: 0.8},
		{raw: "", wantErr: true},
		{raw: "n/a", wantErr: true},
		{raw: "-4", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseNumber(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseHour(t *testing.T) {
	tests := []struct {
		raw    string
		want   int
		wantOK bool
	}{
		{"08", 8, true},
		{"08h", 8, true},
		{"08:00", 8, true},
		{"7am", 7, true},
		{"12am", 0, true},
		{"2PM", 14, true},
		{"12pm", 12, true},
		{"25", 0, false},
		{"noon", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseHour(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestToKmh(t *testing.T) {
	assert.Equal(t, 15.0, ToKmh(15, SpeedKmh))
	assert.Equal(t, 18.52, ToKmh(10, SpeedKts))
	assert.Equal(t, 36.0, ToKmh(10, SpeedMs))
	assert.Equal(t, 16.09, ToKmh(10, SpeedMph))
}

func TestToMetres(t *testing.T) {
	assert.Equal(t, 1.2, ToMetres(1.2, HeightM))
	assert.Equal(t, 3.05, ToMetres(10, HeightFt))
}
