package forecasts

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surfcast/internal/types"
)

const catalogYAML = `
regions:
  - name: hossegor
    source: windfinder
    url: https://forecast.test/hossegor?day={date}
    timezone: Europe/Paris
  - name: ericeira
    source: surfforecast
    url: https://surf.test/ericeira
    timezone: Europe/Lisbon
  - name: peniche
    source: forecast_api
    lat: 39.3558
    lon: -9.3811
    timezone: Europe/Lisbon
`

func TestParseRegionCatalog(t *testing.T) {
	c, err := ParseRegionCatalog([]byte(catalogYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"hossegor", "ericeira", "peniche"}, c.Names())

	r, err := c.Lookup("hossegor")
	require.NoError(t, err)
	assert.Equal(t, types.SourceWindfinder, r.Source)
	assert.Equal(t, "https://forecast.test/hossegor?day=2026-03-14", r.SourceURL("2026-03-14"))

	p, err := c.Lookup("peniche")
	require.NoError(t, err)
	assert.InDelta(t, 39.3558, p.Latitude, 1e-9)
}

func TestRegionCatalog_UnknownRegion(t *testing.T) {
	c, err := ParseRegionCatalog([]byte(catalogYAML))
	require.NoError(t, err)

	_, err = c.Lookup("atlantis")
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundRegion, appErr.Code)
	assert.Equal(t, 404, appErr.HTTPStatus())
}

func TestParseRegionCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "regions: []"},
		{"malformed", "regions: [name"},
		{"missing name", "regions:\n  - source: windfinder\n    url: https://x.test"},
		{"unknown source", "regions:\n  - name: a\n    source: magicseaweed\n    url: https://x.test"},
		{"browser source without url", "regions:\n  - name: a\n    source: windfinder"},
		{"bad coordinates", "regions:\n  - name: a\n    source: forecast_api\n    lat: 123"},
		{"bad timezone", "regions:\n  - name: a\n    source: windfinder\n    url: https://x.test\n    timezone: Mars/Olympus"},
		{"duplicate", "regions:\n  - name: a\n    source: windfinder\n    url: https://x.test\n  - name: a\n    source: windfinder\n    url: https://y.test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRegionCatalog([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadRegionCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o600))

	c, err := LoadRegionCatalog(path)
	require.NoError(t, err)
	assert.Len(t, c.Names(), 3)

	_, err = LoadRegionCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
