package forecasts

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"surfcast/internal/types"
)

// datePlaceholder in a region URL is replaced by the requested forecast date.
const datePlaceholder = "{date}"

// Region is one catalog entry: where and how a region's forecast is read.
type Region struct {
	Name      string         `yaml:"name"`
	Source    types.SourceID `yaml:"source"`
	URL       string         `yaml:"url"`
	Timezone  string         `yaml:"timezone"`
	Latitude  float64        `yaml:"lat"`
	Longitude float64        `yaml:"lon"`
}

// SourceURL returns the page URL for date.
func (r Region) SourceURL(date string) string {
	return strings.ReplaceAll(r.URL, datePlaceholder, date)
}

// RegionCatalog is the immutable set of known regions.
type RegionCatalog struct {
	regions map[string]Region
	order   []string
}

type catalogFile struct {
	Regions []Region `yaml:"regions"`
}

// LoadRegionCatalog reads a YAML catalog from path.
func LoadRegionCatalog(path string) (*RegionCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading region catalog %s: %w", path, err)
	}
	return ParseRegionCatalog(data)
}

// ParseRegionCatalog decodes and validates a YAML catalog.
func ParseRegionCatalog(data []byte) (*RegionCatalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing region catalog: %w", err)
	}
	if len(file.Regions) == 0 {
		return nil, fmt.Errorf("region catalog is empty")
	}

	c := &RegionCatalog{regions: make(map[string]Region, len(file.Regions))}
	for i, r := range file.Regions {
		if err := validateRegion(r); err != nil {
			return nil, fmt.Errorf("region catalog entry %d: %w", i, err)
		}
		if _, dup := c.regions[r.Name]; dup {
			return nil, fmt.Errorf("region catalog entry %d: duplicate region %q", i, r.Name)
		}
		c.regions[r.Name] = r
		c.order = append(c.order, r.Name)
	}
	return c, nil
}

func validateRegion(r Region) error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch r.Source {
	case types.SourceSurfForecast, types.SourceWindfinder:
		if r.URL == "" {
			return fmt.Errorf("%s: url is required for source %s", r.Name, r.Source)
		}
	case types.SourceForecastAPI:
		if r.Latitude < -90 || r.Latitude > 90 || r.Longitude < -180 || r.Longitude > 180 {
			return fmt.Errorf("%s: coordinates out of range", r.Name)
		}
	default:
		return fmt.Errorf("%s: unknown source %q", r.Name, r.Source)
	}
	if r.Timezone != "" {
		if _, err := time.LoadLocation(r.Timezone); err != nil {
			return fmt.Errorf("%s: invalid timezone: %w", r.Name, err)
		}
	}
	return nil
}

// Lookup returns the named region or a not_found_region AppError.
func (c *RegionCatalog) Lookup(name string) (Region, error) {
	r, ok := c.regions[name]
	if !ok {
		return Region{}, types.NewAppErrorWithDetails(types.ErrCodeNotFoundRegion,
			fmt.Sprintf("unknown region %q", name), nil, map[string]any{"region": name})
	}
	return r, nil
}

// Names lists regions in catalog order.
func (c *RegionCatalog) Names() []string {
	return append([]string(nil), c.order...)
}
