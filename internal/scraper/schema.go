package scraper

import (
	"errors"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"surfcast/internal/types"
)

// Row field keys produced by the schemas. Every schema uses "time" for the
// hour label; the rest are source-specific and resolved by the normalizer's
// field maps.
const (
	FieldTime = "time"

	sfWind         = "wind"
	sfWindLetters  = "wind-letters"
	sfWaveHeight   = "wave-height"
	sfPeriods      = "periods"
	sfSwellLetters = "swell-letters"
	sfWindUnit     = "wind-unit"
	sfWaveUnit     = "wave-unit"

	wfWindSpeed  = "windSpeed"
	wfWindDir    = "windDir"
	wfWaveHeight = "waveHeight"
	wfWavePeriod = "wavePeriod"
	wfSwellDir   = "swellDir"
	wfWindUnit   = "windUnit"
	wfWaveUnit   = "waveUnit"
)

var (
	// ErrSchemaMismatch means the page does not use this schema's layout.
	ErrSchemaMismatch = errors.New("page layout does not match schema")
	// ErrNoRows means the layout matched but no usable row was found.
	ErrNoRows = errors.New("no forecast rows found")
)

// Schema is one known page layout. Layout variants of the same site are
// separate schemas tried in sequence.
type Schema interface {
	Name() string
	// ReadySelector must become visible once forecast content has rendered.
	ReadySelector() string
	// RowSelector matches one element per forecast row (or column).
	RowSelector() string
	Parse(doc *goquery.Document) ([]types.RawRow, error)
}

func cleanText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// attrOrText prefers the named attribute, falling back to the element text.
func attrOrText(s *goquery.Selection, attr string) string {
	if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return cleanText(s)
}

var metaFields = map[string]bool{
	FieldTime:  true,
	sfWindUnit: true,
	sfWaveUnit: true,
	wfWindUnit: true,
	wfWaveUnit: true,
}

// hasData reports whether a row carries anything besides its time label and
// unit annotations.
func hasData(fields map[string]string) bool {
	for k, v := range fields {
		if !metaFields[k] && v != "" {
			return true
		}
	}
	return false
}

// SurfForecastSchema parses column-oriented tables where each <tr> carries a
// data-row-name and each cell is one forecast time step. Directions are
// compass text, usually in a title attribute.
type SurfForecastSchema struct{}

func (SurfForecastSchema) Name() string          { return "surf-forecast" }
func (SurfForecastSchema) ReadySelector() string { return "table.forecast-table__basic" }
func (SurfForecastSchema) RowSelector() string {
	return `table.forecast-table__basic tr[data-row-name="time"] td`
}

func (s SurfForecastSchema) Parse(doc *goquery.Document) ([]types.RawRow, error) {
	table := doc.Find(s.ReadySelector()).First()
	if table.Length() == 0 {
		return nil, ErrSchemaMismatch
	}

	timeCells := table.Find(`tr[data-row-name="time"] td`)
	if timeCells.Length() == 0 {
		return nil, ErrSchemaMismatch
	}

	n := timeCells.Length()
	rows := make([]types.RawRow, n)
	for i := range rows {
		rows[i] = types.RawRow{Source: types.SourceSurfForecast, Fields: map[string]string{}}
	}

	// The days row spans several time columns per day.
	col := 0
	table.Find(`tr[data-row-name="days"] td`).Each(func(_ int, td *goquery.Selection) {
		day, _ := td.Attr("data-date")
		span := 1
		if v, ok := td.Attr("colspan"); ok {
			if c, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && c > 0 {
				span = c
			}
		}
		for j := 0; j < span && col < n; j++ {
			rows[col].Day = day
			col++
		}
	})

	fill := func(name string, value func(*goquery.Selection) string) {
		table.Find(`tr[data-row-name="` + name + `"] td`).Each(func(i int, td *goquery.Selection) {
			if i < n {
				rows[i].Fields[name] = value(td)
			}
		})
	}
	fill(FieldTime, cleanText)
	fill(sfWind, func(td *goquery.Selection) string {
		if speed := td.Find(".wind-speed"); speed.Length() > 0 {
			return cleanText(speed.First())
		}
		return cleanText(td)
	})
	fill(sfWindLetters, func(td *goquery.Selection) string { return attrOrText(td, "title") })
	fill(sfWaveHeight, cleanText)
	fill(sfPeriods, cleanText)
	fill(sfSwellLetters, func(td *goquery.Selection) string { return attrOrText(td, "title") })

	if unit, ok := table.Attr("data-wind-unit"); ok {
		for i := range rows {
			rows[i].Fields[sfWindUnit] = unit
		}
	}
	if unit, ok := table.Attr("data-wave-unit"); ok {
		for i := range rows {
			rows[i].Fields[sfWaveUnit] = unit
		}
	}

	out := rows[:0]
	for _, r := range rows {
		if hasData(r.Fields) {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoRows
	}
	return out, nil
}

// WindfinderSchema parses the row-oriented layout: one .weathertable__row per
// time step, grouped under a .weathertable carrying the day. Directions are
// degrees in the title of a .directionarrow.
type WindfinderSchema struct{}

func (WindfinderSchema) Name() string          { return "windfinder" }
func (WindfinderSchema) ReadySelector() string { return ".weathertable" }
func (WindfinderSchema) RowSelector() string   { return ".weathertable .weathertable__row" }

func (s WindfinderSchema) Parse(doc *goquery.Document) ([]types.RawRow, error) {
	tables := doc.Find(s.ReadySelector())
	if tables.Length() == 0 {
		return nil, ErrSchemaMismatch
	}

	var rows []types.RawRow
	tables.Each(func(_ int, table *goquery.Selection) {
		day, _ := table.Attr("data-date")
		table.Find(".weathertable__row").Each(func(_ int, tr *goquery.Selection) {
			speed := tr.Find(".data-wind .units-ws").First()
			height := tr.Find(".data-waveheight .units-wh").First()

			fields := map[string]string{
				FieldTime:    attrOrText(tr.Find(".data-time").First(), "data-hour"),
				wfWindSpeed:  cleanText(speed),
				wfWindDir:    attrOrText(tr.Find(".data-winddirection .directionarrow").First(), "title"),
				wfWaveHeight: cleanText(height),
				wfWavePeriod: cleanText(tr.Find(".data-wavefreq").First()),
				wfSwellDir:   attrOrText(tr.Find(".data-wavedirection .directionarrow").First(), "title"),
			}
			if u, ok := speed.Attr("data-unit"); ok {
				fields[wfWindUnit] = u
			}
			if u, ok := height.Attr("data-unit"); ok {
				fields[wfWaveUnit] = u
			}
			if hasData(fields) {
				rows = append(rows, types.RawRow{Source: types.SourceWindfinder, Day: day, Fields: fields})
			}
		})
	})

	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return rows, nil
}

// WindfinderLegacySchema parses the older sibling layout where every value
// lives in data-* attributes of tr[data-time].
type WindfinderLegacySchema struct{}

func (WindfinderLegacySchema) Name() string          { return "windfinder-legacy" }
func (WindfinderLegacySchema) ReadySelector() string { return "table.forecast" }
func (WindfinderLegacySchema) RowSelector() string   { return "table.forecast tr[data-time]" }

func (s WindfinderLegacySchema) Parse(doc *goquery.Document) ([]types.RawRow, error) {
	table := doc.Find(s.ReadySelector())
	if table.Length() == 0 {
		return nil, ErrSchemaMismatch
	}

	attr := func(sel *goquery.Selection, name string) string {
		v, _ := sel.Attr(name)
		return strings.TrimSpace(v)
	}

	var rows []types.RawRow
	table.Find("tr[data-time]").Each(func(_ int, tr *goquery.Selection) {
		fields := map[string]string{
			FieldTime:    attr(tr, "data-time"),
			wfWindSpeed:  attr(tr, "data-wind-speed"),
			wfWindDir:    attr(tr, "data-wind-dir"),
			wfWaveHeight: attr(tr, "data-wave-height"),
			wfWavePeriod: attr(tr, "data-wave-period"),
			wfSwellDir:   attr(tr, "data-swell-dir"),
		}
		if u := attr(tr, "data-wind-unit"); u != "" {
			fields[wfWindUnit] = u
		}
		if hasData(fields) {
			rows = append(rows, types.RawRow{Source: types.SourceWindfinder, Day: attr(tr, "data-date"), Fields: fields})
		}
	})

	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return rows, nil
}

// SchemasFor returns the schema variants known for a source, in the order they
// should be tried.
func SchemasFor(source types.SourceID) []Schema {
	switch source {
	case types.SourceSurfForecast:
		return []Schema{SurfForecastSchema{}}
	case types.SourceWindfinder:
		return []Schema{WindfinderSchema{}, WindfinderLegacySchema{}}
	default:
		return nil
	}
}
