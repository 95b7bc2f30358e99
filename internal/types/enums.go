package types

// SourceID identifies an upstream forecast source. Extractors, field maps and
// fetchers are all selected by this tag.
type SourceID string

const (
	SourceSurfForecast SourceID = "surfforecast"
	SourceWindfinder   SourceID = "windfinder"
	SourceForecastAPI  SourceID = "forecast_api"
)

// Property names a single canonical forecast quantity. The same names are used
// for alert criteria and for the unavailable-field flags on a forecast.
type Property string

const (
	PropWindSpeed      Property = "windSpeed"
	PropWindDirection  Property = "windDirection"
	PropSwellHeight    Property = "swellHeight"
	PropSwellPeriod    Property = "swellPeriod"
	PropSwellDirection Property = "swellDirection"
)

// AllProperties lists every canonical property in a stable order.
var AllProperties = []Property{
	PropWindSpeed,
	PropWindDirection,
	PropSwellHeight,
	PropSwellPeriod,
	PropSwellDirection,
}

// IsDirection reports whether the property is an angle in degrees.
func (p Property) IsDirection() bool {
	return p == PropWindDirection || p == PropSwellDirection
}

// Valid reports whether p is one of the known properties.
func (p Property) Valid() bool {
	for _, known := range AllProperties {
		if p == known {
			return true
		}
	}
	return false
}

// AlertType selects the matching algorithm for an alert.
type AlertType string

const (
	AlertTypeVariables AlertType = "variables"
	AlertTypeRating    AlertType = "rating"
)

// NotificationMethod is the delivery channel requested by the user.
type NotificationMethod string

const (
	NotifyApp   NotificationMethod = "app"
	NotifyEmail NotificationMethod = "email"
)

// StarRating is the minimum-quality threshold of a rating alert.
type StarRating string

const (
	StarsFourPlus StarRating = "4+"
	StarsFive     StarRating = "5"
)

// ExtractionReason categorizes a Source Extractor failure.
type ExtractionReason string

const (
	ReasonTimeout          ExtractionReason = "timeout"
	ReasonSelectorNotFound ExtractionReason = "selector-not-found"
	ReasonBlocked          ExtractionReason = "blocked"
	ReasonParseError       ExtractionReason = "parse-error"
)
