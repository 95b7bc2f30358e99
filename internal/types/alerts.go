package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// PropertyCriterion is one tolerance band of a variables alert. Target is the
// forecast value captured when the alert was created; it is never re-derived.
type PropertyCriterion struct {
	Property Property `json:"property"`
	Target   float64  `json:"target" validate:"min=0"`
	Range    float64  `json:"range"`
}

// Criteria is the JSONB-backed list of criteria of an alert.
type Criteria []PropertyCriterion

// Scan implements sql.Scanner for JSONB columns.
func (c *Criteria) Scan(value interface{}) error {
	if value == nil {
		*c = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("criteria: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, c)
}

// Value implements driver.Valuer for JSONB columns.
func (c Criteria) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

// AlertConfig is a user-authored notification rule. It is read-only from the
// matching engine's point of view.
type AlertConfig struct {
	ID                 string             `json:"id" validate:"required"`
	UserID             string             `json:"userId" validate:"required"`
	Region             string             `json:"region" validate:"required"`
	ForecastDate       string             `json:"forecastDate" validate:"required,datetime=2006-01-02"`
	Active             bool               `json:"active"`
	NotificationMethod NotificationMethod `json:"notificationMethod" validate:"required,oneof=app email"`
	ContactInfo        string             `json:"contactInfo"`
	AlertType          AlertType          `json:"alertType" validate:"required,oneof=variables rating"`
	Properties         Criteria           `json:"properties,omitempty" validate:"dive"`
	StarRating         StarRating         `json:"starRating,omitempty"`
	LogEntryID         *string            `json:"logEntryId,omitempty"`
}

// PropertyDelta explains how one criterion fared against the forecast.
type PropertyDelta struct {
	Property    Property `json:"property"`
	Observed    float64  `json:"observed"`
	Target      float64  `json:"target"`
	Range       float64  `json:"range"`
	Available   bool     `json:"available"`
	WithinRange bool     `json:"withinRange"`
}

// MatchResult is produced fresh on every evaluation and never persisted here.
type MatchResult struct {
	Matched          bool              `json:"matched"`
	AlertID          string            `json:"alertId"`
	Forecast         CanonicalForecast `json:"forecast"`
	PerPropertyDelta []PropertyDelta   `json:"perPropertyDelta,omitempty"`
	ComputedStars    *int              `json:"computedStars,omitempty"`
	Reason           string            `json:"reason"`
}
