// Package alerts decides whether a canonical forecast satisfies a user's
// alert. Evaluation is pure: the engine keeps no state between calls and
// performs no I/O beyond what an injected RatingScorer does.
package alerts

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"surfcast/internal/normalize"
	"surfcast/internal/types"
)

// epsilon absorbs float noise on inclusive bounds, e.g. |1.3-1.2| vs 0.1.
const epsilon = 1e-9

// ratingInputs are the forecast properties a star rating is computed from.
var ratingInputs = types.AllProperties

// RatingScorer computes the 1-5 star suitability of a forecast.
type RatingScorer interface {
	Score(f types.CanonicalForecast) (int, error)
}

// ScorerFunc adapts a function to RatingScorer.
type ScorerFunc func(f types.CanonicalForecast) (int, error)

// Score calls fn(f).
func (fn ScorerFunc) Score(f types.CanonicalForecast) (int, error) {
	return fn(f)
}

// ErrNoScorer is returned when a rating alert is evaluated by an engine built
// without a RatingScorer.
var ErrNoScorer = errors.New("alerts: no rating scorer configured")

// Engine is the alert matching engine.
type Engine struct {
	scorer RatingScorer
}

// NewEngine creates an Engine. scorer may be nil when only variables alerts
// are evaluated.
func NewEngine(scorer RatingScorer) *Engine {
	return &Engine{scorer: scorer}
}

// Evaluate decides whether f satisfies alert.
//
// Alerts that violate their invariants (duplicate properties, negative
// ranges, unknown enums) are not evaluated; the result is unmatched and the
// error is a *types.ConfigurationError. A scorer failure is returned wrapped,
// also with an unmatched result.
func (e *Engine) Evaluate(f types.CanonicalForecast, alert types.AlertConfig) (types.MatchResult, error) {
	result := types.MatchResult{
		AlertID:  alert.ID,
		Forecast: f.Clone(),
	}

	if violations := invariantViolations(alert); len(violations) > 0 {
		result.Reason = "invalid alert configuration"
		return result, &types.ConfigurationError{AlertID: alert.ID, Violations: violations}
	}

	switch alert.AlertType {
	case types.AlertTypeRating:
		return e.evaluateRating(result, f, alert.StarRating)
	default:
		return evaluateVariables(result, f, alert.Properties), nil
	}
}

// evaluateVariables ANDs every tolerance band. Unavailable observations never
// match.
func evaluateVariables(result types.MatchResult, f types.CanonicalForecast, criteria types.Criteria) types.MatchResult {
	if len(criteria) == 0 {
		result.Reason = "no criteria configured"
		return result
	}

	result.PerPropertyDelta = make([]types.PropertyDelta, 0, len(criteria))
	var failed []string
	for _, c := range criteria {
		d := delta(f, c)
		result.PerPropertyDelta = append(result.PerPropertyDelta, d)
		switch {
		case !d.Available:
			failed = append(failed, string(c.Property)+" unavailable")
		case !d.WithinRange:
			failed = append(failed, string(c.Property)+" out of range")
		}
	}

	if len(failed) > 0 {
		result.Reason = strings.Join(failed, ", ")
		return result
	}
	result.Matched = true
	result.Reason = "all criteria within range"
	return result
}

func delta(f types.CanonicalForecast, c types.PropertyCriterion) types.PropertyDelta {
	observed, available := f.Value(c.Property)
	d := types.PropertyDelta{
		Property:  c.Property,
		Observed:  observed,
		Target:    c.Target,
		Range:     c.Range,
		Available: available,
	}
	if !available {
		return d
	}

	var diff float64
	if c.Property.IsDirection() {
		diff = normalize.AngularDistance(observed, c.Target)
	} else {
		diff = math.Abs(observed - c.Target)
	}
	d.WithinRange = diff <= c.Range+epsilon
	return d
}

func (e *Engine) evaluateRating(result types.MatchResult, f types.CanonicalForecast, threshold types.StarRating) (types.MatchResult, error) {
	var missing []string
	for _, p := range ratingInputs {
		if !f.IsAvailable(p) {
			missing = append(missing, string(p))
		}
	}
	if len(missing) > 0 {
		result.Reason = "cannot rate incomplete forecast: " + strings.Join(missing, ", ") + " unavailable"
		return result, nil
	}

	if e.scorer == nil {
		result.Reason = "no rating scorer"
		return result, ErrNoScorer
	}
	stars, err := e.scorer.Score(f)
	if err != nil {
		result.Reason = "rating failed"
		return result, fmt.Errorf("alerts: scoring %s: %w", f.Key(), err)
	}
	result.ComputedStars = &stars

	if meetsThreshold(stars, threshold) {
		result.Matched = true
		result.Reason = fmt.Sprintf("rated %d stars, threshold %s", stars, threshold)
		return result, nil
	}
	result.Reason = fmt.Sprintf("rated %d stars, below threshold %s", stars, threshold)
	return result, nil
}

func meetsThreshold(stars int, threshold types.StarRating) bool {
	switch threshold {
	case types.StarsFive:
		return stars == 5
	case types.StarsFourPlus:
		return stars >= 4
	default:
		return false
	}
}
