package alerts

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"surfcast/internal/types"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json field names so violations read like the payload the user sent.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks an AlertConfig at write time. It returns
// *types.ConfigurationError listing every violation, or nil.
func Validate(alert types.AlertConfig) error {
	var violations []string

	if err := validate.Struct(alert); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("alerts: validating %q: %w", alert.ID, err)
		}
		for _, fe := range fieldErrs {
			violations = append(violations, describeFieldError(fe))
		}
	}

	switch alert.AlertType {
	case types.AlertTypeVariables, types.AlertTypeRating:
		// An unknown type is already reported by the struct tags.
		violations = append(violations, invariantViolations(alert)...)
	}

	if alert.AlertType == types.AlertTypeVariables {
		if len(alert.Properties) == 0 {
			violations = append(violations, "properties: a variables alert needs at least one criterion")
		}
		for _, c := range alert.Properties {
			if c.Property.IsDirection() && c.Target >= 360 {
				violations = append(violations, fmt.Sprintf("properties.%s: direction target must be below 360", c.Property))
			}
			if c.Property.IsDirection() && c.Range > 180 {
				violations = append(violations, fmt.Sprintf("properties.%s: direction range cannot exceed 180", c.Property))
			}
		}
	}

	if alert.NotificationMethod == types.NotifyEmail {
		if err := validate.Var(alert.ContactInfo, "required,email"); err != nil {
			violations = append(violations, "contactInfo: a valid email address is required for email notifications")
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return &types.ConfigurationError{AlertID: alert.ID, Violations: violations}
}

// invariantViolations lists the violations the engine refuses to evaluate:
// duplicate or unknown properties, negative ranges and unknown enums.
func invariantViolations(alert types.AlertConfig) []string {
	var violations []string

	switch alert.AlertType {
	case types.AlertTypeVariables:
		seen := make(map[types.Property]bool, len(alert.Properties))
		for _, c := range alert.Properties {
			if !c.Property.Valid() {
				violations = append(violations, fmt.Sprintf("properties: unknown property %q", c.Property))
				continue
			}
			if seen[c.Property] {
				violations = append(violations, fmt.Sprintf("properties: duplicate property %q", c.Property))
			}
			seen[c.Property] = true
			if c.Range < 0 {
				violations = append(violations, fmt.Sprintf("properties.%s: range must not be negative", c.Property))
			}
		}
	case types.AlertTypeRating:
		switch alert.StarRating {
		case types.StarsFourPlus, types.StarsFive:
		case "":
			violations = append(violations, "starRating: required for rating alerts")
		default:
			violations = append(violations, fmt.Sprintf("starRating: unsupported threshold %q", alert.StarRating))
		}
	default:
		violations = append(violations, fmt.Sprintf("alertType: unsupported type %q", alert.AlertType))
	}
	return violations
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + ": required"
	case "oneof":
		return fmt.Sprintf("%s: must be one of [%s]", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s: must be at least %s", field, fe.Param())
	case "datetime":
		return field + ": must be a YYYY-MM-DD date"
	default:
		return fmt.Sprintf("%s: failed %q", field, fe.Tag())
	}
}
