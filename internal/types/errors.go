package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Handlers use these instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField  ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidDate   ErrorCode = "validation_invalid_date"
	ErrCodeValidationInvalidAlert  ErrorCode = "validation_invalid_alert"
	ErrCodeValidationInvalidNumber ErrorCode = "validation_invalid_number"

	// Not Found (404)
	ErrCodeNotFoundRegion ErrorCode = "not_found_region"
	ErrCodeNotFoundBeach  ErrorCode = "not_found_beach"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeInternalQueue       ErrorCode = "internal_queue_error"
	ErrCodeUpstreamForecast    ErrorCode = "upstream_forecast_unavailable"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamBlocked     ErrorCode = "upstream_blocked"
)

// HTTPStatus maps an ErrorCode to its HTTP status code. Unrecognized codes map
// to 500.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case s == string(ErrCodeUpstreamRateLimited):
		return http.StatusServiceUnavailable
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type. Domain errors are
// translated into AppErrors at the API boundary.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// ExtractionError reports a Source Extractor failure. It is never retried by
// the extractor itself.
type ExtractionError struct {
	Source SourceID
	Reason ExtractionReason
	URL    string
	Err    error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("extraction failed (source=%s, reason=%s)", e.Source, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// AppError translates the failure for the API layer.
func (e *ExtractionError) AppError() *AppError {
	code := ErrCodeUpstreamForecast
	if e.Reason == ReasonBlocked {
		code = ErrCodeUpstreamBlocked
	}
	return NewAppErrorWithDetails(code, "forecast unavailable", e, map[string]any{
		"source": string(e.Source),
		"reason": string(e.Reason),
	})
}

// NewExtractionError builds an ExtractionError.
func NewExtractionError(source SourceID, reason ExtractionReason, url string, err error) *ExtractionError {
	return &ExtractionError{Source: source, Reason: reason, URL: url, Err: err}
}

// RetrySignal is the explicit "try again later" answer of an upstream source.
// It is not a failure; only this signal makes the retry coordinator loop.
type RetrySignal struct {
	RetryAfter time.Duration
	Attempt    int
	Reason     string
}

func (s *RetrySignal) Error() string {
	return fmt.Sprintf("upstream asked to retry after %s (attempt %d): %s", s.RetryAfter, s.Attempt, s.Reason)
}

// RetryExhausted is raised after the maximum number of retry-signalled
// attempts. It is terminal.
type RetryExhausted struct {
	Attempts int
	Last     *RetrySignal
}

func (e *RetryExhausted) Error() string {
	return fmt.Sprintf("forecast still pending after %d attempts", e.Attempts)
}

func (e *RetryExhausted) Unwrap() error {
	if e.Last == nil {
		return nil
	}
	return e.Last
}

// AppError translates the failure for the API layer. It shares the code of
// a failed extraction; details.attempts tells the two apart.
func (e *RetryExhausted) AppError() *AppError {
	return NewAppErrorWithDetails(ErrCodeUpstreamForecast, "forecast unavailable", e, map[string]any{
		"attempts": e.Attempts,
	})
}

// ConfigurationError reports invariant violations in an AlertConfig.
type ConfigurationError struct {
	AlertID    string
	Violations []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid alert configuration %q: %s", e.AlertID, strings.Join(e.Violations, "; "))
}

// AppError translates the failure for the API layer.
func (e *ConfigurationError) AppError() *AppError {
	return NewAppErrorWithDetails(ErrCodeValidationInvalidAlert, e.Error(), e, map[string]any{
		"alert_id":   e.AlertID,
		"violations": e.Violations,
	})
}

// ToAppError converts any error into an AppError, preserving domain semantics
// for the error types declared in this package.
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		return extErr.AppError()
	}
	var exhausted *RetryExhausted
	if errors.As(err, &exhausted) {
		return exhausted.AppError()
	}
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return cfgErr.AppError()
	}
	return NewAppError(ErrCodeInternalUnexpected, "an unexpected error occurred", err)
}
