// Package errors consolidates error definitions for the DCN pipeline.
//
// This package provides:
// - Sentinel errors for every error class in the pipeline
// - Error category checking functions
// - Error wrapping utilities
// - A ValidationErrors collector for configuration validation
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Intake errors
	ErrMalformedInput = errors.New("malformed input record")
	ErrSourceUnknown  = errors.New("unknown data source")
	ErrIntakeClosed   = errors.New("intake is closed")

	// Validation errors
	ErrSchemaViolation   = errors.New("schema violation")
	ErrValueOutOfRange   = errors.New("value out of range")
	ErrValueNotFinite    = errors.New("value is not finite")
	ErrCounterRegression = errors.New("counter regression")
	ErrUnknownMetric     = errors.New("unknown metric name")

	// Aggregation errors
	ErrLateArrival   = errors.New("sample past grace period")
	ErrWindowFlushed = errors.New("window already flushed")

	// Store errors
	ErrStoreWrite        = errors.New("store write failed")
	ErrStoreClosed       = errors.New("store is closed")
	ErrRetriesExhausted  = errors.New("retries exhausted")
	ErrDeadLetterFailure = errors.New("dead-letter persist failed")

	// Availability errors
	ErrDownstreamUnavailable = errors.New("downstream unavailable")
	ErrQueueClosed           = errors.New("queue is closed")
	ErrTimeout               = errors.New("timeout")

	// Configuration errors
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrMissingField    = errors.New("missing required field")
	ErrInvalidInterval = errors.New("invalid interval")
	ErrInvalidMatcher  = errors.New("invalid label matcher")

	// State errors
	ErrNotRunning     = errors.New("service not running")
	ErrAlreadyRunning = errors.New("service already running")
	ErrNotFound       = errors.New("not found")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// IsRejection returns true if err is a validation rejection.
// Rejected samples are counted and never retried.
func IsRejection(err error) bool {
	return errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrValueNotFinite) ||
		errors.Is(err, ErrCounterRegression)
}

// IsQuarantine returns true if err marks a sample for quarantine rather
// than rejection. Quarantined samples are retained for reclassification.
func IsQuarantine(err error) bool {
	return errors.Is(err, ErrUnknownMetric) ||
		errors.Is(err, ErrSchemaViolation)
}

// IsValidation returns true if err is a config validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrInvalidMatcher)
}

// IsRetriable returns true if the error is potentially retriable.
// Retriable errors backpressure the caller instead of failing the batch.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrStoreWrite) ||
		errors.Is(err, ErrDownstreamUnavailable)
}

// IsFatal returns true for errors that should terminate the process.
// Only startup configuration errors and exhausted-retry conditions are fatal;
// everything else is handled within its stage.
func IsFatal(err error) bool {
	return IsValidation(err) || errors.Is(err, ErrDeadLetterFailure)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewMalformed creates a malformed-input error with a decode reason.
func NewMalformed(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrMalformedInput)
}

// NewValidation creates a config validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue creates an invalid value error.
func NewInvalidValue(field string, value interface{}, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, ErrInvalidConfig)
}

// NewNotFound creates a not-found error with context.
func NewNotFound(entityType, identifier string) error {
	return fmt.Errorf("%s '%s': %w", entityType, identifier, ErrNotFound)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the first error for errors.Is/As support.
func (v *ValidationErrors) Unwrap() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v.Errors[0]
}
