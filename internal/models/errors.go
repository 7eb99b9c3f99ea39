package models

import "fmt"

// DataError reports malformed or empty input: an all-zero sample, a
// missing sample identifier, a negative cell. Never substituted with
// defaults; it propagates to the caller.
type DataError struct {
	Msg string
}

func (e *DataError) Error() string { return e.Msg }

// NewDataError formats a DataError.
func NewDataError(format string, args ...interface{}) *DataError {
	return &DataError{Msg: fmt.Sprintf(format, args...)}
}

// ValidationError reports a structurally invalid perturbation request,
// surfaced before any computation runs.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	return e.Msg
}

// NewValidationError formats a ValidationError for a request field.
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// SimulationError reports that a valid request produced a downstream
// data failure during recomputation (e.g. the perturbation zeroed the
// total abundance). The baseline profile, if already computed, rides
// along so callers can show partial context.
type SimulationError struct {
	Baseline *Profile
	Err      error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulation failed: %v", e.Err)
}

func (e *SimulationError) Unwrap() error { return e.Err }
