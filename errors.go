package harness

import (
	"errors"
	"fmt"
)

// RuntimeError represents an operational error that should lead to exit code 2
// Examples include configuration errors, an unreachable mock server, etc.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// PhaseFailureError represents failed checks within a run (exit code 1)
type PhaseFailureError struct {
	Message string
}

func (e *PhaseFailureError) Error() string {
	return fmt.Sprintf("phase failure: %s", e.Message)
}

// NewPhaseFailureError creates a new PhaseFailureError
func NewPhaseFailureError(message string) *PhaseFailureError {
	return &PhaseFailureError{Message: message}
}

// IsPhaseFailureError checks if the error is or wraps a PhaseFailureError
func IsPhaseFailureError(err error) bool {
	var phaseErr *PhaseFailureError
	return err != nil && errors.As(err, &phaseErr)
}
