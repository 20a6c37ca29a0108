// Package errors provides a single structured error type used across the
// agents for wrapping operational failures (bus, runtime, LLM, webhook
// calls) with enough context to log without string-matching.
package errors

import "fmt"

// OperationError describes a failed operation with optional component and
// resource context, matching the errors surfaced by runtime, bus, and LLM
// clients throughout this module.
type OperationError struct {
	Operation string
	Component string
	Resource  string
	Cause     error
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("failed to %s", e.Operation)
	if e.Component != "" {
		msg += fmt.Sprintf(", component: %s", e.Component)
	}
	if e.Resource != "" {
		msg += fmt.Sprintf(", resource: %s", e.Resource)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(", cause: %s", e.Cause.Error())
	}
	return msg
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *OperationError) Unwrap() error {
	return e.Cause
}

// FailedTo builds a minimal OperationError for a single action.
func FailedTo(action string, cause error) error {
	return &OperationError{Operation: action, Cause: cause}
}

// FailedToWithDetails builds an OperationError with component/resource context.
func FailedToWithDetails(action, component, resource string, cause error) error {
	return &OperationError{
		Operation: action,
		Component: component,
		Resource:  resource,
		Cause:     cause,
	}
}

// Wrapf wraps err with an additional formatted message, returning nil when
// err is nil so call sites can no-op safely.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
