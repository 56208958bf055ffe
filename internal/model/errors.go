package model

import (
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("model: validation failed")
	ErrTransition    = errors.New("model: illegal transition")
	ErrPolicy        = errors.New("model: policy violation")
	ErrExternal      = errors.New("model: external collaborator failure")
	ErrAlertNotFound = errors.New("model: reminder alert not found")
)

// ValidationError reports malformed input rejected before any state is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("model: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// TransitionError reports a state-machine edge that does not exist.
type TransitionError struct {
	Entity string
	From   string
	Event  string
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("model: %s cannot %s from %s", e.Entity, e.Event, e.From)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error { return ErrTransition }

// PolicyViolation reports an edge that exists but is forbidden by template policy.
type PolicyViolation struct {
	Policy string
	Reason string
}

func (e *PolicyViolation) Error() string {
	return fmt.Sprintf("model: policy %s violated: %s", e.Policy, e.Reason)
}

func (e *PolicyViolation) Unwrap() error { return ErrPolicy }

// ExternalError wraps a persistence or trigger failure. Both ErrExternal and
// the underlying cause match with errors.Is.
type ExternalError struct {
	Op  string
	Err error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("model: %s: %v", e.Op, e.Err)
}

func (e *ExternalError) Unwrap() []error { return []error{ErrExternal, e.Err} }

func External(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ExternalError{Op: op, Err: err}
}
