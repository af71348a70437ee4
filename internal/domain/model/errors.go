package model

import (
	"errors"
	"fmt"
)

// Sentinel kinds for domain errors. Typed errors below unwrap to these so
// callers can branch with errors.Is and still reach details with errors.As.
var (
	ErrValidation     = errors.New("validation failed")
	ErrStateConflict  = errors.New("state conflict")
	ErrDataIncomplete = errors.New("data incomplete")
	ErrIntegrity      = errors.New("integrity conflict")
	ErrNotFound       = errors.New("not found")
)

// ValidationError reports malformed or out-of-range input.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field string, value any, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// StateConflictError reports an operation attempted against an incompatible
// entity state. State is the state the entity was in when the call was rejected.
type StateConflictError struct {
	Entity string
	ID     string
	State  string
	Op     string
	Reason string
}

func (e *StateConflictError) Error() string {
	msg := fmt.Sprintf("%s %s: cannot %s in state %s", e.Entity, e.ID, e.Op, e.State)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *StateConflictError) Unwrap() error { return ErrStateConflict }

// Conflict builds a StateConflictError.
func Conflict(entity, id, state, op, reason string) error {
	return &StateConflictError{Entity: entity, ID: id, State: state, Op: op, Reason: reason}
}

// DataIncompleteError is the soft failure returned when inputs required for
// a derived value are missing. Callers mark the entity pending and move on.
type DataIncompleteError struct {
	Entity  string
	ID      string
	Missing string
}

func (e *DataIncompleteError) Error() string {
	return fmt.Sprintf("%s %s: missing %s", e.Entity, e.ID, e.Missing)
}

func (e *DataIncompleteError) Unwrap() error { return ErrDataIncomplete }

// Incomplete builds a DataIncompleteError.
func Incomplete(entity, id, missing string) error {
	return &DataIncompleteError{Entity: entity, ID: id, Missing: missing}
}

// IntegrityError reports a concurrent-write race. The caller must reload and retry.
type IntegrityError struct {
	Entity string
	ID     string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Reason)
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

// Integrity builds an IntegrityError.
func Integrity(entity, id, reason string) error {
	return &IntegrityError{Entity: entity, ID: id, Reason: reason}
}

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Entity, e.ID) }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}
