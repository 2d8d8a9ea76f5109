// Package apperrors defines the typed failures shared across the API services.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors used across repositories and services.
var (
	// ErrNotFound is returned for lookups against nonexistent identifiers.
	ErrNotFound = errors.New("resource not found")

	// ErrStoreUnavailable is returned when the database connection is lost.
	// It aborts the current operation, it is never swallowed.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// TypeMismatchError is returned when a source record's instrument type differs
// from the type already stored for the instrument. The update is rejected,
// never applied silently.
type TypeMismatchError struct {
	InstrumentID string
	StoredType   string
	RecordType   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("instrument %s has type %s, record has type %s", e.InstrumentID, e.StoredType, e.RecordType)
}

// ValidationError is returned for malformed input records, with the offending
// field named so batch callers can report it per record.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %s: %s", e.Field, e.Message)
}

// ConflictError is returned for uniqueness violations on mapping or
// relationship upserts, carrying the conflicting identifiers.
type ConflictError struct {
	Resource   string
	Identifier string
	Message    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict on %s: %s", e.Resource, e.Identifier, e.Message)
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is a data-conflict failure.
func IsConflict(err error) bool {
	var tm *TypeMismatchError
	var cf *ConflictError
	return errors.As(err, &tm) || errors.As(err, &cf)
}

// IsValidation reports whether err is a malformed-input failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
