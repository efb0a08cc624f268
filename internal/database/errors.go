package database

import (
	"errors"
	"fmt"
)

// ErrKind categorises a database error without exposing driver-specific codes.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // no rows matched the query
	ErrKindConnectionFailed         // could not reach or authenticate to the backend
	ErrKindTimeout                  // execution exceeded its time budget
	ErrKindDialect                  // statement uses syntax illegal for the target dialect
	ErrKindBackend                  // the backend rejected or failed the statement
	ErrKindInvalidInput             // caller passed bad arguments (e.g. unknown table)
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindDialect:
		return "dialect_violation"
	case ErrKindBackend:
		return "backend_error"
	case ErrKindInvalidInput:
		return "invalid_input"
	default:
		return "unknown"
	}
}

// DBError is the single error type returned by all database operations.
// Drivers translate their native errors into DBError before returning them;
// the original backend message is preserved verbatim in Cause for diagnostics.
type DBError struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, for logging/debugging
}

func (e *DBError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *DBError) Unwrap() error {
	return e.Cause
}

// NewError builds a DBError without an underlying cause.
func NewError(kind ErrKind, msg string) *DBError {
	return &DBError{Kind: kind, Message: msg}
}

// WrapError builds a DBError around an underlying driver error.
func WrapError(kind ErrKind, msg string, cause error) *DBError {
	return &DBError{Kind: kind, Message: msg, Cause: cause}
}

// --- Public predicates for callers ---

// IsNotFound reports whether err represents a "no rows" result.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsDialectViolation reports whether err means the statement cannot be made
// legal for the target dialect.
func IsDialectViolation(err error) bool {
	return KindOf(err) == ErrKindDialect
}

// IsBackendError reports whether err is a backend-side execution failure.
func IsBackendError(err error) bool {
	return KindOf(err) == ErrKindBackend
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// KindOf extracts the ErrKind from err, or ErrKindUnknown for foreign errors.
func KindOf(err error) ErrKind {
	var dbErr *DBError
	if errors.As(err, &dbErr) {
		return dbErr.Kind
	}
	return ErrKindUnknown
}
