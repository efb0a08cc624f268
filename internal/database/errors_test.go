package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDBError_Error(t *testing.T) {
	err := NewError(ErrKindNotFound, "no such table")
	assert.Equal(t, "[not_found] no such table", err.Error())

	wrapped := WrapError(ErrKindBackend, "query failed", errors.New("syntax error near ORDER"))
	assert.Equal(t, "[backend_error] query failed: syntax error near ORDER", wrapped.Error())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrKindTimeout, KindOf(NewError(ErrKindTimeout, "slow")))
	assert.Equal(t, ErrKindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, ErrKindUnknown, KindOf(nil))

	// Kind survives wrapping by callers.
	outer := fmt.Errorf("while listing tables: %w", NewError(ErrKindConnectionFailed, "down"))
	assert.Equal(t, ErrKindConnectionFailed, KindOf(outer))
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsNotFound(NewError(ErrKindNotFound, "")))
	assert.True(t, IsTimeout(NewError(ErrKindTimeout, "")))
	assert.True(t, IsConnectionFailed(NewError(ErrKindConnectionFailed, "")))
	assert.True(t, IsDialectViolation(NewError(ErrKindDialect, "")))
	assert.True(t, IsBackendError(NewError(ErrKindBackend, "")))
	assert.True(t, IsInvalidInput(NewError(ErrKindInvalidInput, "")))

	assert.False(t, IsNotFound(errors.New("plain")))
}

func TestDBError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := WrapError(ErrKindBackend, "wrapped", cause)
	assert.True(t, errors.Is(err, cause))
}
