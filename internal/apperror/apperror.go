// Package apperror defines the error kinds shared by every layer.
//
// Services return *AppError values; handlers map the wrapped kind to an HTTP
// status with errors.Is and surface Message to the client verbatim.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("Validation Error")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
)

type AppError struct {
	Err     error  // kind, one of the sentinels above
	Message string // human-readable label, returned to clients as-is
	Field   string // optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New builds an AppError of the given kind with a fixed label.
// Services use it for messages that must reach the caller unchanged,
// e.g. New(ErrNotFound, "Tweet not found").
func New(kind error, message string) *AppError {
	return &AppError{
		Err:     kind,
		Message: message,
	}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports a uniqueness violation on field. Services that need a
// user-facing label check Field and substitute their own message.
func Conflict(resource, field string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict on %s", resource, field),
		Field:   field,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthenticated returns an AppError for operations that need a signed-in
// caller. HTTP handlers map this to 401 Unauthorized.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

