package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("tweet", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("content", "Tweet cannot be empty"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("user", "username"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "Unauthenticated wraps ErrUnauthenticated",
			err:       Unauthenticated("Not authenticated"),
			target:    ErrUnauthenticated,
			wantMatch: true,
		},
		{
			name:      "New wraps the given kind",
			err:       New(ErrNotFound, "Tweet not found"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "kind survives fmt.Errorf wrapping",
			err:       fmt.Errorf("service/like: %w", New(ErrNotFound, "Tweet not found")),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "Forbidden does NOT match ErrUnauthenticated",
			err:       Forbidden("Cannot delete another user's tweet"),
			target:    ErrUnauthenticated,
			wantMatch: false,
		},
		{
			name:      "ValidationFailed does NOT match ErrNotFound",
			err:       ValidationFailed("content", "Tweet exceeds 300 characters"),
			target:    ErrNotFound,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{"NotFound names resource and id", NotFound("tweet", "abc123"), "tweet not found with id abc123"},
		{"ValidationFailed keeps the label", ValidationFailed("content", "Tweet cannot be empty"), "Tweet cannot be empty"},
		{"New keeps the label", New(ErrConflict, "Username is already taken"), "Username is already taken"},
		{"Conflict names resource and field", Conflict("user", "email"), "user conflict on email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

// Services read Field to tell which unique column a conflict hit.
func TestField(t *testing.T) {
	if f := Conflict("user", "username").Field; f != "username" {
		t.Errorf("Conflict Field = %q, want %q", f, "username")
	}
	if f := ValidationFailed("cursor", "Invalid cursor").Field; f != "cursor" {
		t.Errorf("ValidationFailed Field = %q, want %q", f, "cursor")
	}

	var appErr *AppError
	if !errors.As(fmt.Errorf("wrapped: %w", Conflict("user", "email")), &appErr) || appErr.Field != "email" {
		t.Errorf("errors.As did not recover the conflict field")
	}
}
