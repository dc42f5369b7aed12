package apperror

import (
	"errors"
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
			err:       NotFound("user", "a@x.com"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("displayName", "display name is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("user", "a@x.com"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "NoSession wraps ErrNoSession",
			err:       NoSession("sign in to update your profile"),
			target:    ErrNoSession,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrConflict",
			err:       NotFound("user", "a@x.com"),
			target:    ErrConflict,
			wantMatch: false,
		},
		{
			name:      "NoSession does NOT match ErrNotFound",
			err:       NoSession("sign in first"),
			target:    ErrNotFound,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
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
		{
			name:        "NotFound message includes resource and key",
			err:         NotFound("user", "a@x.com"),
			wantMessage: "user not found: a@x.com",
		},
		{
			name:        "Conflict message includes resource and key",
			err:         Conflict("user", "a@x.com"),
			wantMessage: "user already exists: a@x.com",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("displayName", "display name cannot be empty"),
			wantMessage: "display name cannot be empty",
		},
		{
			name:        "NoSession uses custom message",
			err:         NoSession("sign in to update your profile"),
			wantMessage: "sign in to update your profile",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := NoSession("sign in first")
	if unwrapped := err.Unwrap(); unwrapped != ErrNoSession {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, ErrNoSession)
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("email", "email is required")
	if err.Field != "email" {
		t.Errorf("Field = %q, want %q", err.Field, "email")
	}
}
