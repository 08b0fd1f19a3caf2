package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("unavailable")
)

type AppError struct {
	Err     error  // sentinel category, matched with errors.Is
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
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

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
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

// InvalidCredentials is returned on any local login failure. The message is
// deliberately generic — it never reveals whether the login or the password
// was the wrong half.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: "Invalid credentials",
	}
}

// ProviderExchangeFailed wraps any error from an external identity provider
// exchange. Provider-internal details stay in the wrapped error (for logs);
// the message is all users ever see.
func ProviderExchangeFailed(provider string, err error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrUnavailable, err),
		Message: fmt.Sprintf("Error connecting to %s. Please try again.", provider),
		Field:   "email",
	}
}

// DisconnectRejected is returned when removing a provider would leave the
// account with no way to log in.
func DisconnectRejected() *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: "You cannot disconnect your only login method. Please set a password first.",
		Field:   "provider",
	}
}
