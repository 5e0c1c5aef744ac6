package errors

import (
	"errors"
	"fmt"
)

// Custom error types for better error handling
var (
	// Validation errors
	ErrMissingFields   = errors.New("username and password are required")
	ErrWeakPassword    = errors.New("password does not meet requirements")
	ErrInvalidUsername = errors.New("invalid username")

	// Registration conflicts
	ErrDuplicateUsername = errors.New("username already taken")

	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrTokenInvalid       = errors.New("invalid or expired token")

	// Business errors
	ErrInsufficientFunds = errors.New("insufficient funds")

	// Store errors
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrStoreConflict   = errors.New("store conflict")

	// Rate limiting errors
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// AppError wraps errors with additional context
type AppError struct {
	Err     error
	Message string
	Code    int
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error
func NewAppError(err error, message string, code int) *AppError {
	return &AppError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}
