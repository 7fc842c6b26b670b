package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy for the session client
var (
	// Transport errors
	ErrNetwork     = errors.New("network error")
	ErrCircuitOpen = errors.New("api circuit open")

	// Authentication errors
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrRefreshFailed      = errors.New("token refresh failed")
	ErrNotAuthenticated   = errors.New("not authenticated")

	// Tenant errors
	ErrTenantNotFound = errors.New("tenant not found")

	// Validation errors
	ErrServerValidation = errors.New("server validation failed")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers need a single errors import
func New(text string) error {
	return errors.New(text)
}
