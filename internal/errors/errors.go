package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session keeper
var (
	// Refresh errors
	ErrRefreshInFlight    = errors.New("refresh already in flight")
	ErrRefreshFailed      = errors.New("refresh failed")
	ErrCredentialRejected = errors.New("refresh credential rejected")
	ErrRefreshPanicked    = errors.New("refresh panicked")
	ErrExpiryNotAdvanced  = errors.New("refreshed expiry did not advance")
	ErrMissingLifetime    = errors.New("refresh response carries no lifetime")

	// Store errors
	ErrMalformedTimestamp = errors.New("malformed timestamp")
	ErrStoreClosed        = errors.New("store closed")

	// Lifecycle errors
	ErrAlreadyStarted = errors.New("manager already started")
	ErrNotRunning     = errors.New("manager not running")

	// Dev server errors
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
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

// Join returns an error that wraps the given errors, discarding nils
func Join(errs ...error) error {
	return errors.Join(errs...)
}
