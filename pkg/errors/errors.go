// Package errors defines the typed errors surfaced by the auth broker.
// Leaf operations return these; the HTTP gateway maps each type to a status
// code and wire shape.
package errors

import (
	"errors"
	"fmt"
)

// Error types
const (
	// ErrInvalidArgument is returned when request input fails validation.
	ErrInvalidArgument = "invalid_argument"

	// ErrUnauthorized is returned when no bearer mode resolves the request.
	ErrUnauthorized = "unauthorized"

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = "not_found"

	// ErrDuplicate is returned when a unique key already exists.
	ErrDuplicate = "duplicate"

	// ErrLimitExceeded is returned when a per-user cardinality cap is hit.
	ErrLimitExceeded = "limit_exceeded"

	// ErrRateLimited is returned when the daily raw-credential quota is spent.
	ErrRateLimited = "rate_limited"

	// ErrEspnAuth is returned when ESPN rejects the stored cookies.
	ErrEspnAuth = "espn_authentication_failed"

	// ErrEspnAPI is returned for non-auth ESPN API failures.
	ErrEspnAPI = "espn_api_error"

	// ErrDiscoveryFailed is returned when automatic league discovery finds
	// nothing usable or cannot reach the platform.
	ErrDiscoveryFailed = "league_discovery_failed"

	// ErrUpstream is returned for other upstream platform failures.
	ErrUpstream = "upstream"

	// ErrInternal is returned when there is an internal error.
	ErrInternal = "internal"
)

// Error represents an error in the application.
type Error struct {
	// Type is the error type.
	Type string

	// Message is the error message.
	Message string

	// Cause is the underlying error.
	Cause error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error.
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewInvalidArgumentError creates a new invalid argument error.
func NewInvalidArgumentError(message string, cause error) *Error {
	return NewError(ErrInvalidArgument, message, cause)
}

// NewUnauthorizedError creates a new unauthorized error.
func NewUnauthorizedError(message string, cause error) *Error {
	return NewError(ErrUnauthorized, message, cause)
}

// NewNotFoundError creates a new not found error.
func NewNotFoundError(message string, cause error) *Error {
	return NewError(ErrNotFound, message, cause)
}

// NewDuplicateError creates a new duplicate error.
func NewDuplicateError(message string, cause error) *Error {
	return NewError(ErrDuplicate, message, cause)
}

// NewLimitExceededError creates a new limit exceeded error.
func NewLimitExceededError(message string, cause error) *Error {
	return NewError(ErrLimitExceeded, message, cause)
}

// NewRateLimitedError creates a new rate limited error.
func NewRateLimitedError(message string, cause error) *Error {
	return NewError(ErrRateLimited, message, cause)
}

// NewEspnAuthError creates a new ESPN authentication error.
func NewEspnAuthError(message string, cause error) *Error {
	return NewError(ErrEspnAuth, message, cause)
}

// NewEspnAPIError creates a new ESPN API error.
func NewEspnAPIError(message string, cause error) *Error {
	return NewError(ErrEspnAPI, message, cause)
}

// NewDiscoveryFailedError creates a new league discovery error.
func NewDiscoveryFailedError(message string, cause error) *Error {
	return NewError(ErrDiscoveryFailed, message, cause)
}

// NewUpstreamError creates a new upstream platform error.
func NewUpstreamError(message string, cause error) *Error {
	return NewError(ErrUpstream, message, cause)
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

// TypeOf returns the error type of err, or ErrInternal when err is not an
// *Error from this package.
func TypeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrInternal
}

// IsType checks whether err is an *Error of the given type.
func IsType(err error, errorType string) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == errorType
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return IsType(err, ErrNotFound)
}

// IsUnauthorized checks if the error is an unauthorized error.
func IsUnauthorized(err error) bool {
	return IsType(err, ErrUnauthorized)
}
