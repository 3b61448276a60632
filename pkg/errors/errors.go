package errors

import (
	"fmt"
	"net/http"
)

// Error types
const (
	// ErrUnauthorized is returned when a caller presents no or invalid credentials
	ErrUnauthorized = "unauthorized"

	// ErrForbidden is returned when an authenticated caller lacks the required permission
	ErrForbidden = "forbidden"

	// ErrNotFound is returned when a referenced entity does not exist
	ErrNotFound = "not_found"

	// ErrInvalidRequest is returned when the caller input is malformed
	ErrInvalidRequest = "invalid_request"

	// ErrStorage is returned when the data store fails
	ErrStorage = "storage"

	// ErrUpstreamUnavailable is returned when the salt master cannot be reached
	ErrUpstreamUnavailable = "upstream_unavailable"

	// ErrInternal is returned when there is an internal error
	ErrInternal = "internal"
)

// Error represents an error in the application
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the HTTP status code for the error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// StatusFor returns the HTTP status code for any error. Errors outside the
// taxonomy map to 500.
func StatusFor(err error) int {
	if e, ok := err.(*Error); ok {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string, cause error) *Error {
	return NewError(ErrUnauthorized, message, cause)
}

// NewForbiddenError creates a new forbidden error
func NewForbiddenError(message string, cause error) *Error {
	return NewError(ErrForbidden, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *Error {
	return NewError(ErrNotFound, message, cause)
}

// NewInvalidRequestError creates a new invalid request error
func NewInvalidRequestError(message string, cause error) *Error {
	return NewError(ErrInvalidRequest, message, cause)
}

// NewStorageError creates a new storage error
func NewStorageError(message string, cause error) *Error {
	return NewError(ErrStorage, message, cause)
}

// NewUpstreamUnavailableError creates a new upstream unavailable error
func NewUpstreamUnavailableError(message string, cause error) *Error {
	return NewError(ErrUpstreamUnavailable, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

// IsUnauthorized checks if the error is an unauthorized error
func IsUnauthorized(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrUnauthorized
}

// IsForbidden checks if the error is a forbidden error
func IsForbidden(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrForbidden
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrNotFound
}

// IsInvalidRequest checks if the error is an invalid request error
func IsInvalidRequest(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrInvalidRequest
}

// IsStorage checks if the error is a storage error
func IsStorage(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrStorage
}

// IsUpstreamUnavailable checks if the error is an upstream unavailable error
func IsUpstreamUnavailable(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrUpstreamUnavailable
}

// IsInternal checks if the error is an internal error
func IsInternal(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrInternal
}
