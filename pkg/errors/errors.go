// Package errors defines the error taxonomy shared by the authentication
// services and the HTTP layer. Every failure that crosses a package boundary
// is an *Error carrying one of the types below; the HTTP layer maps types to
// status codes mechanically with HTTPStatus.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error types
const (
	// ErrUnsupportedGrant is returned when a grant type is not recognized for the principal kind
	ErrUnsupportedGrant = "unsupported_grant"

	// ErrInvalidCredentials is returned when a secret, password or email does not check out
	ErrInvalidCredentials = "invalid_credentials"

	// ErrUnauthorized is returned when a token, session or realm-binding check fails
	ErrUnauthorized = "unauthorized"

	// ErrNotEnabled is returned when a client, realm or identity provider is disabled
	ErrNotEnabled = "not_enabled"

	// ErrPermissionDenied is returned when a scope or realm-switch policy rejects the request
	ErrPermissionDenied = "permission_denied"

	// ErrInvalidToken is returned when token material is malformed or unverifiable
	ErrInvalidToken = "invalid_token"

	// ErrNotFound is returned when a named entity is absent
	ErrNotFound = "not_found"

	// ErrAlreadyExists is returned on a uniqueness violation
	ErrAlreadyExists = "already_exists"

	// ErrBadRequest is returned when the input is structurally invalid
	ErrBadRequest = "bad_request"

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

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewUnsupportedGrantError creates a new unsupported grant error
func NewUnsupportedGrantError(message string, cause error) *Error {
	return NewError(ErrUnsupportedGrant, message, cause)
}

// NewInvalidCredentialsError creates a new invalid credentials error
func NewInvalidCredentialsError(message string, cause error) *Error {
	return NewError(ErrInvalidCredentials, message, cause)
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string, cause error) *Error {
	return NewError(ErrUnauthorized, message, cause)
}

// NewNotEnabledError creates a new not enabled error
func NewNotEnabledError(message string, cause error) *Error {
	return NewError(ErrNotEnabled, message, cause)
}

// NewPermissionDeniedError creates a new permission denied error
func NewPermissionDeniedError(message string, cause error) *Error {
	return NewError(ErrPermissionDenied, message, cause)
}

// NewInvalidTokenError creates a new invalid token error
func NewInvalidTokenError(message string, cause error) *Error {
	return NewError(ErrInvalidToken, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *Error {
	return NewError(ErrNotFound, message, cause)
}

// NewAlreadyExistsError creates a new already exists error
func NewAlreadyExistsError(message string, cause error) *Error {
	return NewError(ErrAlreadyExists, message, cause)
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string, cause error) *Error {
	return NewError(ErrBadRequest, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

func is(err error, errorType string) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Type == errorType
}

// IsUnsupportedGrant checks if the error is an unsupported grant error
func IsUnsupportedGrant(err error) bool {
	return is(err, ErrUnsupportedGrant)
}

// IsInvalidCredentials checks if the error is an invalid credentials error
func IsInvalidCredentials(err error) bool {
	return is(err, ErrInvalidCredentials)
}

// IsUnauthorized checks if the error is an unauthorized error
func IsUnauthorized(err error) bool {
	return is(err, ErrUnauthorized)
}

// IsNotEnabled checks if the error is a not enabled error
func IsNotEnabled(err error) bool {
	return is(err, ErrNotEnabled)
}

// IsPermissionDenied checks if the error is a permission denied error
func IsPermissionDenied(err error) bool {
	return is(err, ErrPermissionDenied)
}

// IsInvalidToken checks if the error is an invalid token error
func IsInvalidToken(err error) bool {
	return is(err, ErrInvalidToken)
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an already exists error
func IsAlreadyExists(err error) bool {
	return is(err, ErrAlreadyExists)
}

// IsBadRequest checks if the error is a bad request error
func IsBadRequest(err error) bool {
	return is(err, ErrBadRequest)
}

// IsInternal checks if the error is an internal error
func IsInternal(err error) bool {
	return is(err, ErrInternal)
}

// Message returns the application-facing message of err. For an *Error that
// is the Message field on its own, without the type prefix or the cause
// chain; anything else falls back to err.Error().
func Message(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// HTTPStatus maps an error to the HTTP status code the API responds with.
// Errors that carry no known type map to 500.
func HTTPStatus(err error) int {
	var e *Error
	if !stderrors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Type {
	case ErrUnsupportedGrant, ErrBadRequest:
		return http.StatusBadRequest
	case ErrInvalidCredentials, ErrUnauthorized, ErrInvalidToken:
		return http.StatusUnauthorized
	case ErrNotEnabled, ErrPermissionDenied:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
