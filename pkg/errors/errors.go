// Package errors defines the error taxonomy shared by the lifecycle manager
// and its callers.
package errors

import (
	"errors"
	"fmt"
)

// Error types
const (
	// ErrStoreUnavailable is returned when the backing store is unreachable or timed out
	ErrStoreUnavailable = "store_unavailable"

	// ErrDecode is returned when a stored value cannot be decoded
	ErrDecode = "decode"

	// ErrNotFound is returned when a record does not exist
	ErrNotFound = "not_found"

	// ErrAlreadyExists is returned when a record already exists
	ErrAlreadyExists = "already_exists"

	// ErrConfiguration is returned when configuration validation fails
	ErrConfiguration = "configuration"

	// ErrInvalidArgument is returned when an invalid argument is provided
	ErrInvalidArgument = "invalid_argument"
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

// NewStoreUnavailableError creates a new store unavailable error
func NewStoreUnavailableError(message string, cause error) *Error {
	return NewError(ErrStoreUnavailable, message, cause)
}

// NewDecodeError creates a new decode error
func NewDecodeError(message string, cause error) *Error {
	return NewError(ErrDecode, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *Error {
	return NewError(ErrNotFound, message, cause)
}

// NewAlreadyExistsError creates a new already exists error
func NewAlreadyExistsError(message string, cause error) *Error {
	return NewError(ErrAlreadyExists, message, cause)
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(message string, cause error) *Error {
	return NewError(ErrConfiguration, message, cause)
}

// NewInvalidArgumentError creates a new invalid argument error
func NewInvalidArgumentError(message string, cause error) *Error {
	return NewError(ErrInvalidArgument, message, cause)
}

// isType checks whether err or any error in its chain is an *Error of the
// given type.
func isType(err error, errorType string) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == errorType
}

// IsStoreUnavailable checks if the error is a store unavailable error
func IsStoreUnavailable(err error) bool {
	return isType(err, ErrStoreUnavailable)
}

// IsDecode checks if the error is a decode error
func IsDecode(err error) bool {
	return isType(err, ErrDecode)
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return isType(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an already exists error
func IsAlreadyExists(err error) bool {
	return isType(err, ErrAlreadyExists)
}

// IsConfiguration checks if the error is a configuration error
func IsConfiguration(err error) bool {
	return isType(err, ErrConfiguration)
}

// IsInvalidArgument checks if the error is an invalid argument error
func IsInvalidArgument(err error) bool {
	return isType(err, ErrInvalidArgument)
}
