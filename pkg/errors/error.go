// Package errors provides structured error handling with typed error codes.
//
// Error codes are organized into categories:
//   - General errors (1-99): Unknown and general errors
//   - Validation errors (100-199): Malformed session or engine configuration, rejected synchronously
//   - Session errors (200-299): Unknown sessions, illegal transitions, failed preconditions
//   - Trigger pipeline errors (300-399): Feed outages, unfilled TWAP orders, rejected fills
//   - Storage errors (400-499): Persistence failures
//
// Usage:
//
//	// Create a new error
//	err := errors.New(errors.ErrCodeValidation, "stage count must be between 1 and 10")
//
//	// Create a formatted error
//	err := errors.Newf(errors.ErrCodeStateConflict, "cannot pause session in %s status", status)
//
//	// Wrap an existing error
//	err := errors.Wrap(errors.ErrCodeFeedUnavailable, "failed to fetch latest price", originalErr)
//
//	// Check error code
//	if errors.HasCode(err, errors.ErrCodeSessionNotFound) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Error represents a structured error with an error code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap wraps an existing error with a new Error containing the given code and message.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a new Error containing the given code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around the standard errors.Is function.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around the standard errors.As function.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the ErrorCode from an error if it's an *Error type.
// Returns ErrCodeUnknown if the error is not an *Error type.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// IsValidation reports whether err is a synchronous configuration validation failure.
func IsValidation(err error) bool {
	code := GetCode(err)

	return code >= ErrCodeValidation && code < ErrCodeSessionNotFound
}

// IsStateConflict reports whether err is an illegal session transition.
func IsStateConflict(err error) bool {
	return HasCode(err, ErrCodeStateConflict)
}

// IsPreconditionFailed reports whether err is a rejected operation whose precondition did not hold.
func IsPreconditionFailed(err error) bool {
	return HasCode(err, ErrCodePreconditionFailed)
}

// IsNotFound reports whether err refers to a session that does not exist.
func IsNotFound(err error) bool {
	return HasCode(err, ErrCodeSessionNotFound)
}

// IsFeedUnavailable reports whether err means the price feed could not serve a quote.
func IsFeedUnavailable(err error) bool {
	return HasCode(err, ErrCodeFeedUnavailable)
}
