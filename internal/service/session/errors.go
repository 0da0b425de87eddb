package session

import (
	"errors"
	"fmt"
)

// Common error types for the session lifecycle.
var (
	// ErrSessionNotActive indicates a rating was submitted before the card
	// order was finalized or after the session completed.
	ErrSessionNotActive = errors.New("session is not active")

	// ErrNoCurrentCard indicates every card of the session has been rated.
	ErrNoCurrentCard = errors.New("no card left in session")
)

// ServiceError wraps errors from the session lifecycle with additional context.
// This allows consumers to differentiate between different types of service errors
// using errors.As instead of string matching.
type ServiceError struct {
	// Operation is the operation that failed (e.g., "initialize", "record_rating")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s operation failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewInitializeError returns a new ServiceError for the initialize operation.
func NewInitializeError(message string, err error) *ServiceError {
	return &ServiceError{Operation: "initialize", Message: message, Err: err}
}

// NewResumeError returns a new ServiceError for the resume operation.
func NewResumeError(message string, err error) *ServiceError {
	return &ServiceError{Operation: "resume", Message: message, Err: err}
}

// NewFinalizeError returns a new ServiceError for the shuffle_and_finalize operation.
func NewFinalizeError(message string, err error) *ServiceError {
	return &ServiceError{Operation: "shuffle_and_finalize", Message: message, Err: err}
}

// NewRecordRatingError returns a new ServiceError for the record_rating operation.
func NewRecordRatingError(message string, err error) *ServiceError {
	return &ServiceError{Operation: "record_rating", Message: message, Err: err}
}
