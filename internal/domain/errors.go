// Package domain defines the core business entities and errors.
package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity or an input fails validation.
	// It is usually wrapped in a *ValidationError naming the offending field.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or empty.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidRating is returned when a rating is outside Again..Easy.
	ErrInvalidRating = errors.New("invalid rating")

	// ErrInvalidResponseTime is returned when a response time is negative or too large.
	ErrInvalidResponseTime = errors.New("invalid response time")

	// ErrLimitReached is the sentinel matched by *LimitReachedError.
	ErrLimitReached = errors.New("daily limit reached")

	// ErrNoCardsAvailable is returned when neither due nor new cards exist for a session.
	ErrNoCardsAvailable = errors.New("no cards available")

	// ErrUnauthorized is returned when a session does not belong to the caller.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSessionNotFound is returned when a session id is unknown.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStatusRegression is returned when a session status would move backwards.
	ErrStatusRegression = errors.New("session status cannot regress")
)

// ValidationError describes a rejected input. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

// NewValidationError creates a ValidationError for the given field.
// err may be nil, in which case only ErrValidation is matched.
func NewValidationError(field, reason string, err error) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Err: err}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

// Is reports ErrValidation as well as the wrapped error.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// LimitReachedError is returned when a user has used up the daily quota of their tier.
// Callers should present it as a "come back tomorrow" state rather than a failure.
type LimitReachedError struct {
	Tier         Tier `json:"tier"`
	ReviewsToday int  `json:"reviews_today"`
	Limit        int  `json:"limit"`
}

// Error implements the error interface.
func (e *LimitReachedError) Error() string {
	return fmt.Sprintf("%s: tier %s reviewed %d of %d", ErrLimitReached, e.Tier, e.ReviewsToday, e.Limit)
}

// Is makes errors.Is(err, ErrLimitReached) work.
func (e *LimitReachedError) Is(target error) bool {
	return target == ErrLimitReached
}

// TransientError wraps a failure that is safe to retry with the identical request,
// such as a dropped connection or a timeout.
type TransientError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure during %s: %v", e.Op, e.Err)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a TransientError somewhere in its chain.
func IsRetryable(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
