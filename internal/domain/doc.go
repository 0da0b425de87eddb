// Package domain contains the entities of the study scheduler: per-user card
// progress, ratings and tiers, study sessions and the review log, together
// with the state-transition table and the error types shared by every layer.
//
// Nothing in this package performs I/O. Validation at the persistence
// boundary uses go-playground/validator struct tags and always surfaces as a
// *ValidationError matching ErrValidation.
package domain
