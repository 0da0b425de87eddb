package domain

import (
	"time"

	"github.com/google/uuid"
)

// MaxResponseTimeMs is the largest accepted response time (one hour).
const MaxResponseTimeMs = 3_600_000

// Review is one append-only log entry produced by a rating.
// (SessionID, CardID) is its idempotency key.
type Review struct {
	ID               uuid.UUID `json:"id" validate:"required"`
	SessionID        uuid.UUID `json:"session_id" validate:"required"`
	CardID           uuid.UUID `json:"card_id" validate:"required"`
	UserID           uuid.UUID `json:"user_id" validate:"required"`
	Rating           Rating    `json:"rating" validate:"min=0,max=3"`
	ResponseTimeMs   int       `json:"response_time_ms" validate:"min=0,max=3600000"`
	StabilityBefore  float64   `json:"stability_before" validate:"gt=0"`
	StabilityAfter   float64   `json:"stability_after" validate:"gt=0"`
	DifficultyBefore float64   `json:"difficulty_before"`
	DifficultyAfter  float64   `json:"difficulty_after"`
	StateBefore      CardState `json:"state_before" validate:"required"`
	StateAfter       CardState `json:"state_after" validate:"required"`
	ElapsedDays      int       `json:"elapsed_days" validate:"min=0"`
	ScheduledDays    int       `json:"scheduled_days" validate:"min=0"`
	ReviewedAt       time.Time `json:"reviewed_at" validate:"required"`
}

// Validate checks the review at the persistence boundary.
func (r *Review) Validate() error {
	return validateStruct(r)
}

// SessionProgress is the persisted progress of a session after a review.
type SessionProgress struct {
	SubmittedCount int  `json:"submitted_count"`
	Completed      bool `json:"completed"`
}
