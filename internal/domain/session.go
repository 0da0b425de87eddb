package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a study session.
// It only ever moves forward: created -> active -> complete.
type SessionStatus string

// Possible session statuses.
const (
	SessionStatusCreated  SessionStatus = "created"
	SessionStatusActive   SessionStatus = "active"
	SessionStatusComplete SessionStatus = "complete"
)

func (s SessionStatus) rank() int {
	switch s {
	case SessionStatusCreated:
		return 0
	case SessionStatusActive:
		return 1
	case SessionStatusComplete:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	return s.rank() >= 0
}

// Filter narrows the cards a session may contain.
type Filter struct {
	// DeckID limits the session to one deck. uuid.Nil means all decks.
	DeckID uuid.UUID `json:"deck_id,omitempty"`
	// MaxCards overrides the configured session size when > 0.
	MaxCards int `json:"max_cards,omitempty" validate:"min=0,max=1000"`
}

// Validate checks the filter bounds.
func (f Filter) Validate() error {
	return validateStruct(f)
}

// Key identifies the filter for session-creation idempotency.
func (f Filter) Key() string {
	deck := "all"
	if f.DeckID != uuid.Nil {
		deck = f.DeckID.String()
	}
	return fmt.Sprintf("deck=%s;max=%d", deck, f.MaxCards)
}

// SessionCard is one entry of a session's ordered card list, carrying the
// card's progress as it was when the session was built.
type SessionCard struct {
	CardID   uuid.UUID     `json:"card_id" validate:"required"`
	Progress *CardProgress `json:"progress" validate:"required"`
}

// Session is a fixed-length batch of cards studied in order.
type Session struct {
	ID             uuid.UUID     `json:"id" validate:"required"`
	UserID         uuid.UUID     `json:"user_id" validate:"required"`
	Filter         Filter        `json:"filter"`
	Day            string        `json:"day" validate:"required,datetime=2006-01-02"`
	Cards          []SessionCard `json:"cards" validate:"required,min=1,dive"`
	TotalCards     int           `json:"total_cards" validate:"gt=0"`
	CurrentIndex   int           `json:"current_index" validate:"min=0"`
	SubmittedCount int           `json:"submitted_count" validate:"min=0,ltefield=TotalCards"`
	Status         SessionStatus `json:"status" validate:"required,oneof=created active complete"`
	Seed           string        `json:"seed"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Validate checks the session at the persistence boundary.
func (s *Session) Validate() error {
	if err := validateStruct(s); err != nil {
		return err
	}
	if len(s.Cards) != s.TotalCards {
		return NewValidationError("cards", "length must equal total_cards", nil)
	}
	if s.CurrentIndex > s.TotalCards {
		return NewValidationError("current_index", "must not exceed total_cards", nil)
	}
	return nil
}

// Advance moves the session to next. Moving to the same status is a no-op;
// moving backwards returns ErrStatusRegression.
func (s *Session) Advance(next SessionStatus, now time.Time) error {
	if !next.Valid() {
		return NewValidationError("status", fmt.Sprintf("unknown status %q", next), nil)
	}
	if next.rank() < s.Status.rank() {
		return fmt.Errorf("%w: %s -> %s", ErrStatusRegression, s.Status, next)
	}
	if next != s.Status {
		s.Status = next
		s.UpdatedAt = now
	}
	return nil
}

// IsComplete reports whether every card of the session has been rated.
func (s *Session) IsComplete() bool {
	return s.SubmittedCount >= s.TotalCards
}

// Clone returns a deep copy, including the progress snapshots.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Cards = make([]SessionCard, len(s.Cards))
	for i, card := range s.Cards {
		c.Cards[i] = SessionCard{CardID: card.CardID, Progress: card.Progress.Clone()}
	}
	return &c
}

// CardIDs returns the card ids in session order.
func (s *Session) CardIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(s.Cards))
	for i, c := range s.Cards {
		ids[i] = c.CardID
	}
	return ids
}
