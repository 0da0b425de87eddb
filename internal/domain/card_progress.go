package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// CardState is the learning state of a card for one user.
type CardState string

// Possible card states.
const (
	CardStateNew        CardState = "new"
	CardStateLearning   CardState = "learning"
	CardStateReview     CardState = "review"
	CardStateRelearning CardState = "relearning"
	CardStateBuried     CardState = "buried"
	CardStateSuspended  CardState = "suspended"
)

// Valid reports whether s is a known state.
func (s CardState) Valid() bool {
	switch s {
	case CardStateNew, CardStateLearning, CardStateReview,
		CardStateRelearning, CardStateBuried, CardStateSuspended:
		return true
	default:
		return false
	}
}

// Studiable reports whether a card in this state may be shown in a session.
func (s CardState) Studiable() bool {
	return s != CardStateBuried && s != CardStateSuspended
}

// Validation errors for CardProgress.
var (
	ErrEmptyProgressUserID = errors.New("card progress user ID cannot be empty")
	ErrEmptyProgressCardID = errors.New("card progress card ID cannot be empty")
	ErrInvalidStability    = errors.New("stability must be greater than 0")
	ErrInvalidCounters     = errors.New("review counters cannot be negative")
	ErrInvalidCardState    = errors.New("invalid card state")
)

// CardProgress is the memory model state of one user-card pair.
// It is created on first exposure and afterwards only replaced by the result
// of a rating; it is never deleted.
type CardProgress struct {
	UserID         uuid.UUID  `json:"user_id"`
	CardID         uuid.UUID  `json:"card_id"`
	Stability      float64    `json:"stability"`
	Difficulty     float64    `json:"difficulty"`
	State          CardState  `json:"state"`
	DueAt          time.Time  `json:"due_at"`
	LastReviewedAt *time.Time `json:"last_reviewed_at,omitempty"`
	Reps           int        `json:"reps"`
	Lapses         int        `json:"lapses"`
	TotalReviews   int        `json:"total_reviews"`
	CorrectReviews int        `json:"correct_reviews"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewCardProgress creates the progress of a never-seen card, due immediately.
// stability and difficulty are the model's defaults for the neutral rating.
func NewCardProgress(userID, cardID uuid.UUID, stability, difficulty float64, now time.Time) (*CardProgress, error) {
	p := &CardProgress{
		UserID:     userID,
		CardID:     cardID,
		Stability:  stability,
		Difficulty: difficulty,
		State:      CardStateNew,
		DueAt:      now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the structural invariants of the progress record.
// Range checks on stability and difficulty against the model bounds are the
// model's job; here only positivity is required.
func (p *CardProgress) Validate() error {
	if p.UserID == uuid.Nil {
		return ErrEmptyProgressUserID
	}
	if p.CardID == uuid.Nil {
		return ErrEmptyProgressCardID
	}
	if !(p.Stability > 0) {
		return ErrInvalidStability
	}
	if !p.State.Valid() {
		return ErrInvalidCardState
	}
	if p.Reps < 0 || p.Lapses < 0 || p.TotalReviews < 0 || p.CorrectReviews < 0 {
		return ErrInvalidCounters
	}
	return nil
}

// Clone returns a deep copy.
func (p *CardProgress) Clone() *CardProgress {
	if p == nil {
		return nil
	}
	c := *p
	if p.LastReviewedAt != nil {
		t := *p.LastReviewedAt
		c.LastReviewedAt = &t
	}
	return &c
}

// ElapsedDays returns the whole days since the last review, or 0 for a card
// that was never reviewed or whose last review lies in the future.
func (p *CardProgress) ElapsedDays(now time.Time) int {
	if p.LastReviewedAt == nil || p.LastReviewedAt.IsZero() {
		return 0
	}
	d := now.Sub(*p.LastReviewedAt)
	if d <= 0 {
		return 0
	}
	return int(d.Hours() / 24)
}

// NextState applies the state-transition table to a rating given in state s.
// Good and Easy always graduate to review. Hard keeps a review card in review
// and every other card in learning. Again sends any card back to learning.
// Buried and suspended cards are not studiable and keep their state.
func (s CardState) NextState(r Rating) CardState {
	if !s.Studiable() {
		return s
	}
	if r.IsSuccess() {
		return CardStateReview
	}
	if s == CardStateReview && r == RatingHard {
		return CardStateReview
	}
	return CardStateLearning
}

// IsLapse reports whether rating r given in state s counts as forgetting a learned card.
func (s CardState) IsLapse(r Rating) bool {
	return s == CardStateReview && r == RatingAgain
}
