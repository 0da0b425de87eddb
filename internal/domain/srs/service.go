package srs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/smibbs/sparep/internal/domain"
)

// Common errors
var (
	ErrNilProgress       = errors.New("card progress cannot be nil")
	ErrInvalidRating     = domain.ErrInvalidRating
	ErrInvalidDays       = errors.New("postpone days must be at least 1")
	ErrCardNotStudiable  = errors.New("card is buried or suspended")
	ErrInvalidReviewTime = errors.New("review time cannot be zero")
)

// Outcome describes what a rating did to a card, for the review log.
type Outcome struct {
	Rating           domain.Rating
	StabilityBefore  float64
	StabilityAfter   float64
	DifficultyBefore float64
	DifficultyAfter  float64
	StateBefore      domain.CardState
	StateAfter       domain.CardState
	ElapsedDays      int
	ScheduledDays    int
	Retrievability   float64
}

// Service defines the interface for memory-model operations on card progress.
type Service interface {
	// NewCardProgress creates the progress of a never-seen card with the
	// model's neutral defaults, due at now.
	NewCardProgress(userID, cardID uuid.UUID, now time.Time) (*domain.CardProgress, error)

	// CalculateNextReview computes the progress after a rating given at now.
	// The input is never modified; a new CardProgress is returned.
	CalculateNextReview(
		progress *domain.CardProgress,
		rating domain.Rating,
		now time.Time,
	) (*domain.CardProgress, *Outcome, error)

	// PostponeReview pushes the next review time forward by a specified number of days
	PostponeReview(
		progress *domain.CardProgress,
		days int,
		now time.Time,
	) (*domain.CardProgress, error)
}

// defaultService is the standard implementation of the Service interface
type defaultService struct {
	model *Model
}

// NewDefaultService creates a new SRS service with default parameters
func NewDefaultService() Service {
	return &defaultService{
		model: NewModel(NewDefaultParams()),
	}
}

// NewServiceWithParams creates a new SRS service with custom parameters
func NewServiceWithParams(params *Params) Service {
	return &defaultService{
		model: NewModel(params),
	}
}

// NewCardProgress implements Service.
func (s *defaultService) NewCardProgress(userID, cardID uuid.UUID, now time.Time) (*domain.CardProgress, error) {
	return domain.NewCardProgress(userID, cardID, s.model.DefaultStability(), s.model.DefaultDifficulty(), now)
}

// CalculateNextReview implements Service.
func (s *defaultService) CalculateNextReview(
	progress *domain.CardProgress,
	rating domain.Rating,
	now time.Time,
) (*domain.CardProgress, *Outcome, error) {
	if progress == nil {
		return nil, nil, ErrNilProgress
	}
	if !rating.Valid() {
		return nil, nil, ErrInvalidRating
	}
	if now.IsZero() {
		return nil, nil, ErrInvalidReviewTime
	}
	if !progress.State.Studiable() {
		return nil, nil, ErrCardNotStudiable
	}

	next, outcome := calculateNextProgress(s.model, progress, rating, now)
	return next, outcome, nil
}

// PostponeReview implements Service.
func (s *defaultService) PostponeReview(
	progress *domain.CardProgress,
	days int,
	now time.Time,
) (*domain.CardProgress, error) {
	if progress == nil {
		return nil, ErrNilProgress
	}
	if days < 1 {
		return nil, ErrInvalidDays
	}

	next := progress.Clone()
	next.DueAt = progress.DueAt.AddDate(0, 0, days)
	next.UpdatedAt = now
	return next, nil
}

// calculateNextProgress creates a new CardProgress with updated values based on the rating.
//
// The original progress is copied, never modified. Reps and CorrectReviews count
// successful recalls, Lapses counts Again on a card in review, and the state
// follows domain.CardState.NextState.
func calculateNextProgress(
	m *Model,
	progress *domain.CardProgress,
	rating domain.Rating,
	now time.Time,
) (*domain.CardProgress, *Outcome) {
	next := progress.Clone()
	elapsed := progress.ElapsedDays(now)
	first := progress.State == domain.CardStateNew && progress.LastReviewedAt == nil

	schedule := m.NextReview(ReviewInput{
		Stability:   progress.Stability,
		Difficulty:  progress.Difficulty,
		Rating:      rating,
		ElapsedDays: float64(elapsed),
		FirstReview: first,
	}, now)

	next.Stability = schedule.Stability
	next.Difficulty = schedule.Difficulty
	next.DueAt = schedule.NextDueAt
	reviewedAt := now
	next.LastReviewedAt = &reviewedAt
	next.State = progress.State.NextState(rating)
	next.TotalReviews++
	if rating.IsSuccess() {
		next.CorrectReviews++
		next.Reps++
	}
	if progress.State.IsLapse(rating) {
		next.Lapses++
	}
	next.UpdatedAt = now

	outcome := &Outcome{
		Rating:           rating,
		StabilityBefore:  progress.Stability,
		StabilityAfter:   next.Stability,
		DifficultyBefore: progress.Difficulty,
		DifficultyAfter:  next.Difficulty,
		StateBefore:      progress.State,
		StateAfter:       next.State,
		ElapsedDays:      elapsed,
		ScheduledDays:    schedule.IntervalDays,
		Retrievability:   schedule.Retrievability,
	}
	return next, outcome
}
