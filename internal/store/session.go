package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/smibbs/sparep/internal/domain"
)

// DailyCounts summarizes what a user has studied since a point in time.
type DailyCounts struct {
	// Reviews is the number of reviews recorded.
	Reviews int
	// NewCards is the number of those reviews that introduced a never-seen card.
	NewCards int
}

// SessionStore defines the persistence contract of the study session lifecycle.
// Version: 1.0
type SessionStore interface {
	// GetUserTier returns the quota tier of a user.
	// Returns ErrUserNotFound if the user does not exist.
	GetUserTier(ctx context.Context, userID uuid.UUID) (domain.Tier, error)

	// CountReviewsSince counts the reviews recorded by a user at or after since.
	CountReviewsSince(ctx context.Context, userID uuid.UUID, since time.Time) (DailyCounts, error)

	// FindOpenSession returns the not yet complete session a user started on
	// day with the given filter key.
	// Returns ErrSessionNotFound if there is none.
	FindOpenSession(ctx context.Context, userID uuid.UUID, day, filterKey string) (*domain.Session, error)

	// CreateSession persists a new session together with its ordered cards
	// and their progress snapshots.
	// Returns ErrDuplicate if a session with the same ID exists, or if the
	// user already has a session that is not complete for the same day and
	// filter key.
	CreateSession(ctx context.Context, session *domain.Session) error

	// GetSession retrieves a session with its cards in session order.
	// Returns ErrSessionNotFound if the session does not exist.
	GetSession(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error)

	// GetDueCards returns up to limit studiable cards of the user whose due
	// time is at or before now, most overdue first.
	GetDueCards(ctx context.Context, userID uuid.UUID, filter domain.Filter, now time.Time, limit int) ([]*domain.CardProgress, error)

	// GetNewCards returns up to limit ids of cards the user has never studied.
	GetNewCards(ctx context.Context, userID uuid.UUID, filter domain.Filter, limit int) ([]uuid.UUID, error)

	// FinalizeSessionOrder stores the final card order of a created session
	// and marks it active. orderedCardIDs must be a permutation of the
	// session's cards, otherwise ErrInvalidEntity is returned. Calling it on a
	// session that is already active or complete is a no-op.
	FinalizeSessionOrder(ctx context.Context, sessionID uuid.UUID, orderedCardIDs []uuid.UUID) error

	// RecordReview atomically appends the review, upserts the card progress
	// and advances the session counters, completing the session when every
	// card has been rated.
	// Returns ErrSessionNotFound, ErrUnauthorized when the review's user does
	// not own the session, or ErrReviewExists when the (session, card) pair
	// was already reviewed. Nothing is written on error.
	RecordReview(ctx context.Context, review *domain.Review, progress *domain.CardProgress) (domain.SessionProgress, error)

	// ListSessionReviews returns the reviews of a session in the order they
	// were recorded.
	ListSessionReviews(ctx context.Context, sessionID uuid.UUID) ([]*domain.Review, error)
}
