// Package memstore is an in-memory implementation of store.SessionStore.
// It backs unit tests and the client-local variant of the study session that
// runs without a database.
package memstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smibbs/sparep/internal/domain"
	"github.com/smibbs/sparep/internal/platform/logger"
	"github.com/smibbs/sparep/internal/store"
)

type progressKey struct {
	userID uuid.UUID
	cardID uuid.UUID
}

type card struct {
	id     uuid.UUID
	deckID uuid.UUID
}

// Store keeps all data in maps guarded by a single RWMutex.
// Values handed in or out are copied, so callers never share memory with the store.
type Store struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]domain.Tier
	cards    []card
	progress map[progressKey]*domain.CardProgress
	sessions map[uuid.UUID]*domain.Session
	reviews  map[uuid.UUID][]*domain.Review
	now      func() time.Time
	logger   *slog.Logger
}

// Ensure Store implements store.SessionStore interface
var _ store.SessionStore = (*Store)(nil)

// New creates an empty Store. If log is nil, a default logger will be used.
func New(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		users:    make(map[uuid.UUID]domain.Tier),
		progress: make(map[progressKey]*domain.CardProgress),
		sessions: make(map[uuid.UUID]*domain.Session),
		reviews:  make(map[uuid.UUID][]*domain.Review),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   log.With(slog.String("component", "memstore")),
	}
}

// SetClock replaces the time source used for UpdatedAt stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// AddUser registers a user with the given tier.
func (s *Store) AddUser(userID uuid.UUID, tier domain.Tier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = tier
}

// AddCard registers a card in a deck. Cards are offered as new cards in the
// order they were added.
func (s *Store) AddCard(cardID, deckID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards = append(s.cards, card{id: cardID, deckID: deckID})
}

// PutProgress stores a copy of p, replacing any existing progress of the pair.
func (s *Store) PutProgress(p *domain.CardProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[progressKey{p.UserID, p.CardID}] = p.Clone()
}

// Progress returns a copy of the stored progress of a user-card pair.
func (s *Store) Progress(userID, cardID uuid.UUID) (*domain.CardProgress, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[progressKey{userID, cardID}]
	return p.Clone(), ok
}

// GetUserTier implements store.SessionStore.GetUserTier
func (s *Store) GetUserTier(ctx context.Context, userID uuid.UUID) (domain.Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tier, ok := s.users[userID]
	if !ok {
		return "", store.ErrUserNotFound
	}
	return tier, nil
}

// CountReviewsSince implements store.SessionStore.CountReviewsSince
func (s *Store) CountReviewsSince(ctx context.Context, userID uuid.UUID, since time.Time) (store.DailyCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var counts store.DailyCounts
	for _, reviews := range s.reviews {
		for _, r := range reviews {
			if r.UserID != userID || r.ReviewedAt.Before(since) {
				continue
			}
			counts.Reviews++
			if r.StateBefore == domain.CardStateNew {
				counts.NewCards++
			}
		}
	}
	return counts, nil
}

// FindOpenSession implements store.SessionStore.FindOpenSession
func (s *Store) FindOpenSession(ctx context.Context, userID uuid.UUID, day, filterKey string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.Session
	for _, sess := range s.sessions {
		if sess.UserID != userID || sess.Day != day || sess.Filter.Key() != filterKey {
			continue
		}
		if sess.Status == domain.SessionStatusComplete {
			continue
		}
		if found == nil || sess.CreatedAt.After(found.CreatedAt) {
			found = sess
		}
	}
	if found == nil {
		return nil, store.ErrSessionNotFound
	}
	return found.Clone(), nil
}

// CreateSession implements store.SessionStore.CreateSession
func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := session.Validate(); err != nil {
		log.Warn("session validation failed during create",
			slog.String("error", err.Error()),
			slog.String("session_id", session.ID.String()))
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("%w: session %s", store.ErrDuplicate, session.ID)
	}
	if session.Status != domain.SessionStatusComplete {
		key := session.Filter.Key()
		for _, other := range s.sessions {
			if other.UserID == session.UserID && other.Day == session.Day &&
				other.Filter.Key() == key && other.Status != domain.SessionStatusComplete {
				log.Debug("open session already exists",
					slog.String("session_id", session.ID.String()),
					slog.String("open_session_id", other.ID.String()))
				return fmt.Errorf("%w: open session", store.ErrDuplicate)
			}
		}
	}
	s.sessions[session.ID] = session.Clone()

	log.Debug("session created",
		slog.String("session_id", session.ID.String()),
		slog.Int("total_cards", session.TotalCards))
	return nil
}

// GetSession implements store.SessionStore.GetSession
func (s *Store) GetSession(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// GetDueCards implements store.SessionStore.GetDueCards
func (s *Store) GetDueCards(
	ctx context.Context,
	userID uuid.UUID,
	filter domain.Filter,
	now time.Time,
	limit int,
) ([]*domain.CardProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	decks := s.deckIndex()
	due := make([]*domain.CardProgress, 0)
	for key, p := range s.progress {
		if key.userID != userID || !p.State.Studiable() || p.DueAt.After(now) {
			continue
		}
		if filter.DeckID != uuid.Nil && decks[key.cardID] != filter.DeckID {
			continue
		}
		due = append(due, p.Clone())
	}

	sort.Slice(due, func(i, j int) bool {
		if !due[i].DueAt.Equal(due[j].DueAt) {
			return due[i].DueAt.Before(due[j].DueAt)
		}
		return due[i].CardID.String() < due[j].CardID.String()
	})

	if limit < len(due) {
		due = due[:max(0, limit)]
	}
	return due, nil
}

// GetNewCards implements store.SessionStore.GetNewCards
func (s *Store) GetNewCards(ctx context.Context, userID uuid.UUID, filter domain.Filter, limit int) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uuid.UUID, 0)
	for _, c := range s.cards {
		if len(ids) >= limit {
			break
		}
		if filter.DeckID != uuid.Nil && c.deckID != filter.DeckID {
			continue
		}
		if _, seen := s.progress[progressKey{userID, c.id}]; seen {
			continue
		}
		ids = append(ids, c.id)
	}
	return ids, nil
}

// FinalizeSessionOrder implements store.SessionStore.FinalizeSessionOrder
func (s *Store) FinalizeSessionOrder(ctx context.Context, sessionID uuid.UUID, orderedCardIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return store.ErrSessionNotFound
	}
	if sess.Status != domain.SessionStatusCreated {
		return nil
	}

	byID := make(map[uuid.UUID]domain.SessionCard, len(sess.Cards))
	for _, c := range sess.Cards {
		byID[c.CardID] = c
	}
	if len(orderedCardIDs) != len(sess.Cards) {
		return fmt.Errorf("%w: order has %d cards, session has %d",
			store.ErrInvalidEntity, len(orderedCardIDs), len(sess.Cards))
	}

	ordered := make([]domain.SessionCard, 0, len(orderedCardIDs))
	for _, id := range orderedCardIDs {
		c, ok := byID[id]
		if !ok {
			return fmt.Errorf("%w: card %s is not part of session or repeated", store.ErrInvalidEntity, id)
		}
		delete(byID, id)
		ordered = append(ordered, c)
	}

	sess.Cards = ordered
	return sess.Advance(domain.SessionStatusActive, s.now())
}

// RecordReview implements store.SessionStore.RecordReview
func (s *Store) RecordReview(
	ctx context.Context,
	review *domain.Review,
	progress *domain.CardProgress,
) (domain.SessionProgress, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := review.Validate(); err != nil {
		return domain.SessionProgress{}, err
	}
	if err := progress.Validate(); err != nil {
		return domain.SessionProgress{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[review.SessionID]
	if !ok {
		return domain.SessionProgress{}, store.ErrSessionNotFound
	}
	if sess.UserID != review.UserID || progress.UserID != review.UserID {
		return domain.SessionProgress{}, store.ErrUnauthorized
	}
	for _, r := range s.reviews[sess.ID] {
		if r.CardID == review.CardID {
			return domain.SessionProgress{}, store.ErrReviewExists
		}
	}

	position := -1
	for i, c := range sess.Cards {
		if c.CardID == review.CardID {
			position = i
			break
		}
	}
	if position < 0 {
		return domain.SessionProgress{}, fmt.Errorf("%w: card %s is not part of session %s",
			store.ErrInvalidEntity, review.CardID, sess.ID)
	}

	stored := *review
	s.reviews[sess.ID] = append(s.reviews[sess.ID], &stored)
	s.progress[progressKey{progress.UserID, progress.CardID}] = progress.Clone()

	sess.SubmittedCount++
	sess.CurrentIndex = max(sess.CurrentIndex, position+1)
	sess.UpdatedAt = s.now()
	if sess.IsComplete() {
		if err := sess.Advance(domain.SessionStatusComplete, sess.UpdatedAt); err != nil {
			return domain.SessionProgress{}, err
		}
	}

	log.Debug("review recorded",
		slog.String("session_id", sess.ID.String()),
		slog.String("card_id", review.CardID.String()),
		slog.Int("submitted_count", sess.SubmittedCount))

	return domain.SessionProgress{
		SubmittedCount: sess.SubmittedCount,
		Completed:      sess.IsComplete(),
	}, nil
}

// ListSessionReviews implements store.SessionStore.ListSessionReviews
func (s *Store) ListSessionReviews(ctx context.Context, sessionID uuid.UUID) ([]*domain.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, store.ErrSessionNotFound
	}

	reviews := make([]*domain.Review, 0, len(s.reviews[sessionID]))
	for _, r := range s.reviews[sessionID] {
		c := *r
		reviews = append(reviews, &c)
	}
	return reviews, nil
}

// deckIndex maps card ids to deck ids. Callers must hold the lock.
func (s *Store) deckIndex() map[uuid.UUID]uuid.UUID {
	idx := make(map[uuid.UUID]uuid.UUID, len(s.cards))
	for _, c := range s.cards {
		idx[c.id] = c.deckID
	}
	return idx
}
