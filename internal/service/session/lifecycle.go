package session

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"slices"

	"github.com/google/uuid"
	"github.com/smibbs/sparep/internal/domain"
	"github.com/smibbs/sparep/internal/domain/srs"
	"github.com/smibbs/sparep/internal/platform/logger"
	"github.com/smibbs/sparep/internal/shuffle"
	"github.com/smibbs/sparep/internal/store"
)

// RatingResult is what a rating produced. Submitting the same card again
// returns the stored result with Replayed set.
type RatingResult struct {
	Review          *domain.Review
	Progress        *domain.CardProgress
	Outcome         *srs.Outcome
	SessionProgress domain.SessionProgress
	Replayed        bool
}

func (r *RatingResult) clone() *RatingResult {
	c := *r
	if r.Review != nil {
		review := *r.Review
		c.Review = &review
	}
	c.Progress = r.Progress.Clone()
	if r.Outcome != nil {
		outcome := *r.Outcome
		c.Outcome = &outcome
	}
	return &c
}

func (r *RatingResult) replay() *RatingResult {
	c := r.clone()
	c.Replayed = true
	return c
}

// Progress summarizes how far a session has come.
type Progress struct {
	Completed  int     `json:"completed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// Lifecycle drives one session from created through active to complete.
type Lifecycle struct {
	m       *Manager
	session *domain.Session
	// ratings is keyed by card id so it survives reordering.
	ratings map[uuid.UUID]*RatingResult
	// presented is the index of the card last handed out, or -1.
	presented int
}

func newLifecycle(m *Manager, session *domain.Session) *Lifecycle {
	return &Lifecycle{
		m:         m,
		session:   session,
		ratings:   make(map[uuid.UUID]*RatingResult, session.TotalCards),
		presented: -1,
	}
}

// ID returns the session id.
func (l *Lifecycle) ID() uuid.UUID {
	return l.session.ID
}

// Status returns the session status.
func (l *Lifecycle) Status() domain.SessionStatus {
	return l.session.Status
}

// Session returns a copy of the session.
func (l *Lifecycle) Session() *domain.Session {
	return l.session.Clone()
}

// Finalize is ShuffleAndFinalize with the manager's default order mode.
func (l *Lifecycle) Finalize(ctx context.Context) error {
	return l.ShuffleAndFinalize(ctx, l.m.shuffle)
}

// ShuffleAndFinalize fixes the card order and activates the session. With
// enableShuffle the cards are permuted deterministically by the session seed,
// otherwise insertion order is kept. Calling it on an active or complete
// session does nothing.
//
// The store ignores an order for a session it already activated, so the
// lifecycle always adopts the order the store holds. A retry after a lost
// response therefore keeps the first order even if enableShuffle changed.
func (l *Lifecycle) ShuffleAndFinalize(ctx context.Context, enableShuffle bool) error {
	if l.session.Status != domain.SessionStatusCreated {
		return nil
	}

	log := logger.FromContextOrDefault(ctx, l.m.logger).With(slog.String("session_id", l.session.ID.String()))

	ids := l.session.CardIDs()
	if enableShuffle {
		ids = shuffle.Shuffle(ids, l.session.Seed)
	}

	if err := l.m.repo.FinalizeSessionOrder(ctx, l.session.ID, ids); err != nil {
		log.Error("failed to finalize session order", slog.String("error", err.Error()))
		return NewFinalizeError("failed to persist card order", err)
	}

	persisted, err := l.m.repo.GetSession(ctx, l.session.ID)
	if err != nil {
		log.Error("failed to reload session order", slog.String("error", err.Error()))
		return NewFinalizeError("failed to reload card order", err)
	}
	if persisted.Status == domain.SessionStatusCreated {
		return NewFinalizeError("session was not activated", ErrSessionNotActive)
	}

	byID := make(map[uuid.UUID]domain.SessionCard, len(l.session.Cards))
	for _, c := range l.session.Cards {
		byID[c.CardID] = c
	}
	ordered := make([]domain.SessionCard, 0, len(persisted.Cards))
	for _, c := range persisted.Cards {
		card, ok := byID[c.CardID]
		if !ok {
			return NewFinalizeError("persisted order does not match session cards", store.ErrInvalidEntity)
		}
		ordered = append(ordered, card)
	}
	if len(ordered) != len(l.session.Cards) {
		return NewFinalizeError("persisted order does not match session cards", store.ErrInvalidEntity)
	}
	l.session.Cards = ordered
	l.presented = -1

	if err := l.session.Advance(domain.SessionStatusActive, l.m.now()); err != nil {
		return NewFinalizeError("failed to activate session", err)
	}

	log.Debug("session order finalized",
		slog.Bool("shuffled", enableShuffle),
		slog.Bool("order_changed_by_store", !slices.Equal(ids, l.session.CardIDs())))
	return nil
}

// CurrentCard returns the card to present next: the card at the cursor if it
// is unrated, otherwise the next unrated one. It returns false when the
// session is not active or every card has been rated.
func (l *Lifecycle) CurrentCard() (*domain.SessionCard, bool) {
	if l.session.Status != domain.SessionStatusActive {
		return nil, false
	}

	if l.presented >= 0 && !l.isRated(l.presented) {
		return l.cardAt(l.presented), true
	}

	for i := l.session.CurrentIndex; i < len(l.session.Cards); i++ {
		if !l.isRated(i) {
			l.session.CurrentIndex = i
			l.presented = i
			return l.cardAt(i), true
		}
	}
	// Cards behind the cursor stay unrated when a later card was rated by id.
	for i := 0; i < l.session.CurrentIndex && i < len(l.session.Cards); i++ {
		if !l.isRated(i) {
			l.presented = i
			return l.cardAt(i), true
		}
	}
	return nil, false
}

// RecordRating rates the current card.
//
// If the card presented last was already rated, the stored result is returned
// again and nothing is persisted, so a retried submission never produces a
// second review.
func (l *Lifecycle) RecordRating(ctx context.Context, rating domain.Rating, responseTimeMs int) (*RatingResult, error) {
	if err := validateRating(rating, responseTimeMs); err != nil {
		return nil, err
	}

	if l.presented >= 0 && l.isRated(l.presented) {
		return l.ratings[l.session.Cards[l.presented].CardID].replay(), nil
	}
	if l.session.Status != domain.SessionStatusActive {
		return nil, NewRecordRatingError("cannot rate card", ErrSessionNotActive)
	}

	if _, ok := l.CurrentCard(); !ok {
		return nil, NewRecordRatingError("cannot rate card", ErrNoCurrentCard)
	}
	return l.rate(ctx, l.presented, rating, responseTimeMs)
}

// RecordRatingFor rates a specific card of the session regardless of the cursor.
// A card that was already rated returns its stored result.
func (l *Lifecycle) RecordRatingFor(
	ctx context.Context,
	cardID uuid.UUID,
	rating domain.Rating,
	responseTimeMs int,
) (*RatingResult, error) {
	if err := validateRating(rating, responseTimeMs); err != nil {
		return nil, err
	}

	idx := l.indexOf(cardID)
	if idx < 0 {
		return nil, domain.NewValidationError("card_id", "card is not part of the session", domain.ErrInvalidID)
	}
	if res, ok := l.ratings[cardID]; ok {
		return res.replay(), nil
	}
	if l.session.Status != domain.SessionStatusActive {
		return nil, NewRecordRatingError("cannot rate card", ErrSessionNotActive)
	}

	l.presented = idx
	return l.rate(ctx, idx, rating, responseTimeMs)
}

func (l *Lifecycle) rate(ctx context.Context, idx int, rating domain.Rating, responseTimeMs int) (*RatingResult, error) {
	card := l.session.Cards[idx]
	log := logger.FromContextOrDefault(ctx, l.m.logger).With(
		slog.String("session_id", l.session.ID.String()),
		slog.String("card_id", card.CardID.String()),
	)

	now := l.m.now()
	next, outcome, err := l.m.srs.CalculateNextReview(card.Progress, rating, now)
	if err != nil {
		log.Warn("failed to calculate next review", slog.String("error", err.Error()))
		return nil, NewRecordRatingError("failed to calculate next review", err)
	}

	review := &domain.Review{
		ID:               uuid.New(),
		SessionID:        l.session.ID,
		CardID:           card.CardID,
		UserID:           l.session.UserID,
		Rating:           rating,
		ResponseTimeMs:   responseTimeMs,
		StabilityBefore:  outcome.StabilityBefore,
		StabilityAfter:   outcome.StabilityAfter,
		DifficultyBefore: outcome.DifficultyBefore,
		DifficultyAfter:  outcome.DifficultyAfter,
		StateBefore:      outcome.StateBefore,
		StateAfter:       outcome.StateAfter,
		ElapsedDays:      outcome.ElapsedDays,
		ScheduledDays:    outcome.ScheduledDays,
		ReviewedAt:       now,
	}

	progress, err := l.m.repo.RecordReview(ctx, review, next)
	if errors.Is(err, store.ErrReviewExists) {
		log.Info("review already recorded, reloading stored result")
		return l.reload(ctx, idx)
	}
	if err != nil {
		log.Error("failed to record review", slog.String("error", err.Error()))
		return nil, NewRecordRatingError("failed to record review", err)
	}

	result := &RatingResult{
		Review:          review,
		Progress:        next,
		Outcome:         outcome,
		SessionProgress: progress,
	}
	l.ratings[card.CardID] = result
	if err := l.advance(idx, progress); err != nil {
		return nil, err
	}

	log.Debug("rating recorded",
		slog.String("rating", rating.String()),
		slog.String("state_after", string(next.State)),
		slog.Int("submitted_count", progress.SubmittedCount))

	return result.clone(), nil
}

// reload adopts a review the store already holds for the card at idx, e.g.
// after a retry whose first attempt succeeded but whose response was lost.
func (l *Lifecycle) reload(ctx context.Context, idx int) (*RatingResult, error) {
	card := l.session.Cards[idx]

	reviews, err := l.m.repo.ListSessionReviews(ctx, l.session.ID)
	if err != nil {
		return nil, NewRecordRatingError("failed to reload recorded review", err)
	}
	var stored *domain.Review
	for _, r := range reviews {
		if r.CardID == card.CardID {
			stored = r
			break
		}
	}
	if stored == nil {
		return nil, NewRecordRatingError("recorded review is missing", store.ErrReviewExists)
	}

	persisted, err := l.m.repo.GetSession(ctx, l.session.ID)
	if err != nil {
		return nil, NewRecordRatingError("failed to reload session", err)
	}
	progress := domain.SessionProgress{
		SubmittedCount: persisted.SubmittedCount,
		Completed:      persisted.IsComplete(),
	}

	result := l.m.resultFromReview(card.Progress, stored, progress)
	l.ratings[card.CardID] = result
	if err := l.advance(idx, progress); err != nil {
		return nil, err
	}
	return result.replay(), nil
}

// advance moves the cursor past idx and adopts the persisted counters.
func (l *Lifecycle) advance(idx int, progress domain.SessionProgress) error {
	now := l.m.now()
	l.session.SubmittedCount = max(progress.SubmittedCount, len(l.ratings))
	l.session.CurrentIndex = max(l.session.CurrentIndex, idx+1)
	l.session.UpdatedAt = now
	if progress.Completed || l.session.IsComplete() {
		if err := l.session.Advance(domain.SessionStatusComplete, now); err != nil {
			return NewRecordRatingError("failed to complete session", err)
		}
	}
	return nil
}

// IsComplete reports whether every card of the session has been rated.
func (l *Lifecycle) IsComplete() bool {
	return l.session.IsComplete()
}

// Progress returns the number of rated cards out of the session total.
func (l *Lifecycle) Progress() Progress {
	p := Progress{
		Completed: l.session.SubmittedCount,
		Total:     l.session.TotalCards,
	}
	if p.Total > 0 {
		p.Percentage = math.Round(float64(p.Completed)/float64(p.Total)*10000) / 100
	}
	return p
}

func (l *Lifecycle) isRated(idx int) bool {
	_, ok := l.ratings[l.session.Cards[idx].CardID]
	return ok
}

func (l *Lifecycle) cardAt(idx int) *domain.SessionCard {
	c := l.session.Cards[idx]
	return &domain.SessionCard{CardID: c.CardID, Progress: c.Progress.Clone()}
}

func (l *Lifecycle) indexOf(cardID uuid.UUID) int {
	for i, c := range l.session.Cards {
		if c.CardID == cardID {
			return i
		}
	}
	return -1
}

func validateRating(rating domain.Rating, responseTimeMs int) error {
	if !rating.Valid() {
		return domain.NewValidationError("rating", "must be between 0 and 3", domain.ErrInvalidRating)
	}
	if responseTimeMs < 0 || responseTimeMs > domain.MaxResponseTimeMs {
		return domain.NewValidationError("response_time_ms", "must be between 0 and 3600000", domain.ErrInvalidResponseTime)
	}
	return nil
}
