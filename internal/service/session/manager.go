package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/smibbs/sparep/internal/config"
	"github.com/smibbs/sparep/internal/domain"
	"github.com/smibbs/sparep/internal/domain/srs"
	"github.com/smibbs/sparep/internal/platform/logger"
	"github.com/smibbs/sparep/internal/quota"
	"github.com/smibbs/sparep/internal/store"
)

// DefaultSessionSize is the number of cards a session targets when neither the
// options nor the filter set one.
const DefaultSessionSize = 20

// Options configures a Manager.
type Options struct {
	// SessionSize is the target number of cards per session.
	SessionSize int
	// ShuffleByDefault is the order mode used by Lifecycle.Finalize.
	ShuffleByDefault bool
	// Clock returns the current time. Defaults to time.Now in UTC.
	Clock func() time.Time
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Manager creates and resumes study sessions.
type Manager struct {
	repo    store.SessionStore
	srs     srs.Service
	policy  *quota.Policy
	size    int
	shuffle bool
	now     func() time.Time
	logger  *slog.Logger
}

// NewManager creates a new session Manager.
// It will panic if any of the required dependencies are nil.
func NewManager(repo store.SessionStore, srsService srs.Service, policy *quota.Policy, opts Options) *Manager {
	if repo == nil {
		panic("repo cannot be nil")
	}
	if srsService == nil {
		panic("srsService cannot be nil")
	}
	if policy == nil {
		panic("policy cannot be nil")
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	size := opts.SessionSize
	if size <= 0 {
		size = DefaultSessionSize
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	return &Manager{
		repo:    repo,
		srs:     srsService,
		policy:  policy,
		size:    size,
		shuffle: opts.ShuffleByDefault,
		now:     clock,
		logger:  log.With(slog.String("component", "session_manager")),
	}
}

// NewManagerFromConfig wires a Manager with the memory model, quota policy and
// session options described by cfg.
func NewManagerFromConfig(repo store.SessionStore, cfg *config.Config, log *slog.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	policy, err := quota.NewPolicyFromConfig(cfg.Quota)
	if err != nil {
		return nil, fmt.Errorf("failed to create quota policy: %w", err)
	}
	srsService := srs.NewServiceWithParams(srs.NewParams(cfg.SRS.ParamsConfig()))

	return NewManager(repo, srsService, policy, Options{
		SessionSize:      cfg.Session.Size,
		ShuffleByDefault: cfg.Session.Shuffle,
		Logger:           log,
	}), nil
}

// Initialize returns the open session of the user for today and the given
// filter, or builds a new one from due cards topped up with new cards.
//
// The daily quota is checked before any card is selected; a user who has
// used it up gets a *domain.LimitReachedError. domain.ErrNoCardsAvailable is
// returned when nothing is due and no new card is left.
func (m *Manager) Initialize(ctx context.Context, userID uuid.UUID, filter domain.Filter) (*Lifecycle, error) {
	log := logger.FromContextOrDefault(ctx, m.logger).With(slog.String("user_id", userID.String()))

	if userID == uuid.Nil {
		return nil, domain.NewValidationError("user_id", "cannot be empty", domain.ErrInvalidID)
	}
	if err := filter.Validate(); err != nil {
		log.Warn("invalid session filter", slog.String("error", err.Error()))
		return nil, err
	}

	now := m.now()
	tier, err := m.repo.GetUserTier(ctx, userID)
	if err != nil {
		log.Error("failed to get user tier", slog.String("error", err.Error()))
		return nil, NewInitializeError("failed to get user tier", err)
	}

	dayStart, _ := m.policy.DayBounds(now)
	counts, err := m.repo.CountReviewsSince(ctx, userID, dayStart)
	if err != nil {
		log.Error("failed to count today's reviews", slog.String("error", err.Error()))
		return nil, NewInitializeError("failed to count today's reviews", err)
	}

	if err := m.policy.Check(tier, counts.Reviews); err != nil {
		log.Info("daily limit reached",
			slog.String("tier", string(tier)),
			slog.Int("reviews_today", counts.Reviews))
		return nil, err
	}

	day := m.policy.Day(now)
	existing, err := m.repo.FindOpenSession(ctx, userID, day, filter.Key())
	switch {
	case err == nil:
		log.Debug("resuming open session", slog.String("session_id", existing.ID.String()))
		return m.hydrate(ctx, existing)
	case !errors.Is(err, store.ErrSessionNotFound):
		log.Error("failed to look up open session", slog.String("error", err.Error()))
		return nil, NewInitializeError("failed to look up open session", err)
	}

	cards, err := m.selectCards(ctx, userID, tier, filter, counts, now)
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		log.Debug("no cards available for session")
		return nil, domain.ErrNoCardsAvailable
	}

	session := &domain.Session{
		ID:         uuid.New(),
		UserID:     userID,
		Filter:     filter,
		Day:        day,
		Cards:      cards,
		TotalCards: len(cards),
		Status:     domain.SessionStatusCreated,
		Seed:       uuid.NewString(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := m.repo.CreateSession(ctx, session); err != nil {
		if store.IsDuplicateError(err) {
			// Another request created the session for this day and filter first.
			existing, findErr := m.repo.FindOpenSession(ctx, userID, day, filter.Key())
			if findErr == nil {
				return m.hydrate(ctx, existing)
			}
		}
		log.Error("failed to create session", slog.String("error", err.Error()))
		return nil, NewInitializeError("failed to create session", err)
	}

	log.Info("session created",
		slog.String("session_id", session.ID.String()),
		slog.Int("total_cards", session.TotalCards))

	return newLifecycle(m, session), nil
}

// selectCards picks due cards first and fills the remaining slots with new
// cards, both capped by what the quota still allows today.
func (m *Manager) selectCards(
	ctx context.Context,
	userID uuid.UUID,
	tier domain.Tier,
	filter domain.Filter,
	counts store.DailyCounts,
	now time.Time,
) ([]domain.SessionCard, error) {
	log := logger.FromContextOrDefault(ctx, m.logger)

	target := m.size
	if filter.MaxCards > 0 {
		target = filter.MaxCards
	}
	reviewAllowance, err := m.policy.ReviewAllowance(tier, counts.Reviews)
	if err != nil {
		return nil, err
	}
	if reviewAllowance != quota.Unlimited {
		target = min(target, reviewAllowance)
	}

	due, err := m.repo.GetDueCards(ctx, userID, filter, now, target)
	if err != nil {
		log.Error("failed to get due cards", slog.String("error", err.Error()))
		return nil, NewInitializeError("failed to get due cards", err)
	}

	cards := make([]domain.SessionCard, 0, target)
	for _, p := range due {
		cards = append(cards, domain.SessionCard{CardID: p.CardID, Progress: p})
	}

	remaining := target - len(cards)
	newAllowance, err := m.policy.NewCardAllowance(tier, counts.NewCards)
	if err != nil {
		return nil, err
	}
	if newAllowance != quota.Unlimited {
		remaining = min(remaining, newAllowance)
	}
	if remaining <= 0 {
		return cards, nil
	}

	newIDs, err := m.repo.GetNewCards(ctx, userID, filter, remaining)
	if err != nil {
		log.Error("failed to get new cards", slog.String("error", err.Error()))
		return nil, NewInitializeError("failed to get new cards", err)
	}
	for _, cardID := range newIDs {
		p, err := m.srs.NewCardProgress(userID, cardID, now)
		if err != nil {
			return nil, NewInitializeError("failed to seed new card progress", err)
		}
		cards = append(cards, domain.SessionCard{CardID: cardID, Progress: p})
	}

	log.Debug("cards selected",
		slog.Int("due", len(due)),
		slog.Int("new", len(newIDs)),
		slog.Int("target", target))

	return cards, nil
}

// Resume rebuilds the lifecycle of a stored session. Ratings already given are
// recovered from the session's review log.
func (m *Manager) Resume(ctx context.Context, sessionID, userID uuid.UUID) (*Lifecycle, error) {
	log := logger.FromContextOrDefault(ctx, m.logger).With(slog.String("session_id", sessionID.String()))

	if sessionID == uuid.Nil {
		return nil, domain.NewValidationError("session_id", "cannot be empty", domain.ErrInvalidID)
	}

	session, err := m.repo.GetSession(ctx, sessionID)
	if err != nil {
		if !store.IsNotFoundError(err) {
			log.Error("failed to get session", slog.String("error", err.Error()))
		}
		return nil, NewResumeError("failed to get session", err)
	}
	if session.UserID != userID {
		log.Warn("session requested by another user", slog.String("user_id", userID.String()))
		return nil, NewResumeError("session belongs to another user", domain.ErrUnauthorized)
	}

	return m.hydrate(ctx, session)
}

// hydrate attaches the persisted review log of session to a new Lifecycle.
func (m *Manager) hydrate(ctx context.Context, session *domain.Session) (*Lifecycle, error) {
	reviews, err := m.repo.ListSessionReviews(ctx, session.ID)
	if err != nil {
		return nil, NewResumeError("failed to list session reviews", err)
	}

	l := newLifecycle(m, session)
	for i, r := range reviews {
		idx := l.indexOf(r.CardID)
		if idx < 0 {
			continue
		}
		l.ratings[r.CardID] = m.resultFromReview(session.Cards[idx].Progress, r, domain.SessionProgress{
			SubmittedCount: i + 1,
			Completed:      i+1 >= session.TotalCards,
		})
	}

	session.SubmittedCount = len(l.ratings)
	if session.IsComplete() {
		if err := session.Advance(domain.SessionStatusComplete, m.now()); err != nil {
			return nil, NewResumeError("failed to complete session", err)
		}
	}
	return l, nil
}

// resultFromReview reconstructs the result of a rating from its stored review.
// The review is authoritative for the outcome; the progress is recomputed from
// the session snapshot and left nil if that is no longer possible.
func (m *Manager) resultFromReview(
	snapshot *domain.CardProgress,
	r *domain.Review,
	progress domain.SessionProgress,
) *RatingResult {
	result := &RatingResult{
		Review: r,
		Outcome: &srs.Outcome{
			Rating:           r.Rating,
			StabilityBefore:  r.StabilityBefore,
			StabilityAfter:   r.StabilityAfter,
			DifficultyBefore: r.DifficultyBefore,
			DifficultyAfter:  r.DifficultyAfter,
			StateBefore:      r.StateBefore,
			StateAfter:       r.StateAfter,
			ElapsedDays:      r.ElapsedDays,
			ScheduledDays:    r.ScheduledDays,
		},
		SessionProgress: progress,
	}

	if next, outcome, err := m.srs.CalculateNextReview(snapshot, r.Rating, r.ReviewedAt); err == nil {
		result.Progress = next
		result.Outcome.Retrievability = outcome.Retrievability
	} else {
		m.logger.Warn("failed to recompute progress from review",
			slog.String("review_id", r.ID.String()),
			slog.String("error", err.Error()))
	}
	return result
}
