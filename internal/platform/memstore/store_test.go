package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smibbs/sparep/internal/domain"
	"github.com/smibbs/sparep/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func newProgress(userID, cardID uuid.UUID, state domain.CardState, dueAt time.Time) *domain.CardProgress {
	return &domain.CardProgress{
		UserID:     userID,
		CardID:     cardID,
		Stability:  2.5,
		Difficulty: 5,
		State:      state,
		DueAt:      dueAt,
		CreatedAt:  testNow,
		UpdatedAt:  testNow,
	}
}

// newSession stores a created session over cardIDs and returns it.
func newSession(t *testing.T, s *Store, userID uuid.UUID, cardIDs ...uuid.UUID) *domain.Session {
	t.Helper()

	session := &domain.Session{
		ID:         uuid.New(),
		UserID:     userID,
		Day:        "2025-05-01",
		TotalCards: len(cardIDs),
		Status:     domain.SessionStatusCreated,
		Seed:       "seed",
		CreatedAt:  testNow,
		UpdatedAt:  testNow,
	}
	for _, id := range cardIDs {
		session.Cards = append(session.Cards, domain.SessionCard{
			CardID:   id,
			Progress: newProgress(userID, id, domain.CardStateNew, testNow),
		})
	}
	require.NoError(t, s.CreateSession(context.Background(), session))
	return session
}

func newReview(session *domain.Session, cardID uuid.UUID) *domain.Review {
	return &domain.Review{
		ID:              uuid.New(),
		SessionID:       session.ID,
		CardID:          cardID,
		UserID:          session.UserID,
		Rating:          domain.RatingGood,
		ResponseTimeMs:  1000,
		StabilityBefore: 2.5,
		StabilityAfter:  6,
		StateBefore:     domain.CardStateNew,
		StateAfter:      domain.CardStateReview,
		ScheduledDays:   6,
		ReviewedAt:      testNow,
	}
}

func newTestStore() *Store {
	s := New(nil)
	s.SetClock(func() time.Time { return testNow })
	return s
}

func TestGetUserTier(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	userID := uuid.New()
	s.AddUser(userID, domain.TierPaid)

	tier, err := s.GetUserTier(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierPaid, tier)

	_, err = s.GetUserTier(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetDueCards(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()
	userID := uuid.New()
	deckA, deckB := uuid.New(), uuid.New()

	add := func(deck uuid.UUID, state domain.CardState, dueAt time.Time) uuid.UUID {
		id := uuid.New()
		s.AddCard(id, deck)
		s.PutProgress(newProgress(userID, id, state, dueAt))
		return id
	}
	oldest := add(deckA, domain.CardStateReview, testNow.Add(-72*time.Hour))
	recent := add(deckB, domain.CardStateLearning, testNow.Add(-time.Hour))
	exact := add(deckA, domain.CardStateRelearning, testNow)
	add(deckA, domain.CardStateReview, testNow.Add(time.Hour))
	add(deckA, domain.CardStateSuspended, testNow.Add(-time.Hour))
	add(deckA, domain.CardStateBuried, testNow.Add(-time.Hour))
	s.PutProgress(newProgress(uuid.New(), oldest, domain.CardStateReview, testNow.Add(-time.Hour)))

	cardIDs := func(ps []*domain.CardProgress) []uuid.UUID {
		ids := make([]uuid.UUID, len(ps))
		for i, p := range ps {
			ids[i] = p.CardID
		}
		return ids
	}

	due, err := s.GetDueCards(ctx, userID, domain.Filter{}, testNow, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{oldest, recent, exact}, cardIDs(due))

	due, err = s.GetDueCards(ctx, userID, domain.Filter{}, testNow, 2)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{oldest, recent}, cardIDs(due))

	due, err = s.GetDueCards(ctx, userID, domain.Filter{DeckID: deckA}, testNow, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{oldest, exact}, cardIDs(due))

	due, err = s.GetDueCards(ctx, userID, domain.Filter{}, testNow, 0)
	require.NoError(t, err)
	assert.Empty(t, due)

	// Returned values are copies.
	due, err = s.GetDueCards(ctx, userID, domain.Filter{}, testNow, 1)
	require.NoError(t, err)
	due[0].Stability = 100
	stored, ok := s.Progress(userID, oldest)
	require.True(t, ok)
	assert.Equal(t, 2.5, stored.Stability)
}

func TestGetNewCards(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()
	userID := uuid.New()
	deckA, deckB := uuid.New(), uuid.New()

	seen, a1, b1, a2 := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	s.AddCard(seen, deckA)
	s.AddCard(a1, deckA)
	s.AddCard(b1, deckB)
	s.AddCard(a2, deckA)
	s.PutProgress(newProgress(userID, seen, domain.CardStateLearning, testNow))

	ids, err := s.GetNewCards(ctx, userID, domain.Filter{}, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a1, b1, a2}, ids)

	ids, err = s.GetNewCards(ctx, userID, domain.Filter{DeckID: deckA}, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a1, a2}, ids)

	ids, err = s.GetNewCards(ctx, userID, domain.Filter{}, 1)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a1}, ids)

	ids, err = s.GetNewCards(ctx, uuid.New(), domain.Filter{}, 10)
	require.NoError(t, err)
	assert.Len(t, ids, 4, "another user has seen nothing")
}

func TestSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()
	userID := uuid.New()
	session := newSession(t, s, userID, uuid.New(), uuid.New())

	got, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session, got)

	got.Cards[0].Progress.Stability = 50
	again, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.5, again.Cards[0].Progress.Stability)

	_, err = s.GetSession(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	assert.ErrorIs(t, s.CreateSession(ctx, session), store.ErrDuplicate)

	invalid := session.Clone()
	invalid.ID = uuid.New()
	invalid.TotalCards = 5
	assert.ErrorIs(t, s.CreateSession(ctx, invalid), domain.ErrValidation)
}

func TestCreateSession_OneOpenSessionPerDayAndFilter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()
	userID := uuid.New()
	cardID := uuid.New()
	open := newSession(t, s, userID, cardID)

	sibling := func(mutate func(*domain.Session)) *domain.Session {
		c := open.Clone()
		c.ID = uuid.New()
		mutate(c)
		return c
	}

	err := s.CreateSession(ctx, sibling(func(*domain.Session) {}))
	assert.ErrorIs(t, err, store.ErrDuplicate)
	assert.Contains(t, err.Error(), "open session")

	assert.NoError(t, s.CreateSession(ctx, sibling(func(c *domain.Session) { c.Day = "2025-05-02" })))
	assert.NoError(t, s.CreateSession(ctx, sibling(func(c *domain.Session) { c.Filter.MaxCards = 1 })))
	assert.NoError(t, s.CreateSession(ctx, sibling(func(c *domain.Session) {
		c.UserID = uuid.New()
		c.Cards[0].Progress.UserID = c.UserID
	})))

	require.NoError(t, s.FinalizeSessionOrder(ctx, open.ID, []uuid.UUID{cardID}))
	_, err = s.RecordReview(ctx, newReview(open, cardID), newProgress(userID, cardID, domain.CardStateReview, testNow))
	require.NoError(t, err)

	assert.NoError(t, s.CreateSession(ctx, sibling(func(*domain.Session) {})),
		"a complete session does not block a new one")
}

func TestFindOpenSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()
	userID := uuid.New()
	key := domain.Filter{}.Key()

	_, err := s.FindOpenSession(ctx, userID, "2025-05-01", key)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)

	cardID := uuid.New()
	session := newSession(t, s, userID, cardID)

	found, err := s.FindOpenSession(ctx, userID, "2025-05-01", key)
	require.NoError(t, err)
	assert.Equal(t, session.ID, found.ID)

	_, err = s.FindOpenSession(ctx, userID, "2025-05-02", key)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
	_, err = s.FindOpenSession(ctx, userID, "2025-05-01", domain.Filter{MaxCards: 3}.Key())
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
	_, err = s.FindOpenSession(ctx, uuid.New(), "2025-05-01", key)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)

	require.NoError(t, s.FinalizeSessionOrder(ctx, session.ID, []uuid.UUID{cardID}))
	_, err = s.RecordReview(ctx, newReview(session, cardID), newProgress(userID, cardID, domain.CardStateReview, testNow))
	require.NoError(t, err)

	_, err = s.FindOpenSession(ctx, userID, "2025-05-01", key)
	assert.ErrorIs(t, err, store.ErrSessionNotFound, "complete sessions are not open")
}

func TestFinalizeSessionOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()
	userID := uuid.New()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	session := newSession(t, s, userID, a, b, c)

	testCases := []struct {
		name  string
		order []uuid.UUID
	}{
		{name: "too short", order: []uuid.UUID{a, b}},
		{name: "repeated card", order: []uuid.UUID{a, a, b}},
		{name: "foreign card", order: []uuid.UUID{a, b, uuid.New()}},
	}
	for _, tc := range testCases {
		err := s.FinalizeSessionOrder(ctx, session.ID, tc.order)
		assert.ErrorIs(t, err, store.ErrInvalidEntity, tc.name)
	}

	require.NoError(t, s.FinalizeSessionOrder(ctx, session.ID, []uuid.UUID{c, a, b}))
	got, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{c, a, b}, got.CardIDs())
	assert.Equal(t, domain.SessionStatusActive, got.Status)

	// Already active: order is kept.
	require.NoError(t, s.FinalizeSessionOrder(ctx, session.ID, []uuid.UUID{a, b, c}))
	got, err = s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{c, a, b}, got.CardIDs())

	assert.ErrorIs(t, s.FinalizeSessionOrder(ctx, uuid.New(), nil), store.ErrSessionNotFound)
}

func TestRecordReview(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()
	userID := uuid.New()
	a, b := uuid.New(), uuid.New()
	session := newSession(t, s, userID, a, b)
	require.NoError(t, s.FinalizeSessionOrder(ctx, session.ID, []uuid.UUID{b, a}))

	progress, err := s.RecordReview(ctx, newReview(session, a), newProgress(userID, a, domain.CardStateReview, testNow.AddDate(0, 0, 6)))
	require.NoError(t, err)
	assert.Equal(t, domain.SessionProgress{SubmittedCount: 1}, progress)

	got, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentIndex, "cursor moves past the rated position")
	assert.Equal(t, domain.SessionStatusActive, got.Status)

	stored, ok := s.Progress(userID, a)
	require.True(t, ok)
	assert.Equal(t, domain.CardStateReview, stored.State)

	t.Run("duplicate", func(t *testing.T) {
		_, err := s.RecordReview(ctx, newReview(session, a), newProgress(userID, a, domain.CardStateReview, testNow))
		assert.ErrorIs(t, err, store.ErrReviewExists)
		assert.ErrorIs(t, err, store.ErrDuplicate)
	})

	t.Run("foreign user", func(t *testing.T) {
		r := newReview(session, b)
		r.UserID = uuid.New()
		_, err := s.RecordReview(ctx, r, newProgress(r.UserID, b, domain.CardStateReview, testNow))
		assert.ErrorIs(t, err, store.ErrUnauthorized)
	})

	t.Run("unknown session", func(t *testing.T) {
		r := newReview(session, b)
		r.SessionID = uuid.New()
		_, err := s.RecordReview(ctx, r, newProgress(userID, b, domain.CardStateReview, testNow))
		assert.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("card outside session", func(t *testing.T) {
		other := uuid.New()
		_, err := s.RecordReview(ctx, newReview(session, other), newProgress(userID, other, domain.CardStateReview, testNow))
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})

	t.Run("invalid review", func(t *testing.T) {
		r := newReview(session, b)
		r.Rating = 7
		_, err := s.RecordReview(ctx, r, newProgress(userID, b, domain.CardStateReview, testNow))
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	progress, err = s.RecordReview(ctx, newReview(session, b), newProgress(userID, b, domain.CardStateLearning, testNow.AddDate(0, 0, 1)))
	require.NoError(t, err)
	assert.Equal(t, domain.SessionProgress{SubmittedCount: 2, Completed: true}, progress)

	got, err = s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusComplete, got.Status)

	reviews, err := s.ListSessionReviews(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.Equal(t, a, reviews[0].CardID)
	assert.Equal(t, b, reviews[1].CardID)

	_, err = s.ListSessionReviews(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestCountReviewsSince(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()
	userID := uuid.New()
	a, b := uuid.New(), uuid.New()
	session := newSession(t, s, userID, a, b)
	require.NoError(t, s.FinalizeSessionOrder(ctx, session.ID, []uuid.UUID{a, b}))

	_, err := s.RecordReview(ctx, newReview(session, a), newProgress(userID, a, domain.CardStateReview, testNow))
	require.NoError(t, err)
	yesterday := newReview(session, b)
	yesterday.ReviewedAt = testNow.Add(-24 * time.Hour)
	yesterday.StateBefore = domain.CardStateLearning
	_, err = s.RecordReview(ctx, yesterday, newProgress(userID, b, domain.CardStateReview, testNow))
	require.NoError(t, err)

	dayStart := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	counts, err := s.CountReviewsSince(ctx, userID, dayStart)
	require.NoError(t, err)
	assert.Equal(t, store.DailyCounts{Reviews: 1, NewCards: 1}, counts)

	counts, err = s.CountReviewsSince(ctx, userID, dayStart.Add(-48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, store.DailyCounts{Reviews: 2, NewCards: 1}, counts)

	counts, err = s.CountReviewsSince(ctx, uuid.New(), dayStart)
	require.NoError(t, err)
	assert.Equal(t, store.DailyCounts{}, counts)
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()
	userID := uuid.New()
	s.AddUser(userID, domain.TierFree)

	ids := make([]uuid.UUID, 20)
	for i := range ids {
		ids[i] = uuid.New()
		s.AddCard(ids[i], uuid.Nil)
	}
	session := newSession(t, s, userID, ids...)
	require.NoError(t, s.FinalizeSessionOrder(ctx, session.ID, ids))

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(cardID uuid.UUID) {
			defer wg.Done()
			_, err := s.RecordReview(ctx, newReview(session, cardID), newProgress(userID, cardID, domain.CardStateReview, testNow))
			assert.NoError(t, err)
			_, err = s.GetNewCards(ctx, userID, domain.Filter{}, 5)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	got, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, got.SubmittedCount)
	assert.Equal(t, domain.SessionStatusComplete, got.Status)
}
