//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smibbs/sparep/internal/domain"
	"github.com/smibbs/sparep/internal/domain/srs"
	"github.com/smibbs/sparep/internal/platform/logger"
	"github.com/smibbs/sparep/internal/platform/postgres"
	"github.com/smibbs/sparep/internal/quota"
	"github.com/smibbs/sparep/internal/service/session"
	"github.com/smibbs/sparep/internal/store"
	"github.com/smibbs/sparep/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIntegrationManager(t *testing.T, s store.SessionStore, now time.Time) *session.Manager {
	t.Helper()

	policy, err := quota.NewPolicy(nil, nil)
	require.NoError(t, err)
	log, _ := logger.NewTestLogger(t)

	return session.NewManager(s, srs.NewDefaultService(), policy, session.Options{
		SessionSize:      20,
		ShuffleByDefault: true,
		Clock:            func() time.Time { return now },
		Logger:           log,
	})
}

func TestIntegration_SessionFlow(t *testing.T) {
	if testdb.ShouldSkipDatabaseTest() {
		t.Skip("DATABASE_URL not set - skipping integration test")
	}

	db := testdb.GetTestDBWithT(t)
	testdb.ResetTables(t, db)
	ctx := context.Background()

	// Postgres keeps microseconds.
	now := time.Now().UTC().Truncate(time.Millisecond)
	log, _ := logger.NewTestLogger(t)
	sessionStore := postgres.NewPostgresSessionStore(db, log)
	manager := newIntegrationManager(t, sessionStore, now)

	userID := testdb.SeedUser(t, db, domain.TierFree)
	deckID := uuid.New()
	cardIDs := testdb.SeedCards(t, db, deckID, 12, now.Add(-time.Hour))

	lc, err := manager.Initialize(ctx, userID, domain.Filter{DeckID: deckID})
	require.NoError(t, err)
	assert.Equal(t, 10, lc.Progress().Total, "free tier introduces at most 10 new cards")
	assert.Equal(t, cardIDs[:10], lc.Session().CardIDs())

	again, err := manager.Initialize(ctx, userID, domain.Filter{DeckID: deckID})
	require.NoError(t, err)
	assert.Equal(t, lc.ID(), again.ID(), "open session is resumed")

	require.NoError(t, lc.Finalize(ctx))
	stored, err := sessionStore.GetSession(ctx, lc.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusActive, stored.Status)
	assert.Equal(t, lc.Session().CardIDs(), stored.CardIDs())

	card, ok := lc.CurrentCard()
	require.True(t, ok)
	first, err := lc.RecordRating(ctx, domain.RatingGood, 3000)
	require.NoError(t, err)
	assert.Equal(t, card.CardID, first.Review.CardID)
	assert.Equal(t, domain.CardStateReview, first.Progress.State)

	replay, err := lc.RecordRating(ctx, domain.RatingAgain, 10)
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, domain.RatingGood, replay.Review.Rating)

	resumed, err := manager.Resume(ctx, lc.ID(), userID)
	require.NoError(t, err)
	assert.Equal(t, 1, resumed.Progress().Completed)

	for {
		if _, ok := resumed.CurrentCard(); !ok {
			break
		}
		_, err := resumed.RecordRating(ctx, domain.RatingHard, 1500)
		require.NoError(t, err)
	}
	assert.True(t, resumed.IsComplete())

	reviews, err := sessionStore.ListSessionReviews(ctx, lc.ID())
	require.NoError(t, err)
	assert.Len(t, reviews, 10)

	counts, err := sessionStore.CountReviewsSince(ctx, userID, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, store.DailyCounts{Reviews: 10, NewCards: 10}, counts)

	_, err = manager.Initialize(ctx, userID, domain.Filter{DeckID: deckID})
	assert.ErrorIs(t, err, domain.ErrNoCardsAvailable, "new-card cap is spent for the day")
}

func TestIntegration_RecordReviewIsIdempotent(t *testing.T) {
	if testdb.ShouldSkipDatabaseTest() {
		t.Skip("DATABASE_URL not set - skipping integration test")
	}

	db := testdb.GetTestDBWithT(t)
	testdb.ResetTables(t, db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	sessionStore := postgres.NewPostgresSessionStore(db, nil)
	manager := newIntegrationManager(t, sessionStore, now)

	userID := testdb.SeedUser(t, db, domain.TierPaid)
	testdb.SeedCards(t, db, uuid.New(), 2, now.Add(-time.Hour))

	lc, err := manager.Initialize(ctx, userID, domain.Filter{})
	require.NoError(t, err)
	require.NoError(t, lc.ShuffleAndFinalize(ctx, false))

	card, ok := lc.CurrentCard()
	require.True(t, ok)
	_, err = lc.RecordRating(ctx, domain.RatingEasy, 900)
	require.NoError(t, err)

	// A second process resuming the same session must not double count.
	other, err := manager.Resume(ctx, lc.ID(), userID)
	require.NoError(t, err)
	result, err := other.RecordRatingFor(ctx, card.CardID, domain.RatingAgain, 100)
	require.NoError(t, err)
	assert.True(t, result.Replayed)

	stored, err := sessionStore.GetSession(ctx, lc.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, stored.SubmittedCount)
}

func TestIntegration_MigrateDownAndUp(t *testing.T) {
	if testdb.ShouldSkipDatabaseTest() {
		t.Skip("DATABASE_URL not set - skipping integration test")
	}

	db := testdb.GetTestDBWithT(t)
	ctx := context.Background()

	require.NoError(t, postgres.Migrate(ctx, db, postgres.MigrateStatus, nil))
	require.NoError(t, postgres.Migrate(ctx, db, postgres.MigrateDown, nil))
	require.NoError(t, postgres.Migrate(ctx, db, postgres.MigrateUp, nil))
	assert.Error(t, postgres.Migrate(ctx, db, "sideways", nil))
}
