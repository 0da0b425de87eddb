//go:build integration

package testdb

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smibbs/sparep/internal/domain"
	"github.com/stretchr/testify/require"
)

// SeedUser inserts a user of the given tier and returns its id.
func SeedUser(t *testing.T, db *sql.DB, tier domain.Tier) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := db.ExecContext(context.Background(),
		`INSERT INTO users (id, tier) VALUES ($1, $2)`, id, string(tier))
	require.NoError(t, err, "failed to seed user")
	return id
}

// SeedCards inserts n cards into deckID, one second apart starting at
// createdAt, and returns their ids in creation order.
func SeedCards(t *testing.T, db *sql.DB, deckID uuid.UUID, n int, createdAt time.Time) []uuid.UUID {
	t.Helper()

	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
		_, err := db.ExecContext(context.Background(),
			`INSERT INTO cards (id, deck_id, created_at) VALUES ($1, $2, $3)`,
			ids[i], deckID, createdAt.Add(time.Duration(i)*time.Second))
		require.NoError(t, err, "failed to seed card")
	}
	return ids
}

// SeedProgress inserts an existing progress record.
func SeedProgress(t *testing.T, db *sql.DB, p *domain.CardProgress) {
	t.Helper()

	var last sql.NullTime
	if p.LastReviewedAt != nil {
		last = sql.NullTime{Time: *p.LastReviewedAt, Valid: true}
	}
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO card_progress (user_id, card_id, stability, difficulty, state, due_at,
			last_reviewed_at, reps, lapses, total_reviews, correct_reviews, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		p.UserID, p.CardID, p.Stability, p.Difficulty, string(p.State), p.DueAt, last,
		p.Reps, p.Lapses, p.TotalReviews, p.CorrectReviews, p.CreatedAt, p.UpdatedAt,
	)
	require.NoError(t, err, "failed to seed card progress")
}
