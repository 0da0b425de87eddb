package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/smibbs/sparep/internal/domain"
	"github.com/smibbs/sparep/internal/platform/logger"
	"github.com/smibbs/sparep/internal/redact"
	"github.com/smibbs/sparep/internal/store"
)

// DB is the connection a PostgresSessionStore needs: plain queries plus the
// ability to open transactions. *sql.DB satisfies it.
type DB interface {
	store.DBTX
	store.TxBeginner
}

// PostgresSessionStore implements the store.SessionStore interface
// using a PostgreSQL database as the storage backend.
type PostgresSessionStore struct {
	db     DB
	logger *slog.Logger
}

// NewPostgresSessionStore creates a new PostgreSQL implementation of the SessionStore interface.
// It accepts a database connection that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresSessionStore(db DB, logger *slog.Logger) *PostgresSessionStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresSessionStore{
		db:     db,
		logger: logger.With(slog.String("component", "session_store")),
	}
}

// Ensure PostgresSessionStore implements store.SessionStore interface
var _ store.SessionStore = (*PostgresSessionStore)(nil)

const sessionColumns = `id, user_id, day, filter_deck_id, filter_max_cards, total_cards,
		current_index, submitted_count, status, seed, created_at, updated_at`

const progressColumns = `p.user_id, p.card_id, p.stability, p.difficulty, p.state, p.due_at,
		p.last_reviewed_at, p.reps, p.lapses, p.total_reviews, p.correct_reviews,
		p.created_at, p.updated_at`

const reviewColumns = `id, session_id, card_id, user_id, rating, response_time_ms,
		stability_before, stability_after, difficulty_before, difficulty_after,
		state_before, state_after, elapsed_days, scheduled_days, reviewed_at`

// GetUserTier implements store.SessionStore.GetUserTier
func (s *PostgresSessionStore) GetUserTier(ctx context.Context, userID uuid.UUID) (domain.Tier, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var tier string
	err := s.db.QueryRowContext(ctx, `SELECT tier FROM users WHERE id = $1`, userID).Scan(&tier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("user not found", slog.String("user_id", userID.String()))
			return "", store.ErrUserNotFound
		}
		log.Error("failed to get user tier",
			slog.String("error", redact.Error(err)),
			slog.String("user_id", userID.String()))
		return "", wrapError("get user tier", err)
	}
	return domain.Tier(tier), nil
}

// CountReviewsSince implements store.SessionStore.CountReviewsSince
func (s *PostgresSessionStore) CountReviewsSince(
	ctx context.Context,
	userID uuid.UUID,
	since time.Time,
) (store.DailyCounts, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE state_before = 'new')
		FROM reviews
		WHERE user_id = $1 AND reviewed_at >= $2
	`

	var counts store.DailyCounts
	err := s.db.QueryRowContext(ctx, query, userID, since).Scan(&counts.Reviews, &counts.NewCards)
	if err != nil {
		log.Error("failed to count reviews",
			slog.String("error", redact.Error(err)),
			slog.String("user_id", userID.String()))
		return store.DailyCounts{}, wrapError("count reviews", err)
	}
	return counts, nil
}

// FindOpenSession implements store.SessionStore.FindOpenSession
func (s *PostgresSessionStore) FindOpenSession(
	ctx context.Context,
	userID uuid.UUID,
	day, filterKey string,
) (*domain.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1 AND day = $2 AND filter_key = $3 AND status <> 'complete'
		ORDER BY created_at DESC
		LIMIT 1
	`
	return s.loadSession(ctx, s.db, query, userID, day, filterKey)
}

// GetSession implements store.SessionStore.GetSession
func (s *PostgresSessionStore) GetSession(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return s.loadSession(ctx, s.db, query, sessionID)
}

// loadSession reads one session row and its ordered cards.
func (s *PostgresSessionStore) loadSession(
	ctx context.Context,
	db store.DBTX,
	query string,
	args ...any,
) (*domain.Session, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var session domain.Session
	var deckID uuid.NullUUID
	var status string
	err := db.QueryRowContext(ctx, query, args...).Scan(
		&session.ID,
		&session.UserID,
		&session.Day,
		&deckID,
		&session.Filter.MaxCards,
		&session.TotalCards,
		&session.CurrentIndex,
		&session.SubmittedCount,
		&status,
		&session.Seed,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		log.Error("failed to load session", slog.String("error", redact.Error(err)))
		return nil, wrapError("load session", err)
	}
	session.Status = domain.SessionStatus(status)
	if deckID.Valid {
		session.Filter.DeckID = deckID.UUID
	}

	rows, err := db.QueryContext(ctx, `
		SELECT card_id, snapshot
		FROM session_cards
		WHERE session_id = $1
		ORDER BY position
	`, session.ID)
	if err != nil {
		log.Error("failed to query session cards",
			slog.String("error", redact.Error(err)),
			slog.String("session_id", session.ID.String()))
		return nil, wrapError("load session cards", err)
	}
	defer func() { _ = rows.Close() }()

	session.Cards = make([]domain.SessionCard, 0, session.TotalCards)
	for rows.Next() {
		var card domain.SessionCard
		var snapshot []byte
		if err := rows.Scan(&card.CardID, &snapshot); err != nil {
			return nil, fmt.Errorf("failed to scan session card: %w", err)
		}
		card.Progress = &domain.CardProgress{}
		if err := json.Unmarshal(snapshot, card.Progress); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot of card %s: %w", card.CardID, err)
		}
		session.Cards = append(session.Cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("load session cards", err)
	}

	return &session, nil
}

// CreateSession implements store.SessionStore.CreateSession
// A second open session for the same user, day and filter is rejected with
// store.ErrDuplicate.
func (s *PostgresSessionStore) CreateSession(ctx context.Context, session *domain.Session) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := session.Validate(); err != nil {
		log.Warn("session validation failed during create",
			slog.String("error", redact.Error(err)),
			slog.String("session_id", session.ID.String()))
		return err
	}

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, user_id, day, filter_key, filter_deck_id, filter_max_cards,
				total_cards, current_index, submitted_count, status, seed, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`,
			session.ID,
			session.UserID,
			session.Day,
			session.Filter.Key(),
			deckFilter(session.Filter),
			session.Filter.MaxCards,
			session.TotalCards,
			session.CurrentIndex,
			session.SubmittedCount,
			string(session.Status),
			session.Seed,
			session.CreatedAt,
			session.UpdatedAt,
		)
		if err != nil {
			if IsUniqueViolation(err) {
				return MapUniqueViolation(err, "open session", "", nil)
			}
			return wrapError("insert session", err)
		}

		for i, card := range session.Cards {
			snapshot, err := json.Marshal(card.Progress)
			if err != nil {
				return fmt.Errorf("failed to encode snapshot of card %s: %w", card.CardID, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO session_cards (session_id, position, card_id, snapshot)
				VALUES ($1, $2, $3, $4)
			`, session.ID, i, card.CardID, snapshot)
			if err != nil {
				return wrapError("insert session card", err)
			}
		}
		return nil
	})
	if err != nil {
		log.Error("failed to create session",
			slog.String("error", redact.Error(err)),
			slog.String("session_id", session.ID.String()))
		return store.NewStoreError("session", "create", "failed to create session", err)
	}

	log.Debug("session created",
		slog.String("session_id", session.ID.String()),
		slog.Int("total_cards", session.TotalCards))
	return nil
}

// GetDueCards implements store.SessionStore.GetDueCards
func (s *PostgresSessionStore) GetDueCards(
	ctx context.Context,
	userID uuid.UUID,
	filter domain.Filter,
	now time.Time,
	limit int,
) ([]*domain.CardProgress, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + progressColumns + `
		FROM card_progress p
		JOIN cards c ON c.id = p.card_id
		WHERE p.user_id = $1
			AND p.state NOT IN ('buried', 'suspended')
			AND p.due_at <= $2
			AND ($3::uuid IS NULL OR c.deck_id = $3)
		ORDER BY p.due_at, p.card_id
		LIMIT $4
	`

	rows, err := s.db.QueryContext(ctx, query, userID, now, deckFilter(filter), max(0, limit))
	if err != nil {
		log.Error("failed to query due cards",
			slog.String("error", redact.Error(err)),
			slog.String("user_id", userID.String()))
		return nil, wrapError("get due cards", err)
	}
	defer func() { _ = rows.Close() }()

	due := make([]*domain.CardProgress, 0, max(0, limit))
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("get due cards", err)
	}
	return due, nil
}

// GetNewCards implements store.SessionStore.GetNewCards
func (s *PostgresSessionStore) GetNewCards(
	ctx context.Context,
	userID uuid.UUID,
	filter domain.Filter,
	limit int,
) ([]uuid.UUID, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT c.id
		FROM cards c
		WHERE ($2::uuid IS NULL OR c.deck_id = $2)
			AND NOT EXISTS (
				SELECT 1 FROM card_progress p WHERE p.user_id = $1 AND p.card_id = c.id
			)
		ORDER BY c.created_at, c.id
		LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, userID, deckFilter(filter), max(0, limit))
	if err != nil {
		log.Error("failed to query new cards",
			slog.String("error", redact.Error(err)),
			slog.String("user_id", userID.String()))
		return nil, wrapError("get new cards", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make([]uuid.UUID, 0, max(0, limit))
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan card id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("get new cards", err)
	}
	return ids, nil
}

// FinalizeSessionOrder implements store.SessionStore.FinalizeSessionOrder
func (s *PostgresSessionStore) FinalizeSessionOrder(
	ctx context.Context,
	sessionID uuid.UUID,
	orderedCardIDs []uuid.UUID,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("session_id", sessionID.String()))

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		var status string
		var total int
		err := tx.QueryRowContext(ctx,
			`SELECT status, total_cards FROM sessions WHERE id = $1 FOR UPDATE`, sessionID,
		).Scan(&status, &total)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrSessionNotFound
			}
			return wrapError("lock session", err)
		}
		if domain.SessionStatus(status) != domain.SessionStatusCreated {
			return nil
		}

		if err := checkPermutation(ctx, tx, sessionID, orderedCardIDs); err != nil {
			return err
		}

		// Move every row out of the way first so the position key never collides.
		if _, err := tx.ExecContext(ctx,
			`UPDATE session_cards SET position = position + $2 WHERE session_id = $1`,
			sessionID, total,
		); err != nil {
			return wrapError("reorder session cards", err)
		}
		for i, cardID := range orderedCardIDs {
			result, err := tx.ExecContext(ctx,
				`UPDATE session_cards SET position = $3 WHERE session_id = $1 AND card_id = $2`,
				sessionID, cardID, i,
			)
			if err != nil {
				return wrapError("reorder session cards", err)
			}
			if err := CheckRowsAffected(result, "session card"); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE sessions SET status = $2, updated_at = NOW() WHERE id = $1`,
			sessionID, string(domain.SessionStatusActive),
		)
		return wrapError("activate session", err)
	})
	if err != nil {
		log.Error("failed to finalize session order", slog.String("error", redact.Error(err)))
		return store.NewStoreError("session", "finalize_order", "failed to finalize session order", err)
	}

	log.Debug("session order finalized")
	return nil
}

// checkPermutation verifies that ordered holds every card of the session exactly once.
func checkPermutation(ctx context.Context, tx *sql.Tx, sessionID uuid.UUID, ordered []uuid.UUID) error {
	rows, err := tx.QueryContext(ctx, `SELECT card_id FROM session_cards WHERE session_id = $1`, sessionID)
	if err != nil {
		return wrapError("load session cards", err)
	}
	defer func() { _ = rows.Close() }()

	remaining := make(map[uuid.UUID]struct{})
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan card id: %w", err)
		}
		remaining[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return wrapError("load session cards", err)
	}

	if len(ordered) != len(remaining) {
		return fmt.Errorf("%w: order has %d cards, session has %d",
			store.ErrInvalidEntity, len(ordered), len(remaining))
	}
	for _, id := range ordered {
		if _, ok := remaining[id]; !ok {
			return fmt.Errorf("%w: card %s is not part of session or repeated", store.ErrInvalidEntity, id)
		}
		delete(remaining, id)
	}
	return nil
}

// RecordReview implements store.SessionStore.RecordReview
// The review insert, the progress upsert and the session counters are
// committed together or not at all.
func (s *PostgresSessionStore) RecordReview(
	ctx context.Context,
	review *domain.Review,
	progress *domain.CardProgress,
) (domain.SessionProgress, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("session_id", review.SessionID.String()),
		slog.String("card_id", review.CardID.String()),
	)

	if err := review.Validate(); err != nil {
		log.Warn("review validation failed", slog.String("error", redact.Error(err)))
		return domain.SessionProgress{}, err
	}
	if err := progress.Validate(); err != nil {
		log.Warn("progress validation failed", slog.String("error", redact.Error(err)))
		return domain.SessionProgress{}, err
	}

	var result domain.SessionProgress
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		var (
			owner            uuid.UUID
			total, submitted int
			currentIndex     int
			status           string
		)
		err := tx.QueryRowContext(ctx, `
			SELECT user_id, total_cards, submitted_count, current_index, status
			FROM sessions
			WHERE id = $1
			FOR UPDATE
		`, review.SessionID).Scan(&owner, &total, &submitted, &currentIndex, &status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrSessionNotFound
			}
			return wrapError("lock session", err)
		}
		if owner != review.UserID || progress.UserID != review.UserID {
			return store.ErrUnauthorized
		}

		var position int
		err = tx.QueryRowContext(ctx,
			`SELECT position FROM session_cards WHERE session_id = $1 AND card_id = $2`,
			review.SessionID, review.CardID,
		).Scan(&position)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: card %s is not part of session %s",
					store.ErrInvalidEntity, review.CardID, review.SessionID)
			}
			return wrapError("find session card", err)
		}

		inserted, err := tx.ExecContext(ctx, `
			INSERT INTO reviews (`+reviewColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (session_id, card_id) DO NOTHING
		`,
			review.ID,
			review.SessionID,
			review.CardID,
			review.UserID,
			int(review.Rating),
			review.ResponseTimeMs,
			review.StabilityBefore,
			review.StabilityAfter,
			review.DifficultyBefore,
			review.DifficultyAfter,
			string(review.StateBefore),
			string(review.StateAfter),
			review.ElapsedDays,
			review.ScheduledDays,
			review.ReviewedAt,
		)
		if err != nil {
			return wrapError("insert review", err)
		}
		if n, err := inserted.RowsAffected(); err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		} else if n == 0 {
			return store.ErrReviewExists
		}

		if err := upsertProgress(ctx, tx, progress); err != nil {
			return err
		}

		submitted++
		currentIndex = max(currentIndex, position+1)
		if submitted >= total {
			status = string(domain.SessionStatusComplete)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE sessions
			SET submitted_count = $2, current_index = $3, status = $4, updated_at = $5
			WHERE id = $1
		`, review.SessionID, submitted, currentIndex, status, review.ReviewedAt)
		if err != nil {
			return wrapError("update session progress", err)
		}

		result = domain.SessionProgress{SubmittedCount: submitted, Completed: submitted >= total}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrReviewExists) {
			log.Info("review already recorded")
		} else {
			log.Error("failed to record review", slog.String("error", redact.Error(err)))
		}
		return domain.SessionProgress{}, store.NewStoreError("review", "record", "failed to record review", err)
	}

	log.Debug("review recorded", slog.Int("submitted_count", result.SubmittedCount))
	return result, nil
}

func upsertProgress(ctx context.Context, tx *sql.Tx, p *domain.CardProgress) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO card_progress (user_id, card_id, stability, difficulty, state, due_at,
			last_reviewed_at, reps, lapses, total_reviews, correct_reviews, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id, card_id) DO UPDATE SET
			stability = EXCLUDED.stability,
			difficulty = EXCLUDED.difficulty,
			state = EXCLUDED.state,
			due_at = EXCLUDED.due_at,
			last_reviewed_at = EXCLUDED.last_reviewed_at,
			reps = EXCLUDED.reps,
			lapses = EXCLUDED.lapses,
			total_reviews = EXCLUDED.total_reviews,
			correct_reviews = EXCLUDED.correct_reviews,
			updated_at = EXCLUDED.updated_at
	`,
		p.UserID,
		p.CardID,
		p.Stability,
		p.Difficulty,
		string(p.State),
		p.DueAt,
		nullTime(p.LastReviewedAt),
		p.Reps,
		p.Lapses,
		p.TotalReviews,
		p.CorrectReviews,
		p.CreatedAt,
		p.UpdatedAt,
	)
	return wrapError("upsert card progress", err)
}

// ListSessionReviews implements store.SessionStore.ListSessionReviews
func (s *PostgresSessionStore) ListSessionReviews(ctx context.Context, sessionID uuid.UUID) ([]*domain.Review, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, sessionID).Scan(&exists)
	if err != nil {
		return nil, wrapError("check session", err)
	}
	if !exists {
		return nil, store.ErrSessionNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reviewColumns+`
		FROM reviews
		WHERE session_id = $1
		ORDER BY reviewed_at, id
	`, sessionID)
	if err != nil {
		log.Error("failed to query session reviews",
			slog.String("error", redact.Error(err)),
			slog.String("session_id", sessionID.String()))
		return nil, wrapError("list session reviews", err)
	}
	defer func() { _ = rows.Close() }()

	reviews := make([]*domain.Review, 0)
	for rows.Next() {
		var r domain.Review
		var rating int
		var stateBefore, stateAfter string
		if err := rows.Scan(
			&r.ID,
			&r.SessionID,
			&r.CardID,
			&r.UserID,
			&rating,
			&r.ResponseTimeMs,
			&r.StabilityBefore,
			&r.StabilityAfter,
			&r.DifficultyBefore,
			&r.DifficultyAfter,
			&stateBefore,
			&stateAfter,
			&r.ElapsedDays,
			&r.ScheduledDays,
			&r.ReviewedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		r.Rating = domain.Rating(rating)
		r.StateBefore = domain.CardState(stateBefore)
		r.StateAfter = domain.CardState(stateAfter)
		reviews = append(reviews, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("list session reviews", err)
	}
	return reviews, nil
}

func scanProgress(rows *sql.Rows) (*domain.CardProgress, error) {
	var p domain.CardProgress
	var state string
	var lastReviewed sql.NullTime
	if err := rows.Scan(
		&p.UserID,
		&p.CardID,
		&p.Stability,
		&p.Difficulty,
		&state,
		&p.DueAt,
		&lastReviewed,
		&p.Reps,
		&p.Lapses,
		&p.TotalReviews,
		&p.CorrectReviews,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan card progress: %w", err)
	}
	p.State = domain.CardState(state)
	if lastReviewed.Valid {
		t := lastReviewed.Time
		p.LastReviewedAt = &t
	}
	return &p, nil
}

func deckFilter(f domain.Filter) uuid.NullUUID {
	return uuid.NullUUID{UUID: f.DeckID, Valid: f.DeckID != uuid.Nil}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
