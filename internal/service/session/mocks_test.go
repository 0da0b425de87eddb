package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/smibbs/sparep/internal/domain"
	"github.com/smibbs/sparep/internal/store"
	"github.com/stretchr/testify/mock"
)

// MockSessionStore is a mock of store.SessionStore for use with testify/mock
type MockSessionStore struct {
	mock.Mock
}

var _ store.SessionStore = (*MockSessionStore)(nil)

// GetUserTier is a mock implementation of store.SessionStore.GetUserTier
func (m *MockSessionStore) GetUserTier(ctx context.Context, userID uuid.UUID) (domain.Tier, error) {
	args := m.Called(ctx, userID)
	if tier, ok := args.Get(0).(domain.Tier); ok {
		return tier, args.Error(1)
	}
	return "", args.Error(1)
}

// CountReviewsSince is a mock implementation of store.SessionStore.CountReviewsSince
func (m *MockSessionStore) CountReviewsSince(
	ctx context.Context,
	userID uuid.UUID,
	since time.Time,
) (store.DailyCounts, error) {
	args := m.Called(ctx, userID, since)
	if counts, ok := args.Get(0).(store.DailyCounts); ok {
		return counts, args.Error(1)
	}
	return store.DailyCounts{}, args.Error(1)
}

// FindOpenSession is a mock implementation of store.SessionStore.FindOpenSession
func (m *MockSessionStore) FindOpenSession(
	ctx context.Context,
	userID uuid.UUID,
	day, filterKey string,
) (*domain.Session, error) {
	args := m.Called(ctx, userID, day, filterKey)
	if session, ok := args.Get(0).(*domain.Session); ok {
		return session, args.Error(1)
	}
	return nil, args.Error(1)
}

// CreateSession is a mock implementation of store.SessionStore.CreateSession
func (m *MockSessionStore) CreateSession(ctx context.Context, session *domain.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

// GetSession is a mock implementation of store.SessionStore.GetSession
func (m *MockSessionStore) GetSession(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	args := m.Called(ctx, sessionID)
	if load, ok := args.Get(0).(func(uuid.UUID) *domain.Session); ok {
		return load(sessionID), args.Error(1)
	}
	if session, ok := args.Get(0).(*domain.Session); ok {
		return session, args.Error(1)
	}
	return nil, args.Error(1)
}

// GetDueCards is a mock implementation of store.SessionStore.GetDueCards
func (m *MockSessionStore) GetDueCards(
	ctx context.Context,
	userID uuid.UUID,
	filter domain.Filter,
	now time.Time,
	limit int,
) ([]*domain.CardProgress, error) {
	args := m.Called(ctx, userID, filter, now, limit)
	if cards, ok := args.Get(0).([]*domain.CardProgress); ok {
		return cards, args.Error(1)
	}
	return nil, args.Error(1)
}

// GetNewCards is a mock implementation of store.SessionStore.GetNewCards
func (m *MockSessionStore) GetNewCards(
	ctx context.Context,
	userID uuid.UUID,
	filter domain.Filter,
	limit int,
) ([]uuid.UUID, error) {
	args := m.Called(ctx, userID, filter, limit)
	if ids, ok := args.Get(0).([]uuid.UUID); ok {
		return ids, args.Error(1)
	}
	return nil, args.Error(1)
}

// FinalizeSessionOrder is a mock implementation of store.SessionStore.FinalizeSessionOrder
func (m *MockSessionStore) FinalizeSessionOrder(ctx context.Context, sessionID uuid.UUID, orderedCardIDs []uuid.UUID) error {
	args := m.Called(ctx, sessionID, orderedCardIDs)
	return args.Error(0)
}

// RecordReview is a mock implementation of store.SessionStore.RecordReview
func (m *MockSessionStore) RecordReview(
	ctx context.Context,
	review *domain.Review,
	progress *domain.CardProgress,
) (domain.SessionProgress, error) {
	args := m.Called(ctx, review, progress)
	if sp, ok := args.Get(0).(domain.SessionProgress); ok {
		return sp, args.Error(1)
	}
	return domain.SessionProgress{}, args.Error(1)
}

// ListSessionReviews is a mock implementation of store.SessionStore.ListSessionReviews
func (m *MockSessionStore) ListSessionReviews(ctx context.Context, sessionID uuid.UUID) ([]*domain.Review, error) {
	args := m.Called(ctx, sessionID)
	if reviews, ok := args.Get(0).([]*domain.Review); ok {
		return reviews, args.Error(1)
	}
	return nil, args.Error(1)
}

// expectCreateAndReload makes CreateSession succeed and the next GetSession
// return the created session, activated, in the order it was created with.
func expectCreateAndReload(repo *MockSessionStore) {
	var created *domain.Session
	repo.On("CreateSession", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(*domain.Session).Clone()
		}).
		Return(nil)
	repo.On("GetSession", mock.Anything, mock.Anything).
		Return(func(uuid.UUID) *domain.Session {
			s := created.Clone()
			s.Status = domain.SessionStatusActive
			return s
		}, nil).Once()
}
