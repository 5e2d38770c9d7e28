package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/blinkdate/match-server-go/internal/database"
	"github.com/blinkdate/match-server-go/internal/model"
	"github.com/blinkdate/match-server-go/internal/repository"
)

// fakeTxRunner runs the closure directly; the repo mocks ignore the tx.
type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn database.TxFunc) error {
	return fn(nil)
}

// Mock user repository
type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockUserRepo) Touch(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockUserRepo) FindProfile(ctx context.Context, userID int64) (*model.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Profile), args.Error(1)
}

func (m *mockUserRepo) FindInterests(ctx context.Context, userID int64) ([]model.Interest, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Interest), args.Error(1)
}

func (m *mockUserRepo) FindCandidates(ctx context.Context, params repository.FindCandidatesParams) ([]model.User, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.User), args.Error(1)
}

func (m *mockUserRepo) FindRecentActive(ctx context.Context, params repository.FindRecentActiveParams) ([]model.User, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.User), args.Error(1)
}

func (m *mockUserRepo) CountActiveSince(ctx context.Context, since time.Time) (int, error) {
	args := m.Called(ctx, since)
	return args.Int(0), args.Error(1)
}

func (m *mockUserRepo) WithTx(tx *sqlx.Tx) repository.UserRepository {
	return m
}

// Mock matching session repository
type mockMatchingSessionRepo struct {
	mock.Mock
}

func (m *mockMatchingSessionRepo) FindByToken(ctx context.Context, token string) (*model.MatchingSession, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MatchingSession), args.Error(1)
}

func (m *mockMatchingSessionRepo) FindActiveByToken(ctx context.Context, token string) (*model.MatchingSession, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MatchingSession), args.Error(1)
}

func (m *mockMatchingSessionRepo) FindActiveByUserID(ctx context.Context, userID int64) (*model.MatchingSession, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MatchingSession), args.Error(1)
}

func (m *mockMatchingSessionRepo) Create(ctx context.Context, params model.CreateMatchingSessionParams) (*model.MatchingSession, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MatchingSession), args.Error(1)
}

func (m *mockMatchingSessionRepo) CompleteActiveForUser(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockMatchingSessionRepo) Complete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockMatchingSessionRepo) Touch(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockMatchingSessionRepo) SetCurrentCall(ctx context.Context, id int64, callID *string) error {
	args := m.Called(ctx, id, callID)
	return args.Error(0)
}

func (m *mockMatchingSessionRepo) IncrementMatchesMade(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockMatchingSessionRepo) IncrementSuccessfulMatches(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockMatchingSessionRepo) AddExclusion(ctx context.Context, id int64, excludeUserID int64) error {
	args := m.Called(ctx, id, excludeUserID)
	return args.Error(0)
}

func (m *mockMatchingSessionRepo) AddExclusionForUser(ctx context.Context, ownerUserID, excludeUserID int64) (int64, error) {
	args := m.Called(ctx, ownerUserID, excludeUserID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockMatchingSessionRepo) CompleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockMatchingSessionRepo) WithTx(tx *sqlx.Tx) repository.MatchingSessionRepository {
	return m
}

// Mock call session repository
type mockCallSessionRepo struct {
	mock.Mock
}

func (m *mockCallSessionRepo) FindByID(ctx context.Context, id string) (*model.CallSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CallSession), args.Error(1)
}

func (m *mockCallSessionRepo) FindOpenByPair(ctx context.Context, user1ID, user2ID int64, since time.Time) (*model.CallSession, error) {
	args := m.Called(ctx, user1ID, user2ID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CallSession), args.Error(1)
}

func (m *mockCallSessionRepo) FindInboundForUser(ctx context.Context, userID int64, since time.Time) (*model.CallSession, error) {
	args := m.Called(ctx, userID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CallSession), args.Error(1)
}

func (m *mockCallSessionRepo) Create(ctx context.Context, id string, user1ID, user2ID int64) (*model.CallSession, error) {
	args := m.Called(ctx, id, user1ID, user2ID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CallSession), args.Error(1)
}

func (m *mockCallSessionRepo) MarkStarted(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockCallSessionRepo) MarkEnded(ctx context.Context, id string, status model.CallStatus, callCompleted bool) error {
	args := m.Called(ctx, id, status, callCompleted)
	return args.Error(0)
}

func (m *mockCallSessionRepo) SetDecision(ctx context.Context, id string, userID int64, decision model.CallDecision) (*model.CallSession, error) {
	args := m.Called(ctx, id, userID, decision)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CallSession), args.Error(1)
}

func (m *mockCallSessionRepo) CancelOpenForUser(ctx context.Context, userID int64) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockCallSessionRepo) CancelStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockCallSessionRepo) WithTx(tx *sqlx.Tx) repository.CallSessionRepository {
	return m
}

// Mock video session repository
type mockVideoSessionRepo struct {
	mock.Mock
}

func (m *mockVideoSessionRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.VideoSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VideoSession), args.Error(1)
}

func (m *mockVideoSessionRepo) Create(ctx context.Context, params model.CreateVideoSessionParams) (*model.VideoSession, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VideoSession), args.Error(1)
}

func (m *mockVideoSessionRepo) Start(ctx context.Context, sessionID string) (*model.VideoSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VideoSession), args.Error(1)
}

func (m *mockVideoSessionRepo) Complete(ctx context.Context, sessionID string) (*model.VideoSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VideoSession), args.Error(1)
}

func (m *mockVideoSessionRepo) Cancel(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *mockVideoSessionRepo) CancelByCallSessionID(ctx context.Context, callSessionID string) error {
	args := m.Called(ctx, callSessionID)
	return args.Error(0)
}

func (m *mockVideoSessionRepo) FindOpenByMatchID(ctx context.Context, matchID int64) (*model.VideoSession, error) {
	args := m.Called(ctx, matchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VideoSession), args.Error(1)
}

func (m *mockVideoSessionRepo) FindOpenByCallSessionID(ctx context.Context, callSessionID string) (*model.VideoSession, error) {
	args := m.Called(ctx, callSessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VideoSession), args.Error(1)
}

func (m *mockVideoSessionRepo) FindByMatchID(ctx context.Context, matchID int64) ([]model.VideoSession, error) {
	args := m.Called(ctx, matchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.VideoSession), args.Error(1)
}

func (m *mockVideoSessionRepo) PruneCompletedForMatch(ctx context.Context, matchID int64, keep int) (int64, error) {
	args := m.Called(ctx, matchID, keep)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockVideoSessionRepo) DeleteCompletedBeyondPerMatch(ctx context.Context, keep int) (int64, error) {
	args := m.Called(ctx, keep)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockVideoSessionRepo) CancelExpired(ctx context.Context, waitingCutoff time.Time) ([]string, error) {
	args := m.Called(ctx, waitingCutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockVideoSessionRepo) WithTx(tx *sqlx.Tx) repository.VideoSessionRepository {
	return m
}

// Mock match repository
type mockMatchRepo struct {
	mock.Mock
}

func (m *mockMatchRepo) FindByID(ctx context.Context, id int64) (*model.Match, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Match), args.Error(1)
}

func (m *mockMatchRepo) Create(ctx context.Context, params model.CreateMatchParams) (*model.Match, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Match), args.Error(1)
}

func (m *mockMatchRepo) FindBetween(ctx context.Context, userA, userB int64) (*model.Match, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Match), args.Error(1)
}

func (m *mockMatchRepo) FindMutualByUserID(ctx context.Context, userID int64) ([]model.Match, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Match), args.Error(1)
}

func (m *mockMatchRepo) FindOpenByUserID(ctx context.Context, userID int64) ([]model.Match, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Match), args.Error(1)
}

func (m *mockMatchRepo) ExistingPartnerIDs(ctx context.Context, userID int64) ([]int64, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *mockMatchRepo) SetDecision(ctx context.Context, id int64, userID int64, decision model.CallDecision) (*model.Match, error) {
	args := m.Called(ctx, id, userID, decision)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Match), args.Error(1)
}

func (m *mockMatchRepo) UpdateStatus(ctx context.Context, id int64, status model.MatchStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *mockMatchRepo) SetVideoSessionID(ctx context.Context, id int64, sessionID string) error {
	args := m.Called(ctx, id, sessionID)
	return args.Error(0)
}

func (m *mockMatchRepo) MarkCallCompleted(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockMatchRepo) Unmatch(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockMatchRepo) WithTx(tx *sqlx.Tx) repository.MatchRepository {
	return m
}
