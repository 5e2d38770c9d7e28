package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"

	"github.com/blinkdate/match-server-go/internal/model"
	"github.com/blinkdate/match-server-go/internal/repository"
)

type stubMatchingSessionRepo struct {
	completeStaleCount int64
	completeStaleRuns  atomic.Int32
}

func (m *stubMatchingSessionRepo) FindByToken(ctx context.Context, token string) (*model.MatchingSession, error) {
	return nil, nil
}

func (m *stubMatchingSessionRepo) FindActiveByToken(ctx context.Context, token string) (*model.MatchingSession, error) {
	return nil, nil
}

func (m *stubMatchingSessionRepo) FindActiveByUserID(ctx context.Context, userID int64) (*model.MatchingSession, error) {
	return nil, nil
}

func (m *stubMatchingSessionRepo) Create(ctx context.Context, params model.CreateMatchingSessionParams) (*model.MatchingSession, error) {
	return nil, nil
}

func (m *stubMatchingSessionRepo) CompleteActiveForUser(ctx context.Context, userID int64) (int64, error) {
	return 0, nil
}

func (m *stubMatchingSessionRepo) Complete(ctx context.Context, id int64) error { return nil }

func (m *stubMatchingSessionRepo) Touch(ctx context.Context, id int64) error { return nil }

func (m *stubMatchingSessionRepo) SetCurrentCall(ctx context.Context, id int64, callID *string) error {
	return nil
}

func (m *stubMatchingSessionRepo) IncrementMatchesMade(ctx context.Context, id int64) error {
	return nil
}

func (m *stubMatchingSessionRepo) IncrementSuccessfulMatches(ctx context.Context, id int64) error {
	return nil
}

func (m *stubMatchingSessionRepo) AddExclusion(ctx context.Context, id int64, excludeUserID int64) error {
	return nil
}

func (m *stubMatchingSessionRepo) AddExclusionForUser(ctx context.Context, ownerUserID, excludeUserID int64) (int64, error) {
	return 0, nil
}

func (m *stubMatchingSessionRepo) CompleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	m.completeStaleRuns.Add(1)
	return m.completeStaleCount, nil
}

func (m *stubMatchingSessionRepo) WithTx(tx *sqlx.Tx) repository.MatchingSessionRepository {
	return m
}

type stubVideoSessionRepo struct {
	cancelExpiredRuns atomic.Int32
	sweepRuns         atomic.Int32
}

func (m *stubVideoSessionRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.VideoSession, error) {
	return nil, nil
}

func (m *stubVideoSessionRepo) Create(ctx context.Context, params model.CreateVideoSessionParams) (*model.VideoSession, error) {
	return nil, nil
}

func (m *stubVideoSessionRepo) Start(ctx context.Context, sessionID string) (*model.VideoSession, error) {
	return nil, nil
}

func (m *stubVideoSessionRepo) Complete(ctx context.Context, sessionID string) (*model.VideoSession, error) {
	return nil, nil
}

func (m *stubVideoSessionRepo) Cancel(ctx context.Context, sessionID string) error { return nil }

func (m *stubVideoSessionRepo) CancelByCallSessionID(ctx context.Context, callSessionID string) error {
	return nil
}

func (m *stubVideoSessionRepo) FindOpenByMatchID(ctx context.Context, matchID int64) (*model.VideoSession, error) {
	return nil, nil
}

func (m *stubVideoSessionRepo) FindOpenByCallSessionID(ctx context.Context, callSessionID string) (*model.VideoSession, error) {
	return nil, nil
}

func (m *stubVideoSessionRepo) FindByMatchID(ctx context.Context, matchID int64) ([]model.VideoSession, error) {
	return nil, nil
}

func (m *stubVideoSessionRepo) PruneCompletedForMatch(ctx context.Context, matchID int64, keep int) (int64, error) {
	return 0, nil
}

func (m *stubVideoSessionRepo) DeleteCompletedBeyondPerMatch(ctx context.Context, keep int) (int64, error) {
	m.sweepRuns.Add(1)
	return 0, nil
}

func (m *stubVideoSessionRepo) CancelExpired(ctx context.Context, waitingCutoff time.Time) ([]string, error) {
	m.cancelExpiredRuns.Add(1)
	return nil, nil
}

func (m *stubVideoSessionRepo) WithTx(tx *sqlx.Tx) repository.VideoSessionRepository {
	return m
}

func TestCleanupJob(t *testing.T) {
	t.Run("creates job with correct interval", func(t *testing.T) {
		job := NewCleanupJob(nil, nil, nil, 5*time.Minute)

		assert.NotNil(t, job)
		assert.Equal(t, 5*time.Minute, job.interval)
	})

	t.Run("runs all sweeps on start and stops cleanly", func(t *testing.T) {
		sessionRepo := &stubMatchingSessionRepo{completeStaleCount: 2}
		videoRepo := &stubVideoSessionRepo{}

		job := NewCleanupJob(sessionRepo, videoRepo, nil, 1*time.Hour)

		job.Start()
		time.Sleep(20 * time.Millisecond)
		job.Stop()

		assert.GreaterOrEqual(t, sessionRepo.completeStaleRuns.Load(), int32(1))
		assert.GreaterOrEqual(t, videoRepo.cancelExpiredRuns.Load(), int32(1))
		assert.GreaterOrEqual(t, videoRepo.sweepRuns.Load(), int32(1))
	})
}
