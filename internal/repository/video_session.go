package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/blinkdate/match-server-go/internal/model"
)

type VideoSessionRepository interface {
	FindBySessionID(ctx context.Context, sessionID string) (*model.VideoSession, error)
	Create(ctx context.Context, params model.CreateVideoSessionParams) (*model.VideoSession, error)
	// Start moves waiting -> active and stamps started_at. The WHERE guard
	// makes the transition (and the timestamp) fire exactly once; returns
	// nil if the session was not in waiting.
	Start(ctx context.Context, sessionID string) (*model.VideoSession, error)
	// Complete moves active -> completed. Idempotent: a second call finds
	// no active row and returns nil.
	Complete(ctx context.Context, sessionID string) (*model.VideoSession, error)
	// Cancel moves any non-terminal state -> cancelled.
	Cancel(ctx context.Context, sessionID string) error
	CancelByCallSessionID(ctx context.Context, callSessionID string) error
	FindOpenByMatchID(ctx context.Context, matchID int64) (*model.VideoSession, error)
	FindOpenByCallSessionID(ctx context.Context, callSessionID string) (*model.VideoSession, error)
	FindByMatchID(ctx context.Context, matchID int64) ([]model.VideoSession, error)
	// PruneCompletedForMatch deletes completed sessions beyond the keep
	// newest for one match.
	PruneCompletedForMatch(ctx context.Context, matchID int64, keep int) (int64, error)
	// DeleteCompletedBeyondPerMatch is the sweep variant across all matches.
	DeleteCompletedBeyondPerMatch(ctx context.Context, keep int) (int64, error)
	// CancelExpired cancels waiting sessions created before cutoff and
	// active sessions whose timer should have fired (covers restarts that
	// lost the in-process timer).
	CancelExpired(ctx context.Context, waitingCutoff time.Time) ([]string, error)
	WithTx(tx *sqlx.Tx) VideoSessionRepository
}

type videoSessionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type videoSessionRepo struct {
	db videoSessionDB
}

func NewVideoSessionRepository(db *sqlx.DB) VideoSessionRepository {
	return &videoSessionRepo{db: db}
}

func (r *videoSessionRepo) WithTx(tx *sqlx.Tx) VideoSessionRepository {
	return &videoSessionRepo{db: tx}
}

func (r *videoSessionRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.VideoSession, error) {
	var session model.VideoSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM video_sessions WHERE session_id = $1
	`, sessionID)
	return HandleNotFound(&session, err)
}

func (r *videoSessionRepo) Create(ctx context.Context, params model.CreateVideoSessionParams) (*model.VideoSession, error) {
	var session model.VideoSession
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO video_sessions (session_id, call_session_id, match_id, status, duration)
		VALUES ($1, $2, $3, 'waiting', $4)
		RETURNING *
	`, params.SessionID, params.CallSessionID, params.MatchID, params.Duration)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *videoSessionRepo) Start(ctx context.Context, sessionID string) (*model.VideoSession, error) {
	var session model.VideoSession
	err := r.db.GetContext(ctx, &session, `
		UPDATE video_sessions SET
			status = 'active',
			started_at = NOW()
		WHERE session_id = $1 AND status = 'waiting'
		RETURNING *
	`, sessionID)
	return HandleNotFound(&session, err)
}

func (r *videoSessionRepo) Complete(ctx context.Context, sessionID string) (*model.VideoSession, error) {
	var session model.VideoSession
	err := r.db.GetContext(ctx, &session, `
		UPDATE video_sessions SET
			status = 'completed',
			ended_at = NOW()
		WHERE session_id = $1 AND status = 'active'
		RETURNING *
	`, sessionID)
	return HandleNotFound(&session, err)
}

func (r *videoSessionRepo) Cancel(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE video_sessions SET
			status = 'cancelled',
			ended_at = NOW()
		WHERE session_id = $1 AND status IN ('waiting', 'active')
	`, sessionID)
	return err
}

func (r *videoSessionRepo) CancelByCallSessionID(ctx context.Context, callSessionID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE video_sessions SET
			status = 'cancelled',
			ended_at = NOW()
		WHERE call_session_id = $1 AND status IN ('waiting', 'active')
	`, callSessionID)
	return err
}

func (r *videoSessionRepo) FindOpenByMatchID(ctx context.Context, matchID int64) (*model.VideoSession, error) {
	var session model.VideoSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM video_sessions
		WHERE match_id = $1 AND status IN ('waiting', 'active')
		ORDER BY created_at DESC
		LIMIT 1
	`, matchID)
	return HandleNotFound(&session, err)
}

func (r *videoSessionRepo) FindOpenByCallSessionID(ctx context.Context, callSessionID string) (*model.VideoSession, error) {
	var session model.VideoSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM video_sessions
		WHERE call_session_id = $1 AND status IN ('waiting', 'active')
		ORDER BY created_at DESC
		LIMIT 1
	`, callSessionID)
	return HandleNotFound(&session, err)
}

func (r *videoSessionRepo) FindByMatchID(ctx context.Context, matchID int64) ([]model.VideoSession, error) {
	var sessions []model.VideoSession
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM video_sessions
		WHERE match_id = $1
		ORDER BY created_at DESC
	`, matchID)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *videoSessionRepo) PruneCompletedForMatch(ctx context.Context, matchID int64, keep int) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM video_sessions
		WHERE id IN (
			SELECT id FROM video_sessions
			WHERE match_id = $1 AND status = 'completed'
			ORDER BY created_at DESC
			OFFSET $2
		)
	`, matchID, keep)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *videoSessionRepo) DeleteCompletedBeyondPerMatch(ctx context.Context, keep int) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM video_sessions
		WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY match_id ORDER BY created_at DESC
				) AS rn
				FROM video_sessions
				WHERE match_id IS NOT NULL AND status = 'completed'
			) ranked
			WHERE ranked.rn > $1
		)
	`, keep)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *videoSessionRepo) CancelExpired(ctx context.Context, waitingCutoff time.Time) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		UPDATE video_sessions SET
			status = 'cancelled',
			ended_at = NOW()
		WHERE (status = 'waiting' AND created_at < $1)
		OR (status = 'active' AND started_at + duration * INTERVAL '1 second' < NOW() - INTERVAL '1 minute')
		RETURNING session_id
	`, waitingCutoff)
	if err != nil {
		return nil, err
	}
	return ids, nil
}
