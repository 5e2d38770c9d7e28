package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/blinkdate/match-server-go/internal/model"
)

type CallSessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.CallSession, error)
	// FindOpenByPair finds a reusable waiting/active session between the
	// canonical pair created after since. This is the duplicate-prevention
	// read that makes pair creation idempotent.
	FindOpenByPair(ctx context.Context, user1ID, user2ID int64, since time.Time) (*model.CallSession, error)
	// FindInboundForUser finds a waiting/active session the user is part
	// of, created after since. This is the "someone already paired with
	// me" check at the top of every poll.
	FindInboundForUser(ctx context.Context, userID int64, since time.Time) (*model.CallSession, error)
	// Create inserts the canonical pair row. A unique violation means the
	// counterpart won the creation race; callers recover by re-querying.
	Create(ctx context.Context, id string, user1ID, user2ID int64) (*model.CallSession, error)
	MarkStarted(ctx context.Context, id string) error
	// MarkEnded finalizes the session in the given terminal status.
	MarkEnded(ctx context.Context, id string, status model.CallStatus, callCompleted bool) error
	SetDecision(ctx context.Context, id string, userID int64, decision model.CallDecision) (*model.CallSession, error)
	// CancelOpenForUser cancels every waiting/active session the user is a
	// participant of. Returns the IDs that were cancelled so callers can
	// clean up the attached video sessions and mailboxes.
	CancelOpenForUser(ctx context.Context, userID int64) ([]string, error)
	// CancelStale cancels open sessions created before cutoff.
	CancelStale(ctx context.Context, cutoff time.Time) ([]string, error)
	WithTx(tx *sqlx.Tx) CallSessionRepository
}

type callSessionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type callSessionRepo struct {
	db callSessionDB
}

func NewCallSessionRepository(db *sqlx.DB) CallSessionRepository {
	return &callSessionRepo{db: db}
}

func (r *callSessionRepo) WithTx(tx *sqlx.Tx) CallSessionRepository {
	return &callSessionRepo{db: tx}
}

func (r *callSessionRepo) FindByID(ctx context.Context, id string) (*model.CallSession, error) {
	var session model.CallSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM call_sessions WHERE id = $1
	`, id)
	return HandleNotFound(&session, err)
}

func (r *callSessionRepo) FindOpenByPair(ctx context.Context, user1ID, user2ID int64, since time.Time) (*model.CallSession, error) {
	var session model.CallSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM call_sessions
		WHERE user1_id = $1 AND user2_id = $2
		AND status IN ('waiting', 'active')
		AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT 1
	`, user1ID, user2ID, since)
	return HandleNotFound(&session, err)
}

func (r *callSessionRepo) FindInboundForUser(ctx context.Context, userID int64, since time.Time) (*model.CallSession, error) {
	var session model.CallSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM call_sessions
		WHERE (user1_id = $1 OR user2_id = $1)
		AND status IN ('waiting', 'active')
		AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, since)
	return HandleNotFound(&session, err)
}

func (r *callSessionRepo) Create(ctx context.Context, id string, user1ID, user2ID int64) (*model.CallSession, error) {
	var session model.CallSession
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO call_sessions (id, user1_id, user2_id, status)
		VALUES ($1, $2, $3, 'waiting')
		RETURNING *
	`, id, user1ID, user2ID)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *callSessionRepo) MarkStarted(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE call_sessions SET
			status = 'active',
			started_at = NOW()
		WHERE id = $1 AND status = 'waiting'
	`, id)
	return err
}

func (r *callSessionRepo) MarkEnded(ctx context.Context, id string, status model.CallStatus, callCompleted bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE call_sessions SET
			status = $2,
			call_completed = $3,
			ended_at = NOW()
		WHERE id = $1 AND status IN ('waiting', 'active')
	`, id, status, callCompleted)
	return err
}

func (r *callSessionRepo) SetDecision(ctx context.Context, id string, userID int64, decision model.CallDecision) (*model.CallSession, error) {
	var session model.CallSession
	err := r.db.GetContext(ctx, &session, `
		UPDATE call_sessions SET
			user1_decision = CASE WHEN user1_id = $2 THEN $3 ELSE user1_decision END,
			user2_decision = CASE WHEN user2_id = $2 THEN $3 ELSE user2_decision END
		WHERE id = $1
		RETURNING *
	`, id, userID, decision)
	return HandleNotFound(&session, err)
}

func (r *callSessionRepo) CancelOpenForUser(ctx context.Context, userID int64) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		UPDATE call_sessions SET
			status = 'cancelled',
			ended_at = NOW()
		WHERE (user1_id = $1 OR user2_id = $1)
		AND status IN ('waiting', 'active')
		RETURNING id
	`, userID)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *callSessionRepo) CancelStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		UPDATE call_sessions SET
			status = 'cancelled',
			ended_at = NOW()
		WHERE status IN ('waiting', 'active')
		AND created_at < $1
		RETURNING id
	`, cutoff)
	if err != nil {
		return nil, err
	}
	return ids, nil
}
