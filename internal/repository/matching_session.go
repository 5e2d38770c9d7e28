package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/blinkdate/match-server-go/internal/model"
)

type MatchingSessionRepository interface {
	FindByToken(ctx context.Context, token string) (*model.MatchingSession, error)
	FindActiveByToken(ctx context.Context, token string) (*model.MatchingSession, error)
	FindActiveByUserID(ctx context.Context, userID int64) (*model.MatchingSession, error)
	Create(ctx context.Context, params model.CreateMatchingSessionParams) (*model.MatchingSession, error)
	// CompleteActiveForUser force-completes every active session the user
	// holds, preserving the one-active-session-per-user invariant.
	CompleteActiveForUser(ctx context.Context, userID int64) (int64, error)
	Complete(ctx context.Context, id int64) error
	Touch(ctx context.Context, id int64) error
	SetCurrentCall(ctx context.Context, id int64, callID *string) error
	IncrementMatchesMade(ctx context.Context, id int64) error
	IncrementSuccessfulMatches(ctx context.Context, id int64) error
	// AddExclusion appends to the session's exclusion list if not present.
	AddExclusion(ctx context.Context, id int64, excludeUserID int64) error
	// AddExclusionForUser mirrors an exclusion onto the counterpart's
	// active session. Returns the number of sessions updated; zero means
	// the counterpart was not polling and the exclusion stays one-sided.
	AddExclusionForUser(ctx context.Context, ownerUserID, excludeUserID int64) (int64, error)
	// CompleteStale completes active sessions idle since before cutoff.
	CompleteStale(ctx context.Context, cutoff time.Time) (int64, error)
	WithTx(tx *sqlx.Tx) MatchingSessionRepository
}

type matchingSessionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type matchingSessionRepo struct {
	db matchingSessionDB
}

func NewMatchingSessionRepository(db *sqlx.DB) MatchingSessionRepository {
	return &matchingSessionRepo{db: db}
}

func (r *matchingSessionRepo) WithTx(tx *sqlx.Tx) MatchingSessionRepository {
	return &matchingSessionRepo{db: tx}
}

func (r *matchingSessionRepo) FindByToken(ctx context.Context, token string) (*model.MatchingSession, error) {
	var session model.MatchingSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM matching_sessions WHERE session_token = $1
	`, token)
	return HandleNotFound(&session, err)
}

func (r *matchingSessionRepo) FindActiveByToken(ctx context.Context, token string) (*model.MatchingSession, error) {
	var session model.MatchingSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM matching_sessions
		WHERE session_token = $1 AND status = 'active'
	`, token)
	return HandleNotFound(&session, err)
}

func (r *matchingSessionRepo) FindActiveByUserID(ctx context.Context, userID int64) (*model.MatchingSession, error) {
	var session model.MatchingSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM matching_sessions
		WHERE user_id = $1 AND status = 'active'
		ORDER BY started_at DESC
		LIMIT 1
	`, userID)
	return HandleNotFound(&session, err)
}

func (r *matchingSessionRepo) Create(ctx context.Context, params model.CreateMatchingSessionParams) (*model.MatchingSession, error) {
	var session model.MatchingSession
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO matching_sessions
			(session_token, user_id, status, min_age, max_age, preferred_interests, excluded_user_ids)
		VALUES ($1, $2, 'active', $3, $4, $5, ARRAY[$2]::BIGINT[])
		RETURNING *
	`, params.SessionToken, params.UserID, params.MinAge, params.MaxAge,
		pq.Array(params.PreferredInterests))
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *matchingSessionRepo) CompleteActiveForUser(ctx context.Context, userID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE matching_sessions SET
			status = 'completed',
			ended_at = NOW()
		WHERE user_id = $1 AND status = 'active'
	`, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *matchingSessionRepo) Complete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE matching_sessions SET
			status = 'completed',
			ended_at = NOW()
		WHERE id = $1 AND status = 'active'
	`, id)
	return err
}

func (r *matchingSessionRepo) Touch(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE matching_sessions SET last_active = NOW() WHERE id = $1
	`, id)
	return err
}

func (r *matchingSessionRepo) SetCurrentCall(ctx context.Context, id int64, callID *string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE matching_sessions SET current_call_id = $2 WHERE id = $1
	`, id, callID)
	return err
}

func (r *matchingSessionRepo) IncrementMatchesMade(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE matching_sessions SET matches_made = matches_made + 1 WHERE id = $1
	`, id)
	return err
}

func (r *matchingSessionRepo) IncrementSuccessfulMatches(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE matching_sessions SET successful_matches = successful_matches + 1 WHERE id = $1
	`, id)
	return err
}

func (r *matchingSessionRepo) AddExclusion(ctx context.Context, id int64, excludeUserID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE matching_sessions SET
			excluded_user_ids = array_append(excluded_user_ids, $2)
		WHERE id = $1
		AND NOT excluded_user_ids @> ARRAY[$2]::BIGINT[]
	`, id, excludeUserID)
	return err
}

func (r *matchingSessionRepo) AddExclusionForUser(ctx context.Context, ownerUserID, excludeUserID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE matching_sessions SET
			excluded_user_ids = array_append(excluded_user_ids, $2)
		WHERE user_id = $1 AND status = 'active'
		AND NOT excluded_user_ids @> ARRAY[$2]::BIGINT[]
	`, ownerUserID, excludeUserID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *matchingSessionRepo) CompleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE matching_sessions SET
			status = 'completed',
			ended_at = NOW()
		WHERE status = 'active' AND last_active < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
