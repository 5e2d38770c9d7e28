package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/blinkdate/match-server-go/internal/model"
)

type MatchRepository interface {
	FindByID(ctx context.Context, id int64) (*model.Match, error)
	Create(ctx context.Context, params model.CreateMatchParams) (*model.Match, error)
	// FindBetween returns any match between the two users, either direction.
	FindBetween(ctx context.Context, userA, userB int64) (*model.Match, error)
	FindMutualByUserID(ctx context.Context, userID int64) ([]model.Match, error)
	FindOpenByUserID(ctx context.Context, userID int64) ([]model.Match, error)
	ExistingPartnerIDs(ctx context.Context, userID int64) ([]int64, error)
	SetDecision(ctx context.Context, id int64, userID int64, decision model.CallDecision) (*model.Match, error)
	UpdateStatus(ctx context.Context, id int64, status model.MatchStatus) error
	SetVideoSessionID(ctx context.Context, id int64, sessionID string) error
	MarkCallCompleted(ctx context.Context, id int64) error
	// Unmatch sets status to unmatched and clears both decisions.
	Unmatch(ctx context.Context, id int64) error
	WithTx(tx *sqlx.Tx) MatchRepository
}

type matchDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type matchRepo struct {
	db matchDB
}

func NewMatchRepository(db *sqlx.DB) MatchRepository {
	return &matchRepo{db: db}
}

func (r *matchRepo) WithTx(tx *sqlx.Tx) MatchRepository {
	return &matchRepo{db: tx}
}

func (r *matchRepo) FindByID(ctx context.Context, id int64) (*model.Match, error) {
	var match model.Match
	err := r.db.GetContext(ctx, &match, `
		SELECT * FROM matches WHERE id = $1
	`, id)
	return HandleNotFound(&match, err)
}

func (r *matchRepo) Create(ctx context.Context, params model.CreateMatchParams) (*model.Match, error) {
	var match model.Match
	err := r.db.GetContext(ctx, &match, `
		INSERT INTO matches
			(user_id, matched_user_id, status, compatibility_score, video_session_id, call_completed)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *
	`, params.UserID, params.MatchedUserID, params.Status, params.CompatibilityScore,
		params.VideoSessionID, params.CallCompleted)
	if err != nil {
		return nil, err
	}
	return &match, nil
}

func (r *matchRepo) FindBetween(ctx context.Context, userA, userB int64) (*model.Match, error) {
	var match model.Match
	err := r.db.GetContext(ctx, &match, `
		SELECT * FROM matches
		WHERE (user_id = $1 AND matched_user_id = $2)
		OR (user_id = $2 AND matched_user_id = $1)
		ORDER BY created_at DESC
		LIMIT 1
	`, userA, userB)
	return HandleNotFound(&match, err)
}

func (r *matchRepo) FindMutualByUserID(ctx context.Context, userID int64) ([]model.Match, error) {
	var matches []model.Match
	err := r.db.SelectContext(ctx, &matches, `
		SELECT * FROM matches
		WHERE (user_id = $1 OR matched_user_id = $1)
		AND status = 'matched'
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func (r *matchRepo) FindOpenByUserID(ctx context.Context, userID int64) ([]model.Match, error) {
	var matches []model.Match
	err := r.db.SelectContext(ctx, &matches, `
		SELECT * FROM matches
		WHERE (user_id = $1 OR matched_user_id = $1)
		AND (status = 'matched' OR call_completed = FALSE)
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func (r *matchRepo) ExistingPartnerIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT CASE WHEN user_id = $1 THEN matched_user_id ELSE user_id END
		FROM matches
		WHERE user_id = $1 OR matched_user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *matchRepo) SetDecision(ctx context.Context, id int64, userID int64, decision model.CallDecision) (*model.Match, error) {
	var match model.Match
	err := r.db.GetContext(ctx, &match, `
		UPDATE matches SET
			user_decision = CASE WHEN user_id = $2 THEN $3 ELSE user_decision END,
			matched_user_decision = CASE WHEN matched_user_id = $2 THEN $3 ELSE matched_user_decision END
		WHERE id = $1
		RETURNING *
	`, id, userID, decision)
	return HandleNotFound(&match, err)
}

func (r *matchRepo) UpdateStatus(ctx context.Context, id int64, status model.MatchStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE matches SET status = $2 WHERE id = $1
	`, id, status)
	return err
}

func (r *matchRepo) SetVideoSessionID(ctx context.Context, id int64, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE matches SET video_session_id = $2 WHERE id = $1
	`, id, sessionID)
	return err
}

func (r *matchRepo) MarkCallCompleted(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE matches SET call_completed = TRUE WHERE id = $1
	`, id)
	return err
}

func (r *matchRepo) Unmatch(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE matches SET
			status = 'unmatched',
			user_decision = NULL,
			matched_user_decision = NULL
		WHERE id = $1
	`, id)
	return err
}
