package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/blinkdate/match-server-go/internal/model"
)

type FindCandidatesParams struct {
	ExcludedIDs []int64
	MinAge      int
	MaxAge      int
	// Candidates must hold an active matching session polled after this.
	SessionFreshSince time.Time
	Limit             int
}

type FindRecentActiveParams struct {
	ExcludedIDs []int64
	MinAge      int
	MaxAge      int
	ActiveSince time.Time
	Limit       int
}

type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
	// Touch updates last_active to now. Returns sql.ErrNoRows via the
	// caller if the user does not exist.
	Touch(ctx context.Context, id int64) error
	FindProfile(ctx context.Context, userID int64) (*model.Profile, error)
	FindInterests(ctx context.Context, userID int64) ([]model.Interest, error)
	// FindCandidates returns users eligible for continuous matching:
	// active, inside the age window, not excluded, and holding a fresh
	// active matching session of their own. The scan window takes the
	// most recently active users first.
	FindCandidates(ctx context.Context, params FindCandidatesParams) ([]model.User, error)
	// FindRecentActive is the legacy batch-discovery pool: recency of
	// user activity only, no requirement to be polling.
	FindRecentActive(ctx context.Context, params FindRecentActiveParams) ([]model.User, error)
	CountActiveSince(ctx context.Context, since time.Time) (int, error)
	WithTx(tx *sqlx.Tx) UserRepository
}

type userDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type userRepo struct {
	db userDB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) WithTx(tx *sqlx.Tx) UserRepository {
	return &userRepo{db: tx}
}

func (r *userRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		SELECT * FROM users WHERE id = $1
	`, id)
	return HandleNotFound(&user, err)
}

func (r *userRepo) Touch(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET last_active = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *userRepo) FindProfile(ctx context.Context, userID int64) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.GetContext(ctx, &profile, `
		SELECT * FROM profiles WHERE user_id = $1
	`, userID)
	return HandleNotFound(&profile, err)
}

func (r *userRepo) FindInterests(ctx context.Context, userID int64) ([]model.Interest, error) {
	var interests []model.Interest
	err := r.db.SelectContext(ctx, &interests, `
		SELECT i.* FROM interests i
		JOIN user_interests ui ON ui.interest_id = i.id
		WHERE ui.user_id = $1
		ORDER BY i.name
	`, userID)
	if err != nil {
		return nil, err
	}
	return interests, nil
}

func (r *userRepo) FindCandidates(ctx context.Context, params FindCandidatesParams) ([]model.User, error) {
	var users []model.User
	err := r.db.SelectContext(ctx, &users, `
		SELECT u.*
		FROM users u
		JOIN profiles p ON p.user_id = u.id
		JOIN matching_sessions ms ON ms.user_id = u.id
			AND ms.status = 'active'
			AND ms.last_active >= $4
		WHERE u.is_active = TRUE
		AND NOT (u.id = ANY($1))
		AND p.age BETWEEN $2 AND $3
		ORDER BY u.last_active DESC
		LIMIT $5
	`, pq.Array(params.ExcludedIDs), params.MinAge, params.MaxAge, params.SessionFreshSince, params.Limit)
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepo) FindRecentActive(ctx context.Context, params FindRecentActiveParams) ([]model.User, error) {
	var users []model.User
	err := r.db.SelectContext(ctx, &users, `
		SELECT u.*
		FROM users u
		JOIN profiles p ON p.user_id = u.id
		WHERE u.is_active = TRUE
		AND NOT (u.id = ANY($1))
		AND p.age BETWEEN $2 AND $3
		AND u.last_active >= $4
		ORDER BY u.last_active DESC
		LIMIT $5
	`, pq.Array(params.ExcludedIDs), params.MinAge, params.MaxAge, params.ActiveSince, params.Limit)
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepo) CountActiveSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM users
		WHERE is_active = TRUE AND last_active >= $1
	`, since)
	return count, err
}
