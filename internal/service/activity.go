package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/blinkdate/match-server-go/internal/apperrors"
	"github.com/blinkdate/match-server-go/internal/repository"
)

// ActivityService tracks per-user last_active timestamps. Every poll,
// join and drain touches the caller so the candidate pool reflects who
// is actually online.
type ActivityService struct {
	users repository.UserRepository
}

func NewActivityService(users repository.UserRepository) *ActivityService {
	return &ActivityService{users: users}
}

func (s *ActivityService) Touch(ctx context.Context, userID int64) error {
	if err := s.users.Touch(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("User")
		}
		return apperrors.Database(err)
	}
	return nil
}

// IsRecentlyActive reports whether the user touched anything within the
// window. Deactivated and unknown users are never recently active.
func (s *ActivityService) IsRecentlyActive(ctx context.Context, userID int64, within time.Duration) (bool, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return false, apperrors.Database(err)
	}
	if user == nil || !user.IsActive {
		return false, nil
	}
	return time.Since(user.LastActive) <= within, nil
}
