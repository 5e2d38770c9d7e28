package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinkdate/match-server-go/internal/apperrors"
	"github.com/blinkdate/match-server-go/internal/model"
)

type matchFixture struct {
	users   *mockUserRepo
	matches *mockMatchRepo
	videos  *mockVideoSessionRepo
	svc     *MatchService
}

func newMatchFixture(t *testing.T) *matchFixture {
	t.Helper()
	rdb, _ := newTestRedis(t)

	f := &matchFixture{
		users:   new(mockUserRepo),
		matches: new(mockMatchRepo),
		videos:  new(mockVideoSessionRepo),
	}
	f.svc = NewMatchService(fakeTxRunner{}, rdb, f.users, f.matches, f.videos, NewMailbox(rdb))
	return f
}

func TestSwipe_RequiresCompletedCall(t *testing.T) {
	f := newMatchFixture(t)
	ctx := context.Background()

	match := &model.Match{ID: 5, UserID: 2, MatchedUserID: 7, Status: model.MatchStatusPending}
	f.matches.On("FindByID", ctx, int64(5)).Return(match, nil)

	_, err := f.svc.Swipe(ctx, 2, 5, model.DecisionLike)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodePreconditionFailed, apperrors.GetCode(err))
}

func TestSwipe_OneSidedLikeParksMatch(t *testing.T) {
	f := newMatchFixture(t)
	ctx := context.Background()

	match := &model.Match{ID: 5, UserID: 2, MatchedUserID: 7, Status: model.MatchStatusPending, CallCompleted: true}
	like := string(model.DecisionLike)
	decided := *match
	decided.UserDecision = &like

	f.matches.On("FindByID", ctx, int64(5)).Return(match, nil)
	f.matches.On("SetDecision", ctx, int64(5), int64(2), model.DecisionLike).Return(&decided, nil)
	f.matches.On("UpdateStatus", ctx, int64(5), model.MatchStatusLiked).Return(nil)

	result, err := f.svc.Swipe(ctx, 2, 5, model.DecisionLike)

	require.NoError(t, err)
	assert.Equal(t, model.MatchStatusLiked, result.MatchStatus)
	assert.False(t, result.IsMutualMatch)
	f.matches.AssertExpectations(t)
}

func TestSwipe_OneSidedPassParksMatch(t *testing.T) {
	f := newMatchFixture(t)
	ctx := context.Background()

	match := &model.Match{ID: 5, UserID: 2, MatchedUserID: 7, Status: model.MatchStatusPending, CallCompleted: true}
	pass := string(model.DecisionPass)
	decided := *match
	decided.UserDecision = &pass

	f.matches.On("FindByID", ctx, int64(5)).Return(match, nil)
	f.matches.On("SetDecision", ctx, int64(5), int64(2), model.DecisionPass).Return(&decided, nil)
	f.matches.On("UpdateStatus", ctx, int64(5), model.MatchStatusPassed).Return(nil)

	result, err := f.svc.Swipe(ctx, 2, 5, model.DecisionPass)

	require.NoError(t, err)
	assert.Equal(t, model.MatchStatusPassed, result.MatchStatus)
	assert.False(t, result.IsMutualMatch)
	f.matches.AssertExpectations(t)
}

func TestSwipe_MutualLikeResolvesMatched(t *testing.T) {
	f := newMatchFixture(t)
	ctx := context.Background()

	like := string(model.DecisionLike)
	match := &model.Match{
		ID: 5, UserID: 2, MatchedUserID: 7,
		Status: model.MatchStatusLiked, CallCompleted: true,
		MatchedUserDecision: &like,
	}
	decided := *match
	decided.UserDecision = &like

	f.matches.On("FindByID", ctx, int64(5)).Return(match, nil)
	f.matches.On("SetDecision", ctx, int64(5), int64(2), model.DecisionLike).Return(&decided, nil)
	f.matches.On("UpdateStatus", ctx, int64(5), model.MatchStatusMatched).Return(nil)

	result, err := f.svc.Swipe(ctx, 2, 5, model.DecisionLike)

	require.NoError(t, err)
	assert.Equal(t, model.MatchStatusMatched, result.MatchStatus)
	assert.True(t, result.IsMutualMatch)
	f.matches.AssertExpectations(t)
}
