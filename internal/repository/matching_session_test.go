package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinkdate/match-server-go/internal/model"
)

func TestMatchingSessionRepository_CreateAndFind(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMatchingSessionRepository(db.DB)
	ctx := context.Background()

	userID := createTestUser(t, db)

	session, err := repo.Create(ctx, model.CreateMatchingSessionParams{
		SessionToken:       "tok-1",
		UserID:             userID,
		MinAge:             21,
		MaxAge:             35,
		PreferredInterests: []string{"hiking", "jazz"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.MatchingStatusActive, session.Status)
	assert.Equal(t, []string{"hiking", "jazz"}, []string(session.PreferredInterests))

	byToken, err := repo.FindActiveByToken(ctx, "tok-1")
	require.NoError(t, err)
	require.NotNil(t, byToken)
	assert.Equal(t, session.ID, byToken.ID)

	byUser, err := repo.FindActiveByUserID(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, byUser)
	assert.Equal(t, session.ID, byUser.ID)
}

func TestMatchingSessionRepository_CompleteActiveForUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMatchingSessionRepository(db.DB)
	ctx := context.Background()

	userID := createTestUser(t, db)

	_, err := repo.Create(ctx, model.CreateMatchingSessionParams{
		SessionToken: "tok-old", UserID: userID, MinAge: 18, MaxAge: 99,
	})
	require.NoError(t, err)

	count, err := repo.CompleteActiveForUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	active, err := repo.FindActiveByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestMatchingSessionRepository_Exclusions(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMatchingSessionRepository(db.DB)
	ctx := context.Background()

	userID := createTestUser(t, db)
	partnerID := createTestUser(t, db)

	session, err := repo.Create(ctx, model.CreateMatchingSessionParams{
		SessionToken: "tok-1", UserID: userID, MinAge: 18, MaxAge: 99,
	})
	require.NoError(t, err)

	require.NoError(t, repo.AddExclusion(ctx, session.ID, partnerID))
	// Adding the same user twice keeps a single entry.
	require.NoError(t, repo.AddExclusion(ctx, session.ID, partnerID))

	reloaded, err := repo.FindByToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, []int64{partnerID}, []int64(reloaded.ExcludedUserIDs))
}

func TestMatchingSessionRepository_AddExclusionForUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMatchingSessionRepository(db.DB)
	ctx := context.Background()

	userID := createTestUser(t, db)
	partnerID := createTestUser(t, db)

	// Partner has no session: nothing to mirror onto.
	updated, err := repo.AddExclusionForUser(ctx, partnerID, userID)
	require.NoError(t, err)
	assert.Zero(t, updated)

	_, err = repo.Create(ctx, model.CreateMatchingSessionParams{
		SessionToken: "tok-p", UserID: partnerID, MinAge: 18, MaxAge: 99,
	})
	require.NoError(t, err)

	updated, err = repo.AddExclusionForUser(ctx, partnerID, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)
}

func TestMatchingSessionRepository_CompleteStale(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMatchingSessionRepository(db.DB)
	ctx := context.Background()

	userID := createTestUser(t, db)

	_, err := repo.Create(ctx, model.CreateMatchingSessionParams{
		SessionToken: "tok-1", UserID: userID, MinAge: 18, MaxAge: 99,
	})
	require.NoError(t, err)

	count, err := repo.CompleteStale(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = repo.CompleteStale(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	reloaded, err := repo.FindByToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, model.MatchingStatusCompleted, reloaded.Status)
	assert.NotNil(t, reloaded.EndedAt)
}
