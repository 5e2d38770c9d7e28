package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinkdate/match-server-go/internal/model"
)

func TestCallSessionRepository_OpenPairIsUnique(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCallSessionRepository(db.DB)
	ctx := context.Background()

	a := createTestUser(t, db)
	b := createTestUser(t, db)

	created, err := repo.Create(ctx, "call-1", a, b)
	require.NoError(t, err)
	assert.Equal(t, model.CallStatusWaiting, created.Status)

	// A second open session between the same pair trips the partial
	// unique index.
	_, err = repo.Create(ctx, "call-2", a, b)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	// After the first is closed, a new pair row is allowed.
	require.NoError(t, repo.MarkEnded(ctx, "call-1", model.CallStatusCancelled, false))
	_, err = repo.Create(ctx, "call-3", a, b)
	require.NoError(t, err)
}

func TestCallSessionRepository_FindOpenByPair(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCallSessionRepository(db.DB)
	ctx := context.Background()

	a := createTestUser(t, db)
	b := createTestUser(t, db)

	_, err := repo.Create(ctx, "call-1", a, b)
	require.NoError(t, err)

	found, err := repo.FindOpenByPair(ctx, a, b, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "call-1", found.ID)

	// Outside the reuse window nothing comes back.
	found, err = repo.FindOpenByPair(ctx, a, b, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestCallSessionRepository_SetDecision(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCallSessionRepository(db.DB)
	ctx := context.Background()

	a := createTestUser(t, db)
	b := createTestUser(t, db)

	_, err := repo.Create(ctx, "call-1", a, b)
	require.NoError(t, err)

	updated, err := repo.SetDecision(ctx, "call-1", a, model.DecisionLike)
	require.NoError(t, err)
	require.NotNil(t, updated.User1Decision)
	assert.Equal(t, string(model.DecisionLike), *updated.User1Decision)
	assert.False(t, updated.BothDecided())

	updated, err = repo.SetDecision(ctx, "call-1", b, model.DecisionLike)
	require.NoError(t, err)
	assert.True(t, updated.BothDecided())
	assert.True(t, updated.BothLiked())
}

func TestCallSessionRepository_CancelOpenForUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCallSessionRepository(db.DB)
	ctx := context.Background()

	a := createTestUser(t, db)
	b := createTestUser(t, db)
	c := createTestUser(t, db)

	_, err := repo.Create(ctx, "call-ab", a, b)
	require.NoError(t, err)
	_, err = repo.Create(ctx, "call-ac", a, c)
	require.NoError(t, err)

	ids, err := repo.CancelOpenForUser(ctx, a)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"call-ab", "call-ac"}, ids)

	found, err := repo.FindInboundForUser(ctx, b, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestCallSessionRepository_CancelStale(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCallSessionRepository(db.DB)
	ctx := context.Background()

	a := createTestUser(t, db)
	b := createTestUser(t, db)

	_, err := repo.Create(ctx, "call-1", a, b)
	require.NoError(t, err)

	// Fresh sessions survive the sweep.
	ids, err := repo.CancelStale(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = repo.CancelStale(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"call-1"}, ids)
}
