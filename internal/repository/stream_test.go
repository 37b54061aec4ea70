package repository

import (
	"context"
	"testing"
	"time"

	"trashtalk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamRepository_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStreamRepository(db)
	ctx := context.Background()

	createUser(t, db, 1, models.VisibilityPublic)
	createUser(t, db, 2, models.VisibilityPublic)

	s := &models.Stream{StreamerID: 1, IsActive: true, StartedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, s))

	dup := &models.Stream{StreamerID: 1, IsActive: true, StartedAt: time.Now()}
	assert.True(t, models.IsCode(repo.Create(ctx, dup), models.CodeConflict))

	active, err := repo.GetActiveByStreamer(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, s.ID, active.ID)

	none, err := repo.GetActiveByStreamer(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, none)

	ended, err := repo.End(ctx, s.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, ended)

	ended, err = repo.End(ctx, s.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, ended)

	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.NotNil(t, got.EndedAt)

	require.NoError(t, repo.Create(ctx, &models.Stream{StreamerID: 1, IsActive: true, StartedAt: time.Now()}))

	_, err = repo.GetByID(ctx, 999)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestStreamRepository_EndAllActive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStreamRepository(db)
	ctx := context.Background()

	createUser(t, db, 1, models.VisibilityPublic)
	createUser(t, db, 2, models.VisibilityPublic)
	require.NoError(t, repo.Create(ctx, &models.Stream{StreamerID: 1, IsActive: true, StartedAt: time.Now()}))
	require.NoError(t, repo.Create(ctx, &models.Stream{StreamerID: 2, IsActive: true, StartedAt: time.Now()}))

	live, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, live, 2)

	n, err := repo.EndAllActive(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	live, err = repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestUserRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	createUser(t, db, 1, models.VisibilityPrivate)
	createUser(t, db, 2, models.VisibilityPublic)

	u, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.True(t, u.IsPrivate())

	_, err = repo.GetByID(ctx, 3)
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	users, err := repo.GetByIDs(ctx, []uint{1, 2, 3})
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestReactionRepository_UniquePairs(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReactionRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.CreateLike(ctx, &models.PostLike{PostID: 1, UserID: 2}))
	assert.True(t, models.IsCode(repo.CreateLike(ctx, &models.PostLike{PostID: 1, UserID: 2}), models.CodeConflict))
	require.NoError(t, repo.CreateLike(ctx, &models.PostLike{PostID: 1, UserID: 3}))

	require.NoError(t, repo.CreateVote(ctx, &models.ChallengeVote{ChallengeID: 4, UserID: 2}))
	assert.True(t, models.IsCode(repo.CreateVote(ctx, &models.ChallengeVote{ChallengeID: 4, UserID: 2}), models.CodeConflict))

	n, err := repo.CountVotes(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
