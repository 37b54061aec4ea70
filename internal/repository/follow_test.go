package repository

import (
	"context"
	"sync"
	"testing"

	"trashtalk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFollowRepository_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFollowRepository(db)
	ctx := context.Background()

	createUser(t, db, 1, models.VisibilityPrivate)
	createUser(t, db, 2, models.VisibilityPublic)
	createUser(t, db, 3, models.VisibilityPublic)

	t.Run("Create and duplicate", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, &models.Follow{FollowerID: 2, FollowingID: 1, Status: models.FollowStatusPending}))

		err := repo.Create(ctx, &models.Follow{FollowerID: 2, FollowingID: 1, Status: models.FollowStatusPending})
		assert.True(t, models.IsCode(err, models.CodeConflict), "got %v", err)
	})

	t.Run("Get", func(t *testing.T) {
		edge, err := repo.Get(ctx, 2, 1)
		require.NoError(t, err)
		require.NotNil(t, edge)
		assert.Equal(t, models.FollowStatusPending, edge.Status)

		missing, err := repo.Get(ctx, 1, 2)
		assert.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("ListPending", func(t *testing.T) {
		pending, err := repo.ListPending(ctx, 1)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		require.NotNil(t, pending[0].Follower)
		assert.Equal(t, uint(2), pending[0].Follower.ID)
	})

	t.Run("DeleteAccepted on pending edge is not found", func(t *testing.T) {
		_, err := repo.DeleteAccepted(ctx, 2, 1)
		assert.True(t, models.IsCode(err, models.CodeNotFound))
	})

	t.Run("Accept", func(t *testing.T) {
		edge, err := repo.Accept(ctx, 2, 1)
		require.NoError(t, err)
		assert.Equal(t, models.FollowStatusAccepted, edge.Status)

		_, err = repo.Accept(ctx, 2, 1)
		assert.True(t, models.IsCode(err, models.CodeInvalidState))

		_, err = repo.DeletePending(ctx, 2, 1)
		assert.True(t, models.IsCode(err, models.CodeInvalidState))

		_, err = repo.Accept(ctx, 3, 1)
		assert.True(t, models.IsCode(err, models.CodeNotFound))
	})

	t.Run("ListAccepted both directions", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, &models.Follow{FollowerID: 3, FollowingID: 1, Status: models.FollowStatusAccepted}))

		followers, err := repo.ListAccepted(ctx, 1, models.Followers)
		require.NoError(t, err)
		assert.Len(t, followers, 2)

		following, err := repo.ListAccepted(ctx, 2, models.Following)
		require.NoError(t, err)
		require.Len(t, following, 1)
		require.NotNil(t, following[0].Following)
		assert.Equal(t, uint(1), following[0].Following.ID)

		ids, err := repo.AcceptedFollowerIDs(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []uint{2, 3}, ids)

		_, err = repo.ListAccepted(ctx, 1, models.FollowDirection("sideways"))
		assert.True(t, models.IsCode(err, models.CodeInvalidArgument))
	})

	t.Run("DeleteAccepted", func(t *testing.T) {
		edge, err := repo.DeleteAccepted(ctx, 3, 1)
		require.NoError(t, err)
		assert.Equal(t, uint(3), edge.FollowerID)

		_, err = repo.DeleteAccepted(ctx, 3, 1)
		assert.True(t, models.IsCode(err, models.CodeNotFound))
	})
}

func TestFollowRepository_RejectDeletesPendingEdge(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFollowRepository(db)
	ctx := context.Background()

	createUser(t, db, 1, models.VisibilityPrivate)
	createUser(t, db, 2, models.VisibilityPublic)
	require.NoError(t, repo.Create(ctx, &models.Follow{FollowerID: 2, FollowingID: 1, Status: models.FollowStatusPending}))

	_, err := repo.DeletePending(ctx, 2, 1)
	require.NoError(t, err)

	edge, err := repo.Get(ctx, 2, 1)
	require.NoError(t, err)
	assert.Nil(t, edge)

	_, err = repo.DeletePending(ctx, 2, 1)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestFollowRepository_ConcurrentAcceptSucceedsOnce(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFollowRepository(db)
	ctx := context.Background()

	createUser(t, db, 1, models.VisibilityPrivate)
	createUser(t, db, 2, models.VisibilityPublic)
	require.NoError(t, repo.Create(ctx, &models.Follow{FollowerID: 2, FollowingID: 1, Status: models.FollowStatusPending}))

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Accept(ctx, 2, 1); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}
