package repository

import (
	"context"
	"testing"

	"trashtalk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnershipRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewOwnershipRepository(db)
	ctx := context.Background()

	createUser(t, db, 1, models.VisibilityPrivate)
	require.NoError(t, db.Create(&models.Post{ID: 10, UserID: 1}).Error)
	require.NoError(t, db.Create(&models.Challenge{ID: 7, UserID: 1}).Error)

	owner, err := repo.PostOwner(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, uint(1), owner)

	owner, err = repo.ChallengeOwner(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, uint(1), owner)

	_, err = repo.PostOwner(ctx, 99)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
	_, err = repo.ChallengeOwner(ctx, 99)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}
