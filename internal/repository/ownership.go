package repository

import (
	"context"
	"errors"

	"trashtalk/internal/models"

	"gorm.io/gorm"
)

// OwnershipRepository resolves who authored a post or challenge. Both tables
// belong to the content service and are only read here.
type OwnershipRepository interface {
	PostOwner(ctx context.Context, postID uint) (uint, error)
	ChallengeOwner(ctx context.Context, challengeID uint) (uint, error)
}

type ownershipRepository struct {
	db *gorm.DB
}

// NewOwnershipRepository creates a new ownership repository
func NewOwnershipRepository(db *gorm.DB) OwnershipRepository {
	return &ownershipRepository{db: db}
}

func (r *ownershipRepository) PostOwner(ctx context.Context, postID uint) (uint, error) {
	var post models.Post
	return r.owner(ctx, &post, "Post", postID, func() uint { return post.UserID })
}

func (r *ownershipRepository) ChallengeOwner(ctx context.Context, challengeID uint) (uint, error) {
	var challenge models.Challenge
	return r.owner(ctx, &challenge, "Challenge", challengeID, func() uint { return challenge.UserID })
}

func (r *ownershipRepository) owner(ctx context.Context, dst interface{}, resource string, id uint, userID func() uint) (uint, error) {
	err := r.db.WithContext(ctx).Select("id", "user_id").First(dst, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, models.NewNotFoundError(resource, id)
		}
		return 0, models.NewInternalError(err)
	}
	return userID(), nil
}
