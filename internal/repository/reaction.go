package repository

import (
	"context"

	"trashtalk/internal/models"

	"gorm.io/gorm"
)

// ReactionRepository stores likes and challenge votes. Duplicates are rejected by
// unique indexes rather than by a prior existence check.
type ReactionRepository interface {
	CreateLike(ctx context.Context, like *models.PostLike) error
	CreateVote(ctx context.Context, vote *models.ChallengeVote) error
	CountVotes(ctx context.Context, challengeID uint) (int64, error)
}

type reactionRepository struct {
	db *gorm.DB
}

// NewReactionRepository creates a new reaction repository
func NewReactionRepository(db *gorm.DB) ReactionRepository {
	return &reactionRepository{db: db}
}

func (r *reactionRepository) CreateLike(ctx context.Context, like *models.PostLike) error {
	if err := r.db.WithContext(ctx).Create(like).Error; err != nil {
		if isUniqueViolation(err) {
			return models.NewConflictError("You already liked this post")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *reactionRepository) CreateVote(ctx context.Context, vote *models.ChallengeVote) error {
	if err := r.db.WithContext(ctx).Create(vote).Error; err != nil {
		if isUniqueViolation(err) {
			return models.NewConflictError("You already voted for this challenge")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *reactionRepository) CountVotes(ctx context.Context, challengeID uint) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.ChallengeVote{}).
		Where("challenge_id = ?", challengeID).Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}
