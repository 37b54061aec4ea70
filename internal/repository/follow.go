package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trashtalk/internal/models"
	"trashtalk/internal/observability"

	"gorm.io/gorm"
)

// FollowRepository is the follow graph store. Every mutation is a conditional
// statement on the edge's current status, so concurrent accept/reject/unfollow
// on the same pair cannot both succeed.
type FollowRepository interface {
	Create(ctx context.Context, edge *models.Follow) error
	Get(ctx context.Context, followerID, followingID uint) (*models.Follow, error)
	Accept(ctx context.Context, followerID, followingID uint) (*models.Follow, error)
	DeletePending(ctx context.Context, followerID, followingID uint) (*models.Follow, error)
	DeleteAccepted(ctx context.Context, followerID, followingID uint) (*models.Follow, error)
	ListAccepted(ctx context.Context, ownerID uint, direction models.FollowDirection) ([]models.Follow, error)
	ListPending(ctx context.Context, ownerID uint) ([]models.Follow, error)
	AcceptedFollowerIDs(ctx context.Context, ownerID uint) ([]uint, error)
}

type followRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewFollowRepository creates a new follow repository
func NewFollowRepository(db *gorm.DB) FollowRepository {
	return &followRepository{db: db, log: observability.NewRepoLogger("follows")}
}

func pairID(followerID, followingID uint) string {
	return fmt.Sprintf("%d->%d", followerID, followingID)
}

func (r *followRepository) Create(ctx context.Context, edge *models.Follow) error {
	if err := r.db.WithContext(ctx).Create(edge).Error; err != nil {
		if isUniqueViolation(err) {
			return models.NewConflictError("Follow request already exists")
		}
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	return nil
}

func (r *followRepository) Get(ctx context.Context, followerID, followingID uint) (*models.Follow, error) {
	return r.get(r.db.WithContext(ctx), followerID, followingID)
}

func (r *followRepository) get(tx *gorm.DB, followerID, followingID uint) (*models.Follow, error) {
	var edge models.Follow
	err := tx.Where("follower_id = ? AND following_id = ?", followerID, followingID).First(&edge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &edge, nil
}

// transition runs a conditional statement guarded by status and explains a miss.
func (r *followRepository) transition(ctx context.Context, op string, followerID, followingID uint, expect models.FollowStatus,
	apply func(tx *gorm.DB) *gorm.DB) (*models.Follow, error) {
	var edge *models.Follow
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := r.get(tx, followerID, followingID)
		if err != nil {
			return err
		}
		if current == nil {
			return models.NewNotFoundError("Follow", pairID(followerID, followingID))
		}
		if current.Status != expect {
			if expect == models.FollowStatusPending {
				return models.NewInvalidStateError("Follow request already processed")
			}
			return models.NewNotFoundError("Follow", pairID(followerID, followingID))
		}

		res := apply(tx.Model(&models.Follow{}).
			Where("follower_id = ? AND following_id = ? AND status = ?", followerID, followingID, expect))
		if res.Error != nil {
			return models.NewInternalError(res.Error)
		}
		if res.RowsAffected == 0 {
			// lost a race with another transition on the same pair
			return models.NewInvalidStateError("Follow was modified concurrently")
		}
		edge = current
		return nil
	})
	if err != nil {
		if models.IsCode(err, models.CodeInternal) {
			r.log.LogError(ctx, err, op)
		}
		return nil, err
	}
	return edge, nil
}

func (r *followRepository) Accept(ctx context.Context, followerID, followingID uint) (*models.Follow, error) {
	now := time.Now()
	edge, err := r.transition(ctx, "accept", followerID, followingID, models.FollowStatusPending, func(tx *gorm.DB) *gorm.DB {
		return tx.Updates(map[string]interface{}{"status": models.FollowStatusAccepted, "updated_at": now})
	})
	if err != nil {
		return nil, err
	}
	edge.Status = models.FollowStatusAccepted
	edge.UpdatedAt = now
	return edge, nil
}

func (r *followRepository) DeletePending(ctx context.Context, followerID, followingID uint) (*models.Follow, error) {
	return r.transition(ctx, "reject", followerID, followingID, models.FollowStatusPending, func(tx *gorm.DB) *gorm.DB {
		return tx.Delete(&models.Follow{})
	})
}

func (r *followRepository) DeleteAccepted(ctx context.Context, followerID, followingID uint) (*models.Follow, error) {
	return r.transition(ctx, "delete", followerID, followingID, models.FollowStatusAccepted, func(tx *gorm.DB) *gorm.DB {
		return tx.Delete(&models.Follow{})
	})
}

func (r *followRepository) ListAccepted(ctx context.Context, ownerID uint, direction models.FollowDirection) ([]models.Follow, error) {
	q := r.db.WithContext(ctx).Where("status = ?", models.FollowStatusAccepted)
	switch direction {
	case models.Followers:
		q = q.Where("following_id = ?", ownerID).Preload("Follower")
	case models.Following:
		q = q.Where("follower_id = ?", ownerID).Preload("Following")
	default:
		return nil, models.NewInvalidArgumentError(fmt.Sprintf("unknown follow direction %q", direction))
	}

	var edges []models.Follow
	if err := q.Order("created_at DESC, id DESC").Find(&edges).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return edges, nil
}

func (r *followRepository) ListPending(ctx context.Context, ownerID uint) ([]models.Follow, error) {
	var edges []models.Follow
	if err := r.db.WithContext(ctx).
		Where("following_id = ? AND status = ?", ownerID, models.FollowStatusPending).
		Preload("Follower").
		Order("created_at DESC, id DESC").
		Find(&edges).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return edges, nil
}

func (r *followRepository) AcceptedFollowerIDs(ctx context.Context, ownerID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("following_id = ? AND status = ?", ownerID, models.FollowStatusAccepted).
		Order("follower_id").
		Pluck("follower_id", &ids).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}
