package repository

import (
	"context"
	"errors"
	"time"

	"trashtalk/internal/models"
	"trashtalk/internal/observability"

	"gorm.io/gorm"
)

// StreamRepository persists stream lifecycle records.
type StreamRepository interface {
	Create(ctx context.Context, stream *models.Stream) error
	GetByID(ctx context.Context, id uint) (*models.Stream, error)
	GetActiveByStreamer(ctx context.Context, streamerID uint) (*models.Stream, error)
	ListActive(ctx context.Context) ([]models.Stream, error)
	End(ctx context.Context, id uint, at time.Time) (bool, error)
	EndAllActive(ctx context.Context, at time.Time) (int64, error)
}

type streamRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewStreamRepository creates a new stream repository
func NewStreamRepository(db *gorm.DB) StreamRepository {
	return &streamRepository{db: db, log: observability.NewRepoLogger("streams")}
}

func (r *streamRepository) Create(ctx context.Context, stream *models.Stream) error {
	if err := r.db.WithContext(ctx).Create(stream).Error; err != nil {
		if isUniqueViolation(err) {
			return models.NewConflictError("You already have an active stream.")
		}
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	return nil
}

func (r *streamRepository) GetByID(ctx context.Context, id uint) (*models.Stream, error) {
	var stream models.Stream
	if err := r.db.WithContext(ctx).First(&stream, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Stream", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &stream, nil
}

func (r *streamRepository) GetActiveByStreamer(ctx context.Context, streamerID uint) (*models.Stream, error) {
	var stream models.Stream
	err := r.db.WithContext(ctx).Where("streamer_id = ? AND is_active = ?", streamerID, true).First(&stream).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &stream, nil
}

func (r *streamRepository) ListActive(ctx context.Context) ([]models.Stream, error) {
	var streams []models.Stream
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("started_at DESC").Find(&streams).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return streams, nil
}

// End marks the stream inactive. It reports false if it was already ended.
func (r *streamRepository) End(ctx context.Context, id uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Stream{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{"is_active": false, "ended_at": at})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "end")
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// EndAllActive ends every stream left active by a previous process.
func (r *streamRepository) EndAllActive(ctx context.Context, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Stream{}).
		Where("is_active = ?", true).
		Updates(map[string]interface{}{"is_active": false, "ended_at": at})
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}
