package repository

import (
	"context"
	"errors"
	"time"

	"trashtalk/internal/models"
	"trashtalk/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// readerBatchSize bounds the rows per INSERT when fanning out to many recipients.
const readerBatchSize = 500

// NotificationRepository is the notification store: messages plus per-recipient read markers.
type NotificationRepository interface {
	CreateWithReaders(ctx context.Context, n *models.Notification, recipientIDs []uint) error
	GetByID(ctx context.Context, id uint) (*models.Notification, error)
	MarkRead(ctx context.Context, notificationID, userID uint, at time.Time) (*models.NotificationReader, bool, error)
	ListForUser(ctx context.Context, userID uint, limit, offset int) ([]models.InboxItem, error)
	CountReaders(ctx context.Context, notificationID uint) (int64, error)
	UpdateMessage(ctx context.Context, id, authorID uint, message string) (*models.Notification, error)
	Delete(ctx context.Context, id, authorID uint) error
}

type notificationRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db, log: observability.NewRepoLogger("notifications")}
}

// CreateWithReaders inserts the notification and one unread reader row per
// recipient in a single transaction: either every row lands or none does.
func (r *notificationRepository) CreateWithReaders(ctx context.Context, n *models.Notification, recipientIDs []uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(n).Error; err != nil {
			return err
		}
		if len(recipientIDs) == 0 {
			return nil
		}
		readers := make([]models.NotificationReader, len(recipientIDs))
		for i, uid := range recipientIDs {
			readers[i] = models.NotificationReader{NotificationID: n.ID, UserID: uid}
		}
		return tx.CreateInBatches(readers, readerBatchSize).Error
	})
	if err != nil {
		n.ID = 0
		r.log.LogError(ctx, err, "create_with_readers")
		return models.NewInternalError(err)
	}
	return nil
}

func (r *notificationRepository) GetByID(ctx context.Context, id uint) (*models.Notification, error) {
	return r.getByID(r.db.WithContext(ctx), id)
}

func (r *notificationRepository) getByID(tx *gorm.DB, id uint) (*models.Notification, error) {
	var n models.Notification
	if err := tx.First(&n, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Notification", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &n, nil
}

// MarkRead marks the user's reader row as read. The bool result is false when
// the row was already read. Broadcasts materialize the reader row on first use.
func (r *notificationRepository) MarkRead(ctx context.Context, notificationID, userID uint, at time.Time) (*models.NotificationReader, bool, error) {
	var (
		reader  models.NotificationReader
		changed bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := r.getByID(tx, notificationID)
		if err != nil {
			return err
		}

		if n.IsBroadcast {
			lazy := models.NotificationReader{NotificationID: n.ID, UserID: userID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&lazy).Error; err != nil {
				return models.NewInternalError(err)
			}
		}

		if err := tx.Where("notification_id = ? AND user_id = ?", notificationID, userID).First(&reader).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewForbiddenError("Notification is not addressed to you")
			}
			return models.NewInternalError(err)
		}
		if reader.IsRead {
			return nil
		}

		res := tx.Model(&models.NotificationReader{}).
			Where("id = ? AND is_read = ?", reader.ID, false).
			Updates(map[string]interface{}{"is_read": true, "read_at": at})
		if res.Error != nil {
			return models.NewInternalError(res.Error)
		}
		changed = res.RowsAffected > 0
		reader.IsRead = true
		if changed {
			reader.ReadAt = &at
		}
		return nil
	})
	if err != nil {
		if models.IsCode(err, models.CodeInternal) {
			r.log.LogError(ctx, err, "mark_read")
		}
		return nil, false, err
	}
	return &reader, changed, nil
}

// ListForUser returns notifications addressed to userID plus every broadcast, newest first.
func (r *notificationRepository) ListForUser(ctx context.Context, userID uint, limit, offset int) ([]models.InboxItem, error) {
	var items []models.InboxItem
	err := r.db.WithContext(ctx).
		Table("notifications").
		Select(`notifications.id, notifications.author_id, notifications.kind, notifications.message,
			notifications.is_broadcast, notifications.created_at,
			COALESCE(notification_readers.is_read, false) AS is_read, notification_readers.read_at`).
		Joins("LEFT JOIN notification_readers ON notification_readers.notification_id = notifications.id AND notification_readers.user_id = ?", userID).
		Where("notification_readers.id IS NOT NULL OR notifications.is_broadcast = ?", true).
		Order("notifications.created_at DESC, notifications.id DESC").
		Limit(limit).
		Offset(offset).
		Scan(&items).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return items, nil
}

func (r *notificationRepository) CountReaders(ctx context.Context, notificationID uint) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.NotificationReader{}).
		Where("notification_id = ?", notificationID).Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}

// authorOnly loads the notification and rejects callers other than its author.
func (r *notificationRepository) authorOnly(tx *gorm.DB, id, authorID uint) (*models.Notification, error) {
	n, err := r.getByID(tx, id)
	if err != nil {
		return nil, err
	}
	if n.AuthorID == nil || *n.AuthorID != authorID {
		return nil, models.NewForbiddenError("Only the author can modify this notification")
	}
	return n, nil
}

func (r *notificationRepository) UpdateMessage(ctx context.Context, id, authorID uint, message string) (*models.Notification, error) {
	var out *models.Notification
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := r.authorOnly(tx, id, authorID)
		if err != nil {
			return err
		}
		if err := tx.Model(n).Update("message", message).Error; err != nil {
			return models.NewInternalError(err)
		}
		n.Message = message
		out = n
		return nil
	})
	if err != nil {
		return nil, internal(err)
	}
	return out, nil
}

func (r *notificationRepository) Delete(ctx context.Context, id, authorID uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := r.authorOnly(tx, id, authorID); err != nil {
			return err
		}
		if err := tx.Where("notification_id = ?", id).Delete(&models.NotificationReader{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Notification{}, id).Error
	})
	if err != nil {
		return internal(err)
	}
	return nil
}
