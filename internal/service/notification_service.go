package service

import (
	"context"
	"strings"
	"time"

	"trashtalk/internal/models"
	"trashtalk/internal/observability"
	"trashtalk/internal/repository"

	"github.com/cenkalti/backoff/v5"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultPublishAttempts = 3
	maxListLimit           = 100
	maxMessageLength       = 2000
)

// Draft is a notification waiting to be published.
type Draft struct {
	AuthorID uint
	Kind     models.NotificationKind
	Message  string
}

// NotificationService persists notifications and reader state.
type NotificationService struct {
	repo     repository.NotificationRepository
	attempts uint
	backoff  func() backoff.BackOff
	now      func() time.Time
}

// NewNotificationService returns a new NotificationService. attempts bounds
// how many times a failed publish transaction is retried as a whole.
func NewNotificationService(repo repository.NotificationRepository, attempts int) *NotificationService {
	if attempts <= 0 {
		attempts = defaultPublishAttempts
	}
	return &NotificationService{
		repo:     repo,
		attempts: uint(attempts),
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = time.Second
			return b
		},
		now: time.Now,
	}
}

func validateDraft(d Draft) error {
	msg := strings.TrimSpace(d.Message)
	if msg == "" {
		return models.NewInvalidArgumentError("Notification message is required")
	}
	if len(msg) > maxMessageLength {
		return models.NewInvalidArgumentError("Notification message is too long")
	}
	return nil
}

// Publish stores the notification with one unread reader row per distinct
// recipient. The write is all-or-nothing; a failed transaction is retried
// from scratch.
func (s *NotificationService) Publish(ctx context.Context, d Draft, recipientIDs []uint) (n *models.Notification, err error) {
	if err := validateDraft(d); err != nil {
		return nil, err
	}

	recipients := lo.Uniq(lo.Filter(recipientIDs, func(id uint, _ int) bool { return id != 0 }))

	ctx, span := observability.StartSpan(ctx, "notifications", "publish",
		attribute.String("notification.kind", string(d.Kind)),
		attribute.Int("notification.recipients", len(recipients)),
	)
	defer func() { observability.EndSpan(span, err) }()

	return s.create(ctx, d, false, recipients)
}

// Broadcast stores a notification addressed to every user. No reader rows
// are written up front.
func (s *NotificationService) Broadcast(ctx context.Context, d Draft) (n *models.Notification, err error) {
	if err := validateDraft(d); err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "notifications", "broadcast",
		attribute.String("notification.kind", string(d.Kind)),
	)
	defer func() { observability.EndSpan(span, err) }()

	return s.create(ctx, d, true, nil)
}

func (s *NotificationService) create(ctx context.Context, d Draft, broadcast bool, recipients []uint) (*models.Notification, error) {
	var author *uint
	if d.AuthorID != 0 {
		author = lo.ToPtr(d.AuthorID)
	}

	op := func() (*models.Notification, error) {
		n := &models.Notification{
			AuthorID:    author,
			Kind:        d.Kind,
			Message:     strings.TrimSpace(d.Message),
			IsBroadcast: broadcast,
		}
		if err := s.repo.CreateWithReaders(ctx, n, recipients); err != nil {
			if !models.IsCode(err, models.CodeInternal) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return n, nil
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(s.backoff()),
		backoff.WithMaxTries(s.attempts),
		backoff.WithNotify(func(error, time.Duration) {
			observability.NotificationPublishRetries.Inc()
		}),
	)
}

// MarkRead marks the notification read for userID. Repeated calls succeed
// without changing anything.
func (s *NotificationService) MarkRead(ctx context.Context, notificationID, userID uint) (*models.NotificationReader, error) {
	reader, _, err := s.repo.MarkRead(ctx, notificationID, userID, s.now())
	return reader, err
}

// List returns userID's inbox, newest first.
func (s *NotificationService) List(ctx context.Context, userID uint, limit, offset int) ([]models.InboxItem, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListForUser(ctx, userID, limit, offset)
}

// Edit replaces the message text. Only the author may edit.
func (s *NotificationService) Edit(ctx context.Context, id, authorID uint, message string) (*models.Notification, error) {
	if err := validateDraft(Draft{Message: message}); err != nil {
		return nil, err
	}
	return s.repo.UpdateMessage(ctx, id, authorID, strings.TrimSpace(message))
}

// Delete removes the notification and its reader rows. Only the author may delete.
func (s *NotificationService) Delete(ctx context.Context, id, authorID uint) error {
	return s.repo.Delete(ctx, id, authorID)
}
