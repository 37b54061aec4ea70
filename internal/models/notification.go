package models

import "time"

// NotificationKind tags what produced a notification.
type NotificationKind string

const (
	NotificationKindPost      NotificationKind = "post"
	NotificationKindChallenge NotificationKind = "challenge"
	NotificationKindComment   NotificationKind = "comment"
	NotificationKindLike      NotificationKind = "like"
	NotificationKindFollow    NotificationKind = "follow"
	NotificationKindReport    NotificationKind = "report"
	NotificationKindStream    NotificationKind = "stream"
	NotificationKindBroadcast NotificationKind = "broadcast"
)

// Notification is an immutable message; only its author may edit or delete it.
// Broadcast notifications have no pre-created reader rows.
type Notification struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	AuthorID    *uint            `gorm:"index" json:"author_id,omitempty"`
	Kind        NotificationKind `gorm:"type:varchar(32);not null" json:"kind"`
	Message     string           `gorm:"type:text;not null" json:"message"`
	IsBroadcast bool             `gorm:"default:false;index" json:"is_broadcast"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Notification) TableName() string {
	return "notifications"
}

// NotificationReader tracks one recipient's read state. At most one row per pair.
type NotificationReader struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	NotificationID uint       `gorm:"not null;uniqueIndex:idx_reader_pair" json:"notification_id"`
	UserID         uint       `gorm:"not null;uniqueIndex:idx_reader_pair;index" json:"user_id"`
	IsRead         bool       `gorm:"default:false;not null" json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// TableName specifies the table name for GORM
func (NotificationReader) TableName() string {
	return "notification_readers"
}

// InboxItem is a notification as seen by one user.
type InboxItem struct {
	ID          uint             `json:"id"`
	AuthorID    *uint            `json:"author_id,omitempty"`
	Kind        NotificationKind `json:"kind"`
	Message     string           `json:"message"`
	IsBroadcast bool             `json:"is_broadcast"`
	CreatedAt   time.Time        `json:"created_at"`
	IsRead      bool             `json:"is_read"`
	ReadAt      *time.Time       `json:"read_at,omitempty"`
}
