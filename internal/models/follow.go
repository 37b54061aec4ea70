package models

import "time"

// FollowStatus represents the approval state of a follow edge.
type FollowStatus string

const (
	// FollowStatusPending indicates the target has not yet answered the request.
	FollowStatusPending FollowStatus = "pending"
	// FollowStatusAccepted indicates an approved follow.
	FollowStatusAccepted FollowStatus = "accepted"
)

// Follow is a directed edge from FollowerID to FollowingID.
type Follow struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	FollowerID  uint         `gorm:"not null;uniqueIndex:idx_follow_pair" json:"follower_id"`
	FollowingID uint         `gorm:"not null;uniqueIndex:idx_follow_pair;index:idx_follows_following_status" json:"following_id"`
	Status      FollowStatus `gorm:"type:varchar(16);not null;default:'pending';index:idx_follows_following_status" json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`

	Follower  *User `gorm:"foreignKey:FollowerID" json:"follower,omitempty"`
	Following *User `gorm:"foreignKey:FollowingID" json:"following,omitempty"`
}

// TableName specifies the table name for GORM
func (Follow) TableName() string {
	return "follows"
}

// Accepted reports whether the edge has been approved.
func (f *Follow) Accepted() bool {
	return f != nil && f.Status == FollowStatusAccepted
}

// FollowDirection selects which side of the graph a listing walks.
type FollowDirection string

const (
	// Followers lists users following the owner.
	Followers FollowDirection = "followers"
	// Following lists users the owner follows.
	Following FollowDirection = "following"
)
