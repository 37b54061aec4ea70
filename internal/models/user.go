// Package models contains data structures for the application's domain models.
package models

import "time"

// Visibility controls whether a user's content requires an accepted follow to view.
type Visibility string

const (
	// VisibilityPublic lets any authenticated user view the owner's content.
	VisibilityPublic Visibility = "public"
	// VisibilityPrivate restricts content to the owner and accepted followers.
	VisibilityPrivate Visibility = "private"
)

// User is the slice of the user profile the realtime core reads.
// Profiles are owned by the user service; this table is only queried here.
type User struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Username   string     `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Visibility Visibility `gorm:"column:profile_visibility;type:varchar(16);default:'public';not null" json:"visibility"`
	IsAdmin    bool       `gorm:"default:false" json:"is_admin"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "users"
}

// IsPrivate reports whether the profile is private. Unknown values are treated as private.
func (u *User) IsPrivate() bool {
	return u.Visibility != VisibilityPublic
}
