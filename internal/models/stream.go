package models

import "time"

// Stream is the persisted record of a live session. The partial unique index
// keeps at most one active row per streamer.
type Stream struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	StreamerID uint       `gorm:"not null;index;uniqueIndex:idx_streams_live_streamer,where:is_active = true" json:"streamer_id"`
	IsActive   bool       `gorm:"default:true;not null;index" json:"is_active"`
	StartedAt  time.Time  `gorm:"not null" json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	Streamer *User `gorm:"foreignKey:StreamerID" json:"streamer,omitempty"`
}

// TableName specifies the table name for GORM
func (Stream) TableName() string {
	return "streams"
}
