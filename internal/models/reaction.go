package models

import "time"

// PostLike records that a user liked a post. Unique per (post, user).
type PostLike struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_post_like_pair" json:"post_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_post_like_pair" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (PostLike) TableName() string {
	return "post_likes"
}

// ChallengeVote records a vote for a challenge entry. Unique per (challenge, user).
type ChallengeVote struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ChallengeID uint      `gorm:"not null;uniqueIndex:idx_challenge_vote_pair" json:"challenge_id"`
	UserID      uint      `gorm:"not null;uniqueIndex:idx_challenge_vote_pair" json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (ChallengeVote) TableName() string {
	return "challenge_votes"
}

// Post is the ownership slice of a post. Posts are owned by the content
// service; only the author column is read here.
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Post) TableName() string {
	return "posts"
}

// Challenge is the ownership slice of a challenge entry.
type Challenge struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Challenge) TableName() string {
	return "challenges"
}
