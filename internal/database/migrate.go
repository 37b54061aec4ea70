package database

import (
	"fmt"

	"trashtalk/internal/models"

	"gorm.io/gorm"
)

// Models lists every table the service owns or reads, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Follow{},
		&models.Notification{},
		&models.NotificationReader{},
		&models.Stream{},
		&models.Post{},
		&models.Challenge{},
		&models.PostLike{},
		&models.ChallengeVote{},
	}
}

// Migrate creates or updates the schema, including the partial unique index
// that allows a single active stream per streamer.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
