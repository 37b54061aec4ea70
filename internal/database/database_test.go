package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"trashtalk/internal/config"
	"trashtalk/internal/middleware"
	"trashtalk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openMemory(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(sqlite.Open("file::memory:"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func TestMigrate_EnforcesSingleLiveStream(t *testing.T) {
	db := openMemory(t)
	require.NoError(t, Migrate(db))

	var err error

	for _, m := range Models() {
		assert.True(t, db.Migrator().HasTable(m))
	}
	assert.True(t, db.Migrator().HasIndex(&models.Stream{}, "idx_streams_live_streamer"))

	require.NoError(t, db.Create(&models.User{ID: 1, Username: "host", Visibility: models.VisibilityPublic}).Error)
	require.NoError(t, db.Create(&models.Stream{StreamerID: 1, IsActive: true, StartedAt: time.Now()}).Error)

	err = db.Create(&models.Stream{StreamerID: 1, IsActive: true, StartedAt: time.Now()}).Error
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey), "got %v", err)

	require.NoError(t, db.Model(&models.Stream{}).Where("streamer_id = ?", 1).Update("is_active", false).Error)
	assert.NoError(t, db.Create(&models.Stream{StreamerID: 1, IsActive: true, StartedAt: time.Now()}).Error)
}

func TestDialector(t *testing.T) {
	assert.Equal(t, "sqlite", Dialector(&config.Config{DBDriver: "sqlite", DBSQLitePath: "x.db"}).Name())
	assert.Equal(t, "postgres", Dialector(&config.Config{DBDriver: "postgres"}).Name())
}

func TestPing(t *testing.T) {
	db := openMemory(t)
	assert.NoError(t, Ping(context.Background(), db))
}

func TestGormLogger_LogMode(t *testing.T) {
	l := NewGormLogger(middleware.Logger)
	silent := l.LogMode(logger.Silent).(*GormLogger)
	assert.Equal(t, logger.Silent, silent.Config.LogLevel)
	assert.Equal(t, logger.Warn, l.Config.LogLevel)
}
