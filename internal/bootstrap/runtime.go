// Package bootstrap connects the process to its backing stores.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"trashtalk/internal/cache"
	"trashtalk/internal/config"
	"trashtalk/internal/database"
	"trashtalk/internal/middleware"
	"trashtalk/internal/server"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// ConnectAttempts bounds how often the database dial is retried at startup.
	ConnectAttempts uint
	// WithoutRedis skips Redis entirely, as one-shot commands do.
	WithoutRedis bool
}

// InitRuntime connects to the database and, unless disabled, Redis. A nil
// Redis client is not an error: the process runs in degraded mode.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	attempts := opts.ConnectAttempts
	if attempts == 0 {
		attempts = 5
	}

	db, err := backoff.Retry(ctx, func() (*gorm.DB, error) {
		return database.Connect(cfg)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			middleware.Logger.WarnContext(ctx, "database not ready, retrying", "error", err, "retry_in", next)
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	var rdb *redis.Client
	if !opts.WithoutRedis {
		rdb = cache.Connect(cfg.RedisURL)
	}
	return db, rdb, nil
}

// NewServer builds the API server and ends any stream a previous process left live.
func NewServer(ctx context.Context, cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*server.Server, error) {
	srv, err := server.NewServer(cfg, db, rdb)
	if err != nil {
		return nil, err
	}
	if err := srv.Recover(ctx); err != nil {
		return nil, fmt.Errorf("stream recovery failed: %w", err)
	}
	return srv, nil
}
