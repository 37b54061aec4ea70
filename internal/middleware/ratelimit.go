package middleware

import (
	"context"
	"fmt"
	"time"

	"trashtalk/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window limiter backed by Redis INCR/EXPIRE.
// A nil client or Enabled=false lets every request through.
type RateLimiter struct {
	rdb     *redis.Client
	Enabled bool
}

// NewRateLimiter creates a limiter. Limiting is skipped in test and development environments.
func NewRateLimiter(rdb *redis.Client, env string) *RateLimiter {
	enabled := true
	switch env {
	case "", "test", "development":
		enabled = false
	}
	return &RateLimiter{rdb: rdb, Enabled: enabled}
}

// Allow reports whether id may perform another resource action within window.
func (l *RateLimiter) Allow(ctx context.Context, resource, id string, limit int, window time.Duration) (bool, error) {
	if !l.Enabled {
		return true, nil
	}
	if l.rdb == nil {
		return true, fmt.Errorf("redis client is nil")
	}

	key := fmt.Sprintf("rl:%s:%s", resource, id)

	cnt, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return true, err
	}
	if cnt == 1 {
		l.rdb.Expire(ctx, key, window)
	}
	return cnt <= int64(limit), nil
}

// Limit returns a Fiber middleware enforcing limit requests per window, keyed by user or IP.
// Redis failures fail open.
func (l *RateLimiter) Limit(resource string, limit int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := "ip:" + c.IP()
		if uid, ok := c.Locals("userID").(uint); ok {
			id = fmt.Sprintf("user:%d", uid)
		}

		allowed, err := l.Allow(c.UserContext(), resource, id, limit, window)
		if err != nil {
			Logger.WarnContext(c.UserContext(), "rate limit check failed", "resource", resource, "error", err)
			return c.Next()
		}
		if !allowed {
			return models.RespondWithError(c, models.NewRateLimitedError("rate limit exceeded"))
		}
		return c.Next()
	}
}
