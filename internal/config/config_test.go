package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Env:                         "development",
		Port:                        "8080",
		JWTSecret:                   "secure-secret-at-least-32-chars-long",
		DBDriver:                    "postgres",
		DBPassword:                  "secure-password",
		WSHandshakeTimeoutSeconds:   10,
		WSMaxConnsPerUser:           12,
		WSMaxTotalConns:             100,
		WSSignalRatePerSecond:       20,
		WSSignalBurst:               40,
		NotificationPublishAttempts: 3,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{"Valid development config", func(_ *Config) {}, false},
		{"Missing port", func(c *Config) { c.Port = "" }, true},
		{"Missing secret", func(c *Config) { c.JWTSecret = "" }, true},
		{"Unknown driver", func(c *Config) { c.DBDriver = "mysql" }, true},
		{"Zero handshake timeout", func(c *Config) { c.WSHandshakeTimeoutSeconds = 0 }, true},
		{"Zero per-user limit", func(c *Config) { c.WSMaxConnsPerUser = 0 }, true},
		{"Zero signal burst", func(c *Config) { c.WSSignalBurst = 0 }, true},
		{"Zero publish attempts", func(c *Config) { c.NotificationPublishAttempts = 0 }, true},
		{"Production with default secret", func(c *Config) {
			c.Env = "production"
			c.JWTSecret = defaultJWTSecret
		}, true},
		{"Production with short secret", func(c *Config) {
			c.Env = "prod"
			c.JWTSecret = "short"
		}, true},
		{"Production with sqlite", func(c *Config) {
			c.Env = "production"
			c.DBDriver = "sqlite"
		}, true},
		{"Production with weak db password", func(c *Config) {
			c.Env = "production"
			c.DBPassword = "password"
		}, true},
		{"Valid production config", func(c *Config) { c.Env = "production" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	defer viper.Reset()
	defer os.Unsetenv("APP_ENV")
	defer os.Unsetenv("WS_MAX_CONNS_PER_USER")

	os.Setenv("APP_ENV", "test")
	os.Setenv("WS_MAX_CONNS_PER_USER", "3")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8375", cfg.Port)
	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, 3, cfg.WSMaxConnsPerUser)
	assert.Equal(t, 10*time.Second, cfg.HandshakeTimeout())
	assert.Equal(t, 3, cfg.NotificationPublishAttempts)
	assert.False(t, cfg.IsProduction())
}
