// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"APP_ENV"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	DBDriver     string `mapstructure:"DB_DRIVER"`
	DBHost       string `mapstructure:"DB_HOST"`
	DBPort       string `mapstructure:"DB_PORT"`
	DBUser       string `mapstructure:"DB_USER"`
	DBPassword   string `mapstructure:"DB_PASSWORD"`
	DBName       string `mapstructure:"DB_NAME"`
	DBSSLMode    string `mapstructure:"DB_SSLMODE"`
	DBSQLitePath string `mapstructure:"DB_SQLITE_PATH"`
	DBMaxOpen    int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdle    int    `mapstructure:"DB_MAX_IDLE_CONNS"`

	RedisURL string `mapstructure:"REDIS_URL"`

	WSHandshakeTimeoutSeconds int     `mapstructure:"WS_HANDSHAKE_TIMEOUT_SECONDS"`
	WSMaxConnsPerUser         int     `mapstructure:"WS_MAX_CONNS_PER_USER"`
	WSMaxTotalConns           int     `mapstructure:"WS_MAX_TOTAL_CONNS"`
	WSSignalRatePerSecond     float64 `mapstructure:"WS_SIGNAL_RATE_PER_SECOND"`
	WSSignalBurst             int     `mapstructure:"WS_SIGNAL_BURST"`

	NotificationPublishAttempts int `mapstructure:"NOTIFICATION_PUBLISH_ATTEMPTS"`

	TracingEnabled      bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter     string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint        string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSamplerRatio float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
}

// LoadConfig loads application configuration from .env, config files and environment variables.
func LoadConfig() (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base config file is optional.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env != "" && env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "8375")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("JWT_SECRET", defaultJWTSecret)
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")

	viper.SetDefault("DB_DRIVER", "postgres")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "trashtalk")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_SQLITE_PATH", "trashtalk.db")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)

	viper.SetDefault("REDIS_URL", "localhost:6379")

	viper.SetDefault("WS_HANDSHAKE_TIMEOUT_SECONDS", 10)
	viper.SetDefault("WS_MAX_CONNS_PER_USER", 12)
	viper.SetDefault("WS_MAX_TOTAL_CONNS", 10000)
	viper.SetDefault("WS_SIGNAL_RATE_PER_SECOND", 20.0)
	viper.SetDefault("WS_SIGNAL_BURST", 40)

	viper.SetDefault("NOTIFICATION_PUBLISH_ATTEMPTS", 3)

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)
}

// IsProduction reports whether the service runs with production safeguards.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// HandshakeTimeout is the window an unauthenticated socket has to send its credential.
func (c *Config) HandshakeTimeout() time.Duration {
	if c.WSHandshakeTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.WSHandshakeTimeoutSeconds) * time.Second
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.DBDriver != "" && c.DBDriver != "postgres" && c.DBDriver != "sqlite" {
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	if c.WSHandshakeTimeoutSeconds <= 0 {
		return errors.New("WS_HANDSHAKE_TIMEOUT_SECONDS must be positive")
	}
	if c.WSMaxConnsPerUser <= 0 || c.WSMaxTotalConns <= 0 {
		return errors.New("websocket connection limits must be positive")
	}
	if c.WSSignalRatePerSecond <= 0 || c.WSSignalBurst <= 0 {
		return errors.New("websocket signal rate and burst must be positive")
	}
	if c.NotificationPublishAttempts <= 0 {
		return errors.New("NOTIFICATION_PUBLISH_ATTEMPTS must be positive")
	}

	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBDriver == "sqlite" {
			return errors.New("sqlite is not supported in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
