package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Config holds all configuration for TruthScope.
type Config struct {
	Server   ServerConfig
	Backend  BackendConfig
	Database DatabaseConfig
	Redis    RedisConfig
}

type ServerConfig struct {
	Port     int
	Env      string
	LogLevel string
	// APIKeyHash is a bcrypt hash; when set, the local API requires a
	// matching bearer key.
	APIKeyHash string
	// RateLimit caps submissions per client per minute; 0 disables it.
	RateLimit int
}

// BackendConfig points at the analysis backend.
type BackendConfig struct {
	BaseURL      string
	// Timeout bounds status fetches and readiness probes; 0 disables it.
	// Uploads are never cut off by it.
	Timeout      time.Duration
	PollInterval time.Duration
}

// DatabaseConfig is optional; an empty URL disables analysis history.
type DatabaseConfig struct {
	URL             string
	MaxConns        int
	ConnMaxLifetime time.Duration
}

// RedisConfig is optional; an empty URL disables the snapshot cache and
// rate limiting.
type RedisConfig struct {
	URL         string
	SnapshotTTL time.Duration
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any value is invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:       envInt("TRUTHSCOPE_PORT", 8080),
			Env:        envString("TRUTHSCOPE_ENV", "development"),
			LogLevel:   strings.ToLower(envString("TRUTHSCOPE_LOG_LEVEL", "info")),
			APIKeyHash: os.Getenv("TRUTHSCOPE_API_KEY_HASH"),
			RateLimit:  envInt("TRUTHSCOPE_RATE_LIMIT", 10),
		},
		Backend: BackendConfig{
			BaseURL:      strings.TrimRight(envString("TRUTHSCOPE_API_BASE_URL", "http://localhost:8000"), "/"),
			Timeout:      envDuration("TRUTHSCOPE_HTTP_TIMEOUT", 30*time.Second),
			PollInterval: envDuration("TRUTHSCOPE_POLL_INTERVAL", time.Second),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxConns:        envInt("DATABASE_MAX_CONNS", 10),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:         os.Getenv("REDIS_URL"),
			SnapshotTTL: envDuration("TRUTHSCOPE_SNAPSHOT_TTL", 30*time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	return logLevels[c.Server.LogLevel]
}

func (c *Config) validate() error {
	if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		return fmt.Errorf("TRUTHSCOPE_API_BASE_URL must start with http:// or https://, got %q", c.Backend.BaseURL)
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("TRUTHSCOPE_HTTP_TIMEOUT must not be negative, got %s", c.Backend.Timeout)
	}
	if c.Backend.PollInterval <= 0 {
		return fmt.Errorf("TRUTHSCOPE_POLL_INTERVAL must be positive, got %s", c.Backend.PollInterval)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("TRUTHSCOPE_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if _, ok := logLevels[c.Server.LogLevel]; !ok {
		return fmt.Errorf("TRUTHSCOPE_LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Server.LogLevel)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("TRUTHSCOPE_RATE_LIMIT must not be negative, got %d", c.Server.RateLimit)
	}
	if c.Server.APIKeyHash != "" {
		if _, err := bcrypt.Cost([]byte(c.Server.APIKeyHash)); err != nil {
			return fmt.Errorf("TRUTHSCOPE_API_KEY_HASH is not a bcrypt hash: %w", err)
		}
	}

	if c.Database.URL != "" &&
		!strings.HasPrefix(c.Database.URL, "postgres://") && !strings.HasPrefix(c.Database.URL, "postgresql://") {
		return fmt.Errorf("DATABASE_URL must start with postgres:// or postgresql://")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("DATABASE_MAX_CONNS must be at least 1, got %d", c.Database.MaxConns)
	}

	if c.Redis.URL != "" &&
		!strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://")
	}
	if c.Redis.SnapshotTTL <= 0 {
		return fmt.Errorf("TRUTHSCOPE_SNAPSHOT_TTL must be positive, got %s", c.Redis.SnapshotTTL)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
