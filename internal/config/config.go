// Package config loads process configuration from the environment,
// grounded on the teacher's internal/config/config.go (the env-var +
// getEnvAsX helper idiom, godotenv bootstrap, and a Validate pass).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process-wide configuration for the control surface and the
// engine it drives.
type Config struct {
	Server   ServerConfig
	Logging  LoggingConfig
	Engine   EngineConfig
	Database DatabaseConfig
}

// ServerConfig configures the gin-gonic HTTP control surface (spec §6).
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig selects the slog handler shape.
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// EngineConfig governs defaults and bounds for the Scheduler and the
// Execution Registry.
type EngineConfig struct {
	DefaultParallelLimit int
	DefaultNodeTimeoutS  int
	EventQueueSize       int
	RetentionTTL         time.Duration
	RetentionSweep       time.Duration
	ExprCacheSize        int
}

// DatabaseConfig configures the bun/Postgres-backed DocumentStore.
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Load reads FLOWENGINE_* environment variables (optionally from a .env
// file, if present) and returns a validated Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("FLOWENGINE_PORT", 8090),
			Host:            getEnv("FLOWENGINE_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("FLOWENGINE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("FLOWENGINE_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("FLOWENGINE_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("FLOWENGINE_LOG_LEVEL", "info"),
			Format: getEnv("FLOWENGINE_LOG_FORMAT", "json"),
		},
		Engine: EngineConfig{
			DefaultParallelLimit: getEnvAsInt("FLOWENGINE_PARALLEL_LIMIT", 4),
			DefaultNodeTimeoutS:  getEnvAsInt("FLOWENGINE_NODE_TIMEOUT_S", 30),
			EventQueueSize:       getEnvAsInt("FLOWENGINE_EVENT_QUEUE_SIZE", 1024),
			RetentionTTL:         getEnvAsDuration("FLOWENGINE_RETENTION_TTL", 24*time.Hour),
			RetentionSweep:       getEnvAsDuration("FLOWENGINE_RETENTION_SWEEP", 5*time.Minute),
			ExprCacheSize:        getEnvAsInt("FLOWENGINE_EXPR_CACHE_SIZE", 512),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("FLOWENGINE_DATABASE_DSN", ""),
			MaxOpenConns:    getEnvAsInt("FLOWENGINE_DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("FLOWENGINE_DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("FLOWENGINE_DB_CONN_MAX_LIFETIME", time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the loaded configuration for internally-inconsistent or
// out-of-range values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.Engine.DefaultParallelLimit < 1 {
		return fmt.Errorf("parallel limit must be at least 1")
	}
	if c.Engine.EventQueueSize < 1 {
		return fmt.Errorf("event queue size must be at least 1")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}
