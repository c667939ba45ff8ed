// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for probes and Prometheus)
	HealthPort string

	CORSOrigins []string
}

// DatabaseConfig holds the relational store configuration
type DatabaseConfig struct {
	// Driver is "postgres" in deployments; tests and local runs may use
	// "sqlite3".
	Driver      string
	URL         string
	MaxConns    int
	MaxIdle     int
	MaxLifetime time.Duration
	PingTimeout time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string
}

// Load reads configuration from DASHGATE_* environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("DASHGATE_HOST", "0.0.0.0"),
			Port:            getEnv("DASHGATE_PORT", "8080"),
			ReadTimeout:     getEnvDuration("DASHGATE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("DASHGATE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("DASHGATE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("DASHGATE_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("DASHGATE_HEALTH_PORT", "9090"),
			CORSOrigins:     getEnvList("DASHGATE_CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Driver:      getEnv("DASHGATE_DB_DRIVER", "postgres"),
			URL:         getEnv("DASHGATE_DB_URL", ""),
			MaxConns:    getEnvInt("DASHGATE_DB_MAX_CONNS", 20),
			MaxIdle:     getEnvInt("DASHGATE_DB_MAX_IDLE", 5),
			MaxLifetime: getEnvDuration("DASHGATE_DB_MAX_LIFETIME", 30*time.Minute),
			PingTimeout: getEnvDuration("DASHGATE_DB_PING_TIMEOUT", 5*time.Second),
		},
		Logging: LoggingConfig{
			Level: getEnv("DASHGATE_LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
