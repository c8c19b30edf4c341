package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"genescore/internal/errors"

	"github.com/go-playground/validator/v10"
)

// Store backends
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config represents the complete application configuration
type Config struct {
	Database  DatabaseConfig `validate:"required"`
	Server    ServerConfig   `validate:"required"`
	Sources   SourcesConfig
	Refresh   RefreshConfig
	Profiling ProfilingConfig
	LogLevel  string `validate:"omitempty,oneof=ERROR WARN WARNING INFO DEBUG TRACE"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Store string `validate:"required,oneof=postgres memory"`
	URL   string `validate:"required_if=Store postgres"`
}

// ServerConfig holds web server settings
type ServerConfig struct {
	AdminPort string `validate:"required,numeric"`
	ReadPort  string `validate:"required,numeric,nefield=AdminPort"`
	GinMode   string `validate:"omitempty,oneof=debug release test"`
}

// SourcesConfig points at the source seed file
type SourcesConfig struct {
	File  string
	Watch bool
}

// RefreshConfig tunes the recompute worker
type RefreshConfig struct {
	Timeout            time.Duration `validate:"gte=0"`
	Interval           time.Duration `validate:"gte=0"`
	MaxParallelSources int           `validate:"gte=1,lte=64"`
}

// ProfilingConfig holds performance profiling settings
type ProfilingConfig struct {
	Port    string
	Enabled bool
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Store: strings.ToLower(getEnvOrDefault("STORE", StorePostgres)),
			URL:   os.Getenv("DATABASE_URL"),
		},
		Server: ServerConfig{
			AdminPort: getEnvOrDefault("ADMIN_PORT", "8080"),
			ReadPort:  getEnvOrDefault("READ_PORT", "8081"),
			GinMode:   getEnvOrDefault("GIN_MODE", "debug"),
		},
		Sources: SourcesConfig{
			File:  getEnvOrDefault("SOURCES_FILE", ""),
			Watch: getEnvBoolOrDefault("WATCH_SOURCES", false),
		},
		Refresh: RefreshConfig{
			Timeout:            getEnvDurationOrDefault("RECOMPUTE_TIMEOUT", 5*time.Minute),
			Interval:           getEnvDurationOrDefault("REFRESH_INTERVAL", 0),
			MaxParallelSources: getEnvIntOrDefault("MAX_PARALLEL_SOURCES", 4),
		},
		Profiling: ProfilingConfig{
			Port:    getEnvOrDefault("PPROF_PORT", "6060"),
			Enabled: getEnvBoolOrDefault("PPROF_ENABLED", false),
		},
		LogLevel: strings.ToUpper(getEnvOrDefault("LOG_LEVEL", "INFO")),
	}

	if err := Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

// Validate checks a configuration
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return errors.ConfigInvalid(err.Error())
		}
		parts := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
		return errors.ConfigInvalid(strings.Join(parts, "; "))
	}
	if cfg.Sources.Watch && cfg.Sources.File == "" {
		return errors.ConfigInvalid("WATCH_SOURCES requires SOURCES_FILE")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
