// Package config loads all service settings from KEYGATE_* environment
// variables. Nothing is read from files; every knob has a default except
// the signing secrets, which must be provided.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"keygate.org/internal/auth"
)

// Config holds all application configuration.
type Config struct {
	Server ServerConfig
	DB     DBConfig
	Tokens TokenConfig
	Rate   RateConfig

	BcryptCost int
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

// DBConfig holds PostgreSQL configuration. An empty DSN selects the
// in-memory store, which is intended for development only.
type DBConfig struct {
	DSN string
}

// TokenConfig holds the signing secrets and lifetimes for both token kinds.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	SweepInterval time.Duration
}

// RateConfig throttles the credential endpoints.
type RateConfig struct {
	AuthPerSecond float64
	AuthBurst     int
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("KEYGATE_ADDR", ":8080"),
			ReadTimeout:     getEnvDuration("KEYGATE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("KEYGATE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("KEYGATE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("KEYGATE_SHUTDOWN_TIMEOUT", 10*time.Second),
			MaxBodyBytes:    getEnvInt64("KEYGATE_MAX_BODY_BYTES", 1<<20),
		},
		DB: DBConfig{
			DSN: getEnv("KEYGATE_PG_DSN", ""),
		},
		Tokens: TokenConfig{
			AccessSecret:  os.Getenv("KEYGATE_ACCESS_SECRET"),
			RefreshSecret: os.Getenv("KEYGATE_REFRESH_SECRET"),
			AccessTTL:     getEnvDuration("KEYGATE_ACCESS_TTL", auth.DefaultAccessTTL),
			RefreshTTL:    getEnvDuration("KEYGATE_REFRESH_TTL", auth.DefaultRefreshTTL),
			Issuer:        getEnv("KEYGATE_ISSUER", "keygate"),
			SweepInterval: getEnvDuration("KEYGATE_BLACKLIST_SWEEP", 5*time.Minute),
		},
		Rate: RateConfig{
			AuthPerSecond: getEnvFloat("KEYGATE_AUTH_RATE", 5),
			AuthBurst:     getEnvInt("KEYGATE_AUTH_BURST", 10),
		},
		BcryptCost: getEnvInt("KEYGATE_BCRYPT_COST", 0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server address is required")
	}
	if c.Tokens.AccessSecret == "" {
		return fmt.Errorf("KEYGATE_ACCESS_SECRET is required")
	}
	if c.Tokens.RefreshSecret == "" {
		return fmt.Errorf("KEYGATE_REFRESH_SECRET is required")
	}
	if c.Tokens.AccessSecret == c.Tokens.RefreshSecret {
		return fmt.Errorf("access and refresh secrets must differ")
	}
	if c.Tokens.AccessTTL <= 0 || c.Tokens.RefreshTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.Rate.AuthPerSecond <= 0 || c.Rate.AuthBurst <= 0 {
		return fmt.Errorf("auth rate limit must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
