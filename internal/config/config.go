package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all application configuration. A struct, not package
// globals, so it stays explicit and testable.
type Config struct {
	// Server
	ServerAddr string
	Env        string // "development" or "production"
	CORSOrigin string

	// Database
	DatabaseURI string

	// Auth
	AuthSecret string

	// Logging
	LogLevel string

	// Redis (for PubSub horizontal scaling)
	RedisURL   string // e.g., "redis://localhost:6379"
	PubSubType string // "memory" or "redis"
}

// Load reads configuration from environment variables, falling back to a
// local .env file in development (godotenv, matching the rest of the
// pack's bootstrap convention). Fails fatally via validate() if a
// required secret is missing.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerAddr:  "0.0.0.0:" + getEnvOrDefault("PORT", "3001"),
		Env:         getEnvOrDefault("APP_ENV", "development"),
		CORSOrigin:  getEnvOrDefault("CORS_ORIGIN", "*"),
		DatabaseURI: os.Getenv("DATABASE_URI"),
		AuthSecret:  os.Getenv("AUTH_SECRET"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		RedisURL:    os.Getenv("REDIS_URL"),
		PubSubType:  getEnvOrDefault("PUBSUB_TYPE", "memory"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate enforces the broker's two hard startup requirements. Both are
// Fatal per the error-handling design: the process refuses to start
// rather than run with an undefined auth secret or no datastore.
func (c *Config) validate() error {
	if c.DatabaseURI == "" {
		return fmt.Errorf("DATABASE_URI is required")
	}
	if c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
