// Package config loads server configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds everything the server needs to start.
type Config struct {
	HTTPAddr      string
	DatabaseURL   string
	RedisURL      string
	MigrationsDir string
	TokenSecret   []byte
	LogLevel      string
	LogPretty     bool
	RateLimit     bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present. DATABASE_URL and REDIS_URL are
// required.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:      getenv("AVALON_HTTP_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		MigrationsDir: getenv("MIGRATIONS_DIR", "migrations"),
		TokenSecret:   []byte(os.Getenv("WEBSOCKET_TOKEN_SECRET")),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		LogPretty:     getbool("LOG_PRETTY", false),
		RateLimit:     getbool("RATE_LIMIT", true),
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL environment variable is required")
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getbool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
