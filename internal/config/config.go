package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

const (
	LocalStoreSQLite = "sqlite"
	LocalStoreRedis  = "redis"
)

type Config struct {
	ServerPort           string
	DatabaseURL          string
	RedisURL             string
	LocalStore           string
	LocalStorePath       string
	JWTSecret            string
	JWTExpiry            time.Duration
	ConnectivityInterval time.Duration
	Location             *time.Location
	LogLevel             slog.Level
	AdminEmail           string
	AdminPassword        string
	AdminFacility        string
}

func LoadConfig() (*Config, error) {
	expiry, err := time.ParseDuration(getEnv("JWT_EXPIRY", "24h"))
	if err != nil {
		return nil, errors.New("invalid JWT_EXPIRY format")
	}

	interval, err := time.ParseDuration(getEnv("CONNECTIVITY_INTERVAL", "15s"))
	if err != nil || interval <= 0 {
		return nil, errors.New("invalid CONNECTIVITY_INTERVAL format")
	}

	loc, err := time.LoadLocation(getEnv("FACILITY_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid FACILITY_TIMEZONE: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	cfg := &Config{
		ServerPort:           getEnv("SERVER_PORT", "8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             os.Getenv("REDIS_URL"),
		LocalStore:           strings.ToLower(getEnv("LOCAL_STORE", LocalStoreSQLite)),
		LocalStorePath:       getEnv("LOCAL_STORE_PATH", "episync.db"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		JWTExpiry:            expiry,
		ConnectivityInterval: interval,
		Location:             loc,
		LogLevel:             level,
		AdminEmail:           os.Getenv("ADMIN_EMAIL"),
		AdminPassword:        os.Getenv("ADMIN_PASSWORD"),
		AdminFacility:        os.Getenv("ADMIN_FACILITY"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.LocalStore != LocalStoreSQLite && cfg.LocalStore != LocalStoreRedis {
		return nil, fmt.Errorf("LOCAL_STORE must be %q or %q", LocalStoreSQLite, LocalStoreRedis)
	}

	if cfg.AdminEmail != "" && cfg.AdminPassword == "" {
		return nil, errors.New("ADMIN_PASSWORD is required when ADMIN_EMAIL is set")
	}

	return cfg, nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
