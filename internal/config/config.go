package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string
	LogLevel    string
	LogFormat   string

	// Dispatcher settings
	DispatchInterval    time.Duration
	DispatchBatchLimit  int
	MaxDispatchAttempts int

	// WebSocket connection limits
	MaxClients      int64
	MaxClientsPerIP int
	ConnRatePerSec  float64
	ConnRateBurst   int
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var err error
	if cfg.DispatchInterval, err = getDuration("DISPATCH_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.DispatchInterval < time.Second {
		return nil, fmt.Errorf("DISPATCH_INTERVAL must be at least 1s, got %s", cfg.DispatchInterval)
	}

	if cfg.DispatchBatchLimit, err = getInt("DISPATCH_BATCH_LIMIT", 100); err != nil {
		return nil, err
	}
	if cfg.DispatchBatchLimit < 1 {
		return nil, fmt.Errorf("DISPATCH_BATCH_LIMIT must be positive, got %d", cfg.DispatchBatchLimit)
	}

	if cfg.MaxDispatchAttempts, err = getInt("MAX_DISPATCH_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.MaxDispatchAttempts < 1 {
		return nil, fmt.Errorf("MAX_DISPATCH_ATTEMPTS must be positive, got %d", cfg.MaxDispatchAttempts)
	}

	maxClients, err := getInt("MAX_CLIENTS", 1000)
	if err != nil {
		return nil, err
	}
	cfg.MaxClients = int64(maxClients)

	if cfg.MaxClientsPerIP, err = getInt("MAX_CLIENTS_PER_IP", 20); err != nil {
		return nil, err
	}

	if cfg.ConnRatePerSec, err = getFloat("CONN_RATE_PER_SEC", 10); err != nil {
		return nil, err
	}
	if cfg.ConnRateBurst, err = getInt("CONN_RATE_BURST", 10); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration (e.g. 60s): %w", key, err)
	}
	return d, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}
