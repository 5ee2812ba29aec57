package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultAllowedOrigins = "http://localhost:5173,http://127.0.0.1:5173"

type Config struct {
	DBFile            string
	APIAddr           string
	AdminAddr         string
	AllowedOrigins    []string
	ShutdownTimeout   time.Duration
	BroadcastDedupTTL time.Duration
	ConnectionBuffer  int
}

// Load reads the configuration from the environment. Values from envFile, when it
// exists, fill in variables that are not already set.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	shutdownTimeout, err := time.ParseDuration(getEnv("SHUTDOWN_TIMEOUT", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	dedupTTL, err := time.ParseDuration(getEnv("BROADCAST_DEDUP_TTL", "1m"))
	if err != nil {
		return nil, fmt.Errorf("invalid BROADCAST_DEDUP_TTL: %w", err)
	}

	buffer, err := strconv.Atoi(getEnv("CONNECTION_BUFFER", "64"))
	if err != nil {
		return nil, fmt.Errorf("invalid CONNECTION_BUFFER: %w", err)
	}

	cfg := &Config{
		DBFile:            getEnv("CHAT_DB", "chatrelay.db"),
		APIAddr:           getEnv("API_ADDR", ":8080"),
		AdminAddr:         getEnv("ADMIN_ADDR", "localhost:8081"),
		AllowedOrigins:    splitList(getEnv("ALLOWED_ORIGINS", defaultAllowedOrigins)),
		ShutdownTimeout:   shutdownTimeout,
		BroadcastDedupTTL: dedupTTL,
		ConnectionBuffer:  buffer,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DBFile) == "" {
		return fmt.Errorf("CHAT_DB is required")
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be greater than 0")
	}

	if c.BroadcastDedupTTL <= 0 {
		return fmt.Errorf("BROADCAST_DEDUP_TTL must be greater than 0")
	}

	if c.ConnectionBuffer <= 0 {
		return fmt.Errorf("CONNECTION_BUFFER must be greater than 0")
	}

	return nil
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
