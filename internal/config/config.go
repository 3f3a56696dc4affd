package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the process settings read from the environment.
type Config struct {
	Port               string
	DatabaseDSN        string // empty selects the in-memory stores
	RedisAddr          string // empty disables the redis notification channel
	RedisChannel       string
	EscalationSchedule string
	JWTSecret          string
	LogLevel           string
	LogDevelopment     bool
	WorkflowsFile      string
	DirectoryFile      string
	RetryMaxAttempts   uint
	RetryInitial       time.Duration
}

// envFiles are tried in order; the first one found wins.
var envFiles = []string{".env", "../.env", "../../.env"}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	for _, p := range envFiles {
		if _, err := os.Stat(p); err == nil {
			if err := godotenv.Load(p); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", p, err)
			}
			break
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "3001"),
		DatabaseDSN:        os.Getenv("DATABASE_DSN"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisChannel:       getEnv("REDIS_CHANNEL", "approvals:notifications"),
		EscalationSchedule: getEnv("ESCALATION_SCHEDULE", "@every 5m"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		WorkflowsFile:      os.Getenv("WORKFLOWS_FILE"),
		DirectoryFile:      os.Getenv("DIRECTORY_FILE"),
	}

	var err error
	if cfg.LogDevelopment, err = getBool("LOG_DEVELOPMENT", false); err != nil {
		return nil, err
	}
	attempts, err := getInt("STORE_RETRY_MAX_ATTEMPTS", 4)
	if err != nil {
		return nil, err
	}
	if attempts < 1 {
		return nil, fmt.Errorf("STORE_RETRY_MAX_ATTEMPTS must be at least 1, got %d", attempts)
	}
	cfg.RetryMaxAttempts = uint(attempts)

	initialMS, err := getInt("STORE_RETRY_INITIAL_MS", 100)
	if err != nil {
		return nil, err
	}
	cfg.RetryInitial = time.Duration(initialMS) * time.Millisecond

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
