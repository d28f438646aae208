package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment variables.
// It is loaded once at startup and treated as immutable afterwards; every
// component that needs a setting receives it explicitly at construction.
type Config struct {
	PGURL  string
	AVKey  string
	OpsKey string
	Port   string

	// Scheduling defaults. CLI flags override these per run.
	StalenessHours   int
	FailureThreshold int
	Workers          int
	RatePerMinute    int
	RunTimeout       time.Duration
}

// Load reads configuration from environment variables. A .env file in the
// working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	pgURL := os.Getenv("PG_URL")
	if pgURL == "" {
		return nil, fmt.Errorf("PG_URL environment variable is required")
	}

	avKey := os.Getenv("AV_KEY")
	if avKey == "" {
		return nil, fmt.Errorf("AV_KEY environment variable is required")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	cfg := &Config{
		PGURL:            pgURL,
		AVKey:            avKey,
		OpsKey:           os.Getenv("OPS_KEY"),
		Port:             port,
		StalenessHours:   intEnv("STALENESS_HOURS", 24),
		FailureThreshold: intEnv("FAILURE_THRESHOLD", 3),
		Workers:          intEnv("WORKERS", 4),
		RatePerMinute:    intEnv("RATE_PER_MINUTE", 75),
		RunTimeout:       time.Duration(intEnv("RUN_TIMEOUT_MINUTES", 0)) * time.Minute,
	}

	if cfg.Workers < 1 {
		return nil, fmt.Errorf("WORKERS must be at least 1")
	}
	if cfg.RatePerMinute < 1 {
		return nil, fmt.Errorf("RATE_PER_MINUTE must be at least 1")
	}

	return cfg, nil
}

func intEnv(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
