package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"entropy-planner/internal/clock"
)

// Config keeps runtime settings for the planner.
type Config struct {
	TelegramToken string
	DatabaseURL   string
	CutoffHour    int
	SweepInterval time.Duration
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		TelegramToken: strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		CutoffHour:    parseCutoffHour(strings.TrimSpace(os.Getenv("CUTOFF_HOUR"))),
		SweepInterval: parseInterval(strings.TrimSpace(os.Getenv("SWEEP_INTERVAL_HOURS"))),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "entropy_planner.db"
	}

	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = time.Hour
	}

	if cfg.TelegramToken == "" {
		return cfg, fmt.Errorf("TELEGRAM_TOKEN is required")
	}

	return cfg, nil
}

func parseCutoffHour(raw string) int {
	if raw == "" {
		return clock.DefaultCutoffHour
	}
	hour, err := strconv.Atoi(raw)
	if err != nil || hour < 0 || hour > 23 {
		return clock.DefaultCutoffHour
	}
	return hour
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}
