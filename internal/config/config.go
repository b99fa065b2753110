package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

// AppConfig is the process configuration read once at startup. Gameplay
// tunables that can change at runtime live in PointsProfile instead.
type AppConfig struct {
	DatabaseDriver string // postgres | mysql | sqlite | memory
	DatabaseURL    string
	SQLitePath     string

	RedisURL string

	Tickrate      float64
	StartSpeedCap float64

	PointsProfilePath string

	DispatchQueueSize int
	DispatchRetries   int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		DatabaseDriver:    "memory",
		SQLitePath:        "surftimer.db",
		Tickrate:          64,
		StartSpeedCap:     350,
		DispatchQueueSize: 256,
		DispatchRetries:   3,
	}

	if v := strings.TrimSpace(os.Getenv("DATABASE_DRIVER")); v != "" {
		cfg.DatabaseDriver = strings.ToLower(v)
	}
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if v := strings.TrimSpace(os.Getenv("SQLITE_PATH")); v != "" {
		cfg.SQLitePath = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.PointsProfilePath = strings.TrimSpace(os.Getenv("POINTS_PROFILE"))

	if v := strings.TrimSpace(os.Getenv("TICKRATE")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Tickrate = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("START_SPEED_CAP")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.StartSpeedCap = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("DISPATCH_QUEUE_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DispatchQueueSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DISPATCH_RETRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.DispatchRetries = n
		}
	}

	switch cfg.DatabaseDriver {
	case "postgres", "mysql":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for driver " + cfg.DatabaseDriver)
		}
	case "sqlite", "memory":
	default:
		return nil, errors.New("unsupported DATABASE_DRIVER: " + cfg.DatabaseDriver)
	}

	return cfg, nil
}
