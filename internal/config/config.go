package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/mkravets/weather-sync/internal/weather"
)

type AppConfig struct {
	OpenWeatherAPIKey string

	// DatabaseURI points at the remote favorites store. Empty runs the
	// in-memory channel (favorites survive only the process lifetime).
	DatabaseURI string

	// SnapshotDBPath is the local SQLite file for offline snapshots. The
	// special value "memory" runs the in-memory store (cold cache on every
	// start).
	SnapshotDBPath string

	// RefreshInterval controls how often favorite weather is refreshed.
	RefreshInterval time.Duration

	HTTPTimeout time.Duration
	DefaultUnit weather.Unit
	Port        string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.DatabaseURI = os.Getenv("DATABASE_URI")
	cfg.SnapshotDBPath = getenvDefault("SNAPSHOT_DB_PATH", "weather-sync.db")

	intervalStr := getenvDefault("REFRESH_INTERVAL", "15m")
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		return nil, fmt.Errorf("invalid REFRESH_INTERVAL: %w", err)
	}
	cfg.RefreshInterval = interval

	timeoutStr := getenvDefault("HTTP_TIMEOUT", "10s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	unit, ok := weather.ParseUnit(getenvDefault("DEFAULT_UNIT", "metric"))
	if !ok {
		return nil, fmt.Errorf("invalid DEFAULT_UNIT: want metric or imperial")
	}
	cfg.DefaultUnit = unit

	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
