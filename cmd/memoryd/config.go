package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all memoryd configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath       string `json:"db_path"`
	LogLevel     string `json:"log_level"`
	PoolSize     int    `json:"pool_size"`
	TickInterval string `json:"tick_interval"`
}

func defaultConfig() Config {
	return Config{
		DBPath:       filepath.Join(memorydDir(), "memoryd.db"),
		LogLevel:     "info",
		PoolSize:     4,
		TickInterval: "30s",
	}
}

func memorydDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".memoryd"
	}
	return filepath.Join(home, ".memoryd")
}

func settingsPath() string {
	return filepath.Join(memorydDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("MEMORYD_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("MEMORYD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MEMORYD_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolSize = n
		}
	}
	if v := os.Getenv("MEMORYD_TICK_INTERVAL"); v != "" {
		cfg.TickInterval = v
	}

	return cfg
}

// tickInterval parses the configured scheduler tick, falling back to
// the default on garbage.
func (c Config) tickInterval() time.Duration {
	d, err := time.ParseDuration(c.TickInterval)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}
