package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds the adaptflow process configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath      string `json:"db_path"`
	Persist     bool   `json:"persist"`
	LogLevel    string `json:"log_level"`
	PoolSize    int    `json:"pool_size"`
	TuningFile  string `json:"tuning_file,omitempty"`
	MetricsAddr string `json:"metrics_addr,omitempty"`
}

func defaultConfig() Config {
	return Config{
		DBPath:   filepath.Join(adaptflowDir(), "adaptflow.db"),
		LogLevel: "info",
	}
}

func adaptflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".adaptflow"
	}
	return filepath.Join(home, ".adaptflow")
}

func settingsPath() string {
	return filepath.Join(adaptflowDir(), "settings.json")
}

// loadConfig layers the settings file at path and the environment over the
// defaults. A missing settings file is not an error; a malformed one is.
func loadConfig(path string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig()

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if v := getenv("ADAPTFLOW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := getenv("ADAPTFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("ADAPTFLOW_POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("ADAPTFLOW_POOL_SIZE: %w", err)
		}
		cfg.PoolSize = n
	}
	if v := getenv("ADAPTFLOW_TUNING_FILE"); v != "" {
		cfg.TuningFile = v
	}
	if v := getenv("ADAPTFLOW_PERSIST"); v != "" {
		cfg.Persist = v == "true" || v == "1"
	}
	if v := getenv("ADAPTFLOW_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}

	if cfg.PoolSize < 0 {
		return Config{}, fmt.Errorf("pool_size must not be negative, got %d", cfg.PoolSize)
	}
	return cfg, nil
}

// writeConfig stores cfg as the settings file, creating its directory.
func writeConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
