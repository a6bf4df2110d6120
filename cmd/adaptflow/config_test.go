package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.json"), envFrom(nil))
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Persist)
}

func TestLoadConfig_Layering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"db_path":"/data/a.db","log_level":"debug","pool_size":4}`), 0o644))

	cfg, err := loadConfig(path, envFrom(nil))
	require.NoError(t, err)
	assert.Equal(t, "/data/a.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 4, cfg.PoolSize)

	cfg, err = loadConfig(path, envFrom(map[string]string{
		"ADAPTFLOW_LOG_LEVEL":    "warn",
		"ADAPTFLOW_POOL_SIZE":    "2",
		"ADAPTFLOW_PERSIST":      "1",
		"ADAPTFLOW_TUNING_FILE":  "/etc/adaptflow/tuning.yaml",
		"ADAPTFLOW_METRICS_ADDR": ":9464",
	}))
	require.NoError(t, err)
	assert.Equal(t, "/data/a.db", cfg.DBPath, "settings file survives when env is unset")
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 2, cfg.PoolSize)
	assert.True(t, cfg.Persist)
	assert.Equal(t, "/etc/adaptflow/tuning.yaml", cfg.TuningFile)
	assert.Equal(t, ":9464", cfg.MetricsAddr)
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"pool_size":`), 0o644))

	_, err := loadConfig(bad, envFrom(nil))
	assert.Error(t, err)

	_, err = loadConfig(filepath.Join(dir, "missing.json"), envFrom(map[string]string{"ADAPTFLOW_POOL_SIZE": "many"}))
	assert.ErrorContains(t, err, "ADAPTFLOW_POOL_SIZE")

	_, err = loadConfig(filepath.Join(dir, "missing.json"), envFrom(map[string]string{"ADAPTFLOW_POOL_SIZE": "-1"}))
	assert.ErrorContains(t, err, "pool_size")
}

func TestWriteConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	want := Config{DBPath: "/tmp/x.db", Persist: true, LogLevel: "error", PoolSize: 3}
	require.NoError(t, writeConfig(path, want))

	got, err := loadConfig(path, envFrom(nil))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadTables(t *testing.T) {
	tables, err := loadTables(Config{PoolSize: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, tables.Learning.PoolSize)
	assert.Len(t, tables.Archetypes, 4)

	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte("learning:\n  warm_up: 10ms\n"), 0o644))
	tables, err = loadTables(Config{TuningFile: path})
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, tables.Learning.WarmUp.Std())
	assert.Equal(t, 8, tables.Learning.PoolSize)

	_, err = loadTables(Config{TuningFile: filepath.Join(t.TempDir(), "absent.yaml")})
	assert.Error(t, err)
}
