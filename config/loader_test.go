package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plateflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "plateflow.db", cfg.Database.Path)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.MonitorInterval)
	assert.Equal(t, 2000, cfg.Scheduler.SubmitCap)
	assert.True(t, cfg.Fusion.DeleteFragments)
}

func TestLoader_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
log:
  level: debug
scheduler:
  monitor_interval: 30s
  submit_cap: 500
resources:
  run_cores: 4
`)
	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.MonitorInterval)
	assert.Equal(t, 500, cfg.Scheduler.SubmitCap)
	assert.Equal(t, 4, cfg.Resources.RunCores)
	// Untouched sections keep their defaults.
	assert.Equal(t, "plateflow.db", cfg.Database.Path)
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
database:
  path: from-file.db
`)
	t.Setenv("PLATEFLOW_DATABASE_PATH", "from-env.db")
	t.Setenv("PLATEFLOW_SCHEDULER_MONITOR_INTERVAL", "1m")
	t.Setenv("PLATEFLOW_FUSION_DELETE_FRAGMENTS", "false")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "from-env.db", cfg.Database.Path)
	assert.Equal(t, time.Minute, cfg.Scheduler.MonitorInterval)
	assert.False(t, cfg.Fusion.DeleteFragments)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/plateflow.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoader_Validation(t *testing.T) {
	path := writeConfigFile(t, `
log:
  level: loud
`)
	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log level")

	path = writeConfigFile(t, `
scheduler:
  submit_cap: -1
`)
	_, err = NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)

	_, err = NewLoader().
		WithValidator(func(*Config) error { return assert.AnError }).
		Load()
	require.Error(t, err)
}

func TestConfig_BuildLogger(t *testing.T) {
	cfg := DefaultConfig()
	logger, err := cfg.BuildLogger()
	require.NoError(t, err)
	logger.Sync()

	cfg.Log.Format = "json"
	logger, err = cfg.BuildLogger()
	require.NoError(t, err)
	logger.Sync()
}
