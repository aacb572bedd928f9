package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/voss/memguard/internal/config"
	"codeberg.org/voss/memguard/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "memguard.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
interval = 10
throttle_window = 15
warning_mb = 70
critical_mb = 120
emergency_mb = 180
history_size = 50
sampler = "heap"
monitor = true
gc_nudge = true
journal = true
journal_db = "/tmp/memguard-test/journal.db"
log_level = "debug"
`)
	t.Setenv("MEMGUARD_CONFIG", path)

	cfg, err := config.LoadWithArgs(nil)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Interval)
	assert.Equal(t, 15, cfg.ThrottleWindow)
	assert.Equal(t, 70, cfg.WarningMB)
	assert.Equal(t, 120, cfg.CriticalMB)
	assert.Equal(t, 180, cfg.EmergencyMB)
	assert.Equal(t, 50, cfg.HistorySize)
	assert.Equal(t, "heap", cfg.Sampler)
	assert.True(t, cfg.Monitor)
	assert.True(t, cfg.GCNudge)
	assert.True(t, cfg.Journal)
	assert.Equal(t, "/tmp/memguard-test/journal.db", cfg.JournalDB)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MEMGUARD_CONFIG", "")

	cfg, err := config.LoadWithArgs(nil)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Interval)
	assert.Equal(t, 5, cfg.ThrottleWindow)
	assert.Equal(t, 60, cfg.WarningMB)
	assert.Equal(t, 100, cfg.CriticalMB)
	assert.Equal(t, 140, cfg.EmergencyMB)
	assert.Equal(t, 120, cfg.HistorySize)
	assert.Equal(t, "system", cfg.Sampler)
	assert.False(t, cfg.Monitor)
	assert.False(t, cfg.Journal)
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
warning_mb = 70
log_level = "warning"
`)
	t.Setenv("MEMGUARD_CONFIG", path)

	cfg, err := config.LoadWithArgs([]string{"--warning-mb", "80", "--log-level", "debug"})
	require.NoError(t, err)

	assert.Equal(t, 80, cfg.WarningMB)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestInvalidConfigFile(t *testing.T) {
	path := writeConfig(t, "This is not a valid TOML file\n")
	t.Setenv("MEMGUARD_CONFIG", path)

	_, err := config.LoadWithArgs(nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
}

func TestInvalidLogLevel(t *testing.T) {
	path := writeConfig(t, `log_level = "shouting"`)
	t.Setenv("MEMGUARD_CONFIG", path)

	_, err := config.LoadWithArgs(nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidLogLevel))
}

func TestThresholdOrderIsEnforced(t *testing.T) {
	path := writeConfig(t, `
warning_mb = 150
critical_mb = 100
emergency_mb = 140
`)
	t.Setenv("MEMGUARD_CONFIG", path)

	_, err := config.LoadWithArgs(nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidThresholds))
}

func TestInvalidInterval(t *testing.T) {
	path := writeConfig(t, `interval = -1`)
	t.Setenv("MEMGUARD_CONFIG", path)

	_, err := config.LoadWithArgs(nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidInterval))
}

func TestInvalidSampler(t *testing.T) {
	path := writeConfig(t, `sampler = "psychic"`)
	t.Setenv("MEMGUARD_CONFIG", path)

	_, err := config.LoadWithArgs(nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidConfig))
}
