package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFORMER_DATA_DIR", filepath.Join(t.TempDir(), "data"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 298.15, cfg.Temperature)
	assert.Equal(t, 1, cfg.Cycles)
	assert.Equal(t, 0.1, cfg.TimeStep)
	assert.Equal(t, 0.7, cfg.Threshold)
	assert.Equal(t, 8, cfg.QueueBatchSize)
	assert.False(t, cfg.Backup.Enabled())
	assert.True(t, filepath.IsAbs(cfg.DataDir))
	assert.DirExists(t, cfg.DataDir)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CONFORMER_DATA_DIR", t.TempDir())
	t.Setenv("CONFORMER_PORT", "9001")
	t.Setenv("CONFORMER_TEMPERATURE", "310.0")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("BACKUP_S3_BUCKET", "conformer-backups")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Port)
	assert.Equal(t, 310.0, cfg.Temperature)
	assert.True(t, cfg.DevMode)
	assert.True(t, cfg.Backup.Enabled())
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("CONFORMER_DATA_DIR", t.TempDir())
	t.Setenv("CONFORMER_PORT", "99999")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("CONFORMER_DATA_DIR", t.TempDir())
	t.Setenv("CONFORMER_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
}
