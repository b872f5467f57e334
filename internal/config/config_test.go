package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOps_Defaults(t *testing.T) {
	originalDir, _ := os.Getwd()
	tmpDir := t.TempDir()
	os.Chdir(tmpDir)
	defer os.Chdir(originalDir)

	cfg, err := LoadOps()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8765, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, 3*time.Second, cfg.Task.StopGrace)
	assert.Equal(t, 500, cfg.Task.HistoryCap)

	assert.Equal(t, 500*time.Millisecond, cfg.LogTail.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.LogTail.AppearGrace)

	assert.Equal(t, 15*time.Second, cfg.Notify.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Notify.RetryBaseDelay)
	assert.Equal(t, 3, cfg.Notify.RetryAttempts)

	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOps_WithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := tmpDir + "/config.yaml"

	configContent := `
server:
  host: "127.0.0.1"
  port: 9090

task:
  stopgrace: 5s
  historycap: 1000

loglevel: "warn"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	originalDir, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(originalDir)

	cfg, err := LoadOps()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Task.StopGrace)
	assert.Equal(t, 1000, cfg.Task.HistoryCap)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestServerConfig_Fields(t *testing.T) {
	cfg := ServerConfig{
		Host:         "localhost",
		Port:         8765,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 8765, cfg.Port)
}

func TestTaskConfig_Fields(t *testing.T) {
	cfg := TaskConfig{StopGrace: 3 * time.Second, HistoryCap: 500}
	assert.Equal(t, 3*time.Second, cfg.StopGrace)
	assert.Equal(t, 500, cfg.HistoryCap)
}
