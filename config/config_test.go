package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Scheduler.TickInterval)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.Lateness)
	assert.Equal(t, 8, cfg.Scheduler.LookaheadDays)
	assert.Equal(t, PurgeOnRollover, cfg.Scheduler.PurgePolicy)
	assert.Equal(t, time.Local, cfg.Scheduler.Location)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, AudioBackendCommand, cfg.Audio.Backend)
	assert.Equal(t, []string{"MISSED", "FAILED"}, cfg.Push.NotifyResults)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.False(t, cfg.Push.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
scheduler:
  tick_interval_ms: 100
  lateness_seconds: 3
  purge_policy: every_recompute
  timezone: Asia/Seoul
audio:
  backend: mqtt
  mqtt:
    timeout_seconds: 7
`))
	require.NoError(t, err)

	assert.Equal(t, 100*time.Millisecond, cfg.Scheduler.TickInterval)
	assert.Equal(t, 3*time.Second, cfg.Scheduler.Lateness)
	assert.Equal(t, PurgeOnEveryRecompute, cfg.Scheduler.PurgePolicy)
	assert.Equal(t, "Asia/Seoul", cfg.Scheduler.Location.String())
	assert.Equal(t, AudioBackendMQTT, cfg.Audio.Backend)
	assert.Equal(t, 7*time.Second, cfg.Audio.MQTT.Timeout)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "scheduler:\n  purge_policy: sometimes\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "scheduler:\n  timezone: Not/AZone\n"))
	assert.Error(t, err)
}
