package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:9001", cfg.Gateway.ListenAddr)
	assert.Equal(t, 1000, cfg.Gateway.BackupCapacity)
	assert.Equal(t, "canbridge.frames", cfg.NATS.Subject)
	assert.Equal(t, 100*time.Millisecond, cfg.Sim.TickInterval())
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"gateway": {"listen_addr": "0.0.0.0:7000", "backup_capacity": 500},
		"sim": {"tick_interval_ms": 50}
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:7000", cfg.Gateway.ListenAddr)
	assert.Equal(t, 500, cfg.Gateway.BackupCapacity)
	assert.Equal(t, 50*time.Millisecond, cfg.Sim.TickInterval())
	// Untouched sections keep their defaults.
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.json")
	assert.Error(t, err)
}

func TestLoadRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen addr", func(c *Config) { c.Gateway.ListenAddr = "" }},
		{"empty nats url", func(c *Config) { c.NATS.URL = "" }},
		{"negative backup capacity", func(c *Config) { c.Gateway.BackupCapacity = -1 }},
		{"metrics port out of range", func(c *Config) { c.Metrics.Port = 70000 }},
		{"store enabled without path", func(c *Config) { c.Store.Path = "" }},
		{"canbus enabled without interface", func(c *Config) { c.CANBus.Enabled = true; c.CANBus.Interface = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
