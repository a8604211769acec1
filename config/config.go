// Package config defines the bridge configuration, loaded from JSON with
// defaults for everything so a bare config file still runs.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/c360/canbridge/errors"
)

// Config is the complete bridge configuration.
type Config struct {
	Gateway GatewayConfig `json:"gateway"`
	NATS    NATSConfig    `json:"nats"`
	Metrics MetricsConfig `json:"metrics,omitempty"`
	Store   StoreConfig   `json:"store,omitempty"`
	CANBus  CANBusConfig  `json:"canbus,omitempty"`
	Signals SignalsConfig `json:"signals,omitempty"`
	Sim     SimConfig     `json:"sim,omitempty"`
}

// GatewayConfig configures the TCP listener and fan-out buffer.
type GatewayConfig struct {
	ListenAddr     string `json:"listen_addr"`
	BackupCapacity int    `json:"backup_capacity,omitempty"`
}

// NATSConfig configures the broadcast connection.
type NATSConfig struct {
	URL     string `json:"url"`
	Subject string `json:"subject,omitempty"`
	Name    string `json:"name,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Port    int    `json:"port,omitempty"`
	Path    string `json:"path,omitempty"`
}

// StoreConfig configures SQLite persistence.
type StoreConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// CANBusConfig configures the optional SocketCAN output.
type CANBusConfig struct {
	Enabled   bool   `json:"enabled,omitempty"`
	Interface string `json:"interface,omitempty"`
}

// SignalsConfig points at the layout and mapping resource files. Empty
// paths mean built-ins only.
type SignalsConfig struct {
	LayoutPath  string `json:"layout_path,omitempty"`
	MappingPath string `json:"mapping_path,omitempty"`
}

// SimConfig configures the signal source on the ECU side.
type SimConfig struct {
	Step           float64 `json:"step,omitempty"`
	LampThreshold  float64 `json:"lamp_threshold,omitempty"`
	TickIntervalMS int     `json:"tick_interval_ms,omitempty"`
}

// TickInterval returns the transmit cadence.
func (s SimConfig) TickInterval() time.Duration {
	if s.TickIntervalMS <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(s.TickIntervalMS) * time.Millisecond
}

// DefaultConfig returns a runnable local configuration.
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			ListenAddr:     "127.0.0.1:9001",
			BackupCapacity: 1000,
		},
		NATS: NATSConfig{
			URL:     "nats://127.0.0.1:4222",
			Subject: "canbridge.frames",
			Name:    "canbridge",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Store: StoreConfig{
			Enabled: true,
			Path:    "canbridge.db",
		},
		CANBus: CANBusConfig{
			Interface: "vcan0",
		},
		Sim: SimConfig{
			Step:           0.05,
			LampThreshold:  200,
			TickIntervalMS: 100,
		},
	}
}

// Load reads a JSON config file layered over the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapTransient(errors.ErrMissingConfig, "config", "Load", err.Error())
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Load",
			fmt.Sprintf("parse %s: %v", path, err))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	if c.Gateway.ListenAddr == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate", "gateway.listen_addr is required")
	}
	if c.NATS.URL == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate", "nats.url is required")
	}
	if c.Gateway.BackupCapacity < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate", "gateway.backup_capacity must not be negative")
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			fmt.Sprintf("metrics.port %d out of range", c.Metrics.Port))
	}
	if c.Store.Enabled && c.Store.Path == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate", "store.path is required when store is enabled")
	}
	if c.CANBus.Enabled && c.CANBus.Interface == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate", "canbus.interface is required when canbus is enabled")
	}
	if c.Sim.Step < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate", "sim.step must not be negative")
	}
	return nil
}
