// Package config loads executor configuration from two layers: an
// optional TOML file for static per-executor settings, overridden by
// environment variables for 12-factor-style deployment overrides.
package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all executor configuration.
type Config struct {
	Channel   ChannelConfig   `toml:"channel"`
	Engine    EngineConfig    `toml:"engine"`
	Transport TransportConfig `toml:"transport"`
	Control   ControlConfig   `toml:"control"`
	Admin     AdminConfig     `toml:"admin"`
	Logging   LogConfig       `toml:"logging"`
}

// ChannelConfig controls the default bounded-queue sizing used when an
// edge is built without an explicit capacity.
type ChannelConfig struct {
	DefaultCapacity int `toml:"default_capacity" envconfig:"CHANNEL_DEFAULT_CAPACITY"`
}

// EngineConfig controls this executor's engine fan-out.
type EngineConfig struct {
	PECount      int    `toml:"pe_count" envconfig:"ENGINE_PE_COUNT"`
	EnginesPerPE int    `toml:"engines_per_pe" envconfig:"ENGINE_ENGINES_PER_PE"`
	Kind         string `toml:"kind" envconfig:"ENGINE_KIND"`
}

// TransportConfig controls the data-plane transport used for
// cross-executor manifold sends.
type TransportConfig struct {
	Kind          string `toml:"kind" envconfig:"TRANSPORT_KIND"`
	ListenAddress string `toml:"listen_address" envconfig:"TRANSPORT_LISTEN_ADDR"`
}

// ControlConfig controls how this executor reaches the control plane.
type ControlConfig struct {
	Address     string `toml:"address" envconfig:"CONTROL_ADDR"`
	WatchPollMS int    `toml:"watch_poll_ms" envconfig:"CONTROL_WATCH_POLL_MS"`
}

// AdminConfig controls the read-only introspection HTTP surface.
type AdminConfig struct {
	Port    string `toml:"port" envconfig:"ADMIN_PORT"`
	Enabled bool   `toml:"enabled" envconfig:"ADMIN_ENABLED"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `toml:"level" envconfig:"LOG_LEVEL"`
	Development bool   `toml:"dev" envconfig:"LOG_DEV"`
}

// Load reads an optional TOML file on top of the struct defaults, then
// applies environment variable overrides on top of that. The envconfig
// tags below deliberately carry no `default:"..."` value: envconfig only
// touches a field when the corresponding environment variable is
// actually set, so a value that came from the TOML file survives when
// the environment is silent on it. path may be empty, in which case only
// environment variables (and struct defaults) apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("config: apply environment overrides: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from path and the environment,
// falling back to Default on any error.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Channel: ChannelConfig{DefaultCapacity: 64},
		Engine: EngineConfig{
			PECount:      1,
			EnginesPerPE: 1,
			Kind:         "fiber",
		},
		Transport: TransportConfig{
			Kind:          "grpc",
			ListenAddress: "0.0.0.0:13337",
		},
		Control: ControlConfig{
			Address:     "localhost:13338",
			WatchPollMS: 1000,
		},
		Admin: AdminConfig{
			Port:    "9090",
			Enabled: true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
