// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads workcelld's daemon configuration: the state
// backend, listen address, and the tuning constants for the Node Liveness
// Poller, Scheduler, and Step Dispatcher loops. Environment variables
// override whatever the YAML file sets, the same precedence the teacher's
// config package uses.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	workcellerrors "github.com/madsci/workcell/pkg/errors"
)

// Backend selects which store.Store implementation workcelld constructs.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
)

// Config is workcelld's complete runtime configuration.
type Config struct {
	// ListenAddr is the Ingress API's bind address, e.g. ":8000".
	ListenAddr string `yaml:"listen_addr"`

	// Backend selects the state store: "memory" or "sqlite".
	Backend Backend `yaml:"backend"`
	// SQLitePath is the database file sqlite backend opens. Required when
	// Backend is "sqlite".
	SQLitePath string `yaml:"sqlite_path,omitempty"`

	// WorkcellDefinitionPath, if set, seeds the state store with the
	// WorkcellDefinition read from this file on startup, when the store
	// doesn't already have one.
	WorkcellDefinitionPath string `yaml:"workcell_definition_path,omitempty"`

	Log       LogConfig       `yaml:"log"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Liveness  LivenessConfig  `yaml:"liveness"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`

	// Collaborators are the optional outbound clients' base URLs. Any left
	// empty stays unwired: its client is nil and every call to it is a
	// silent no-op, so startup does not fail.
	Collaborators CollaboratorsConfig `yaml:"collaborators"`
}

// LogConfig matches the level/format knobs internal/log exposes.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SchedulerConfig maps to scheduler.Config.
type SchedulerConfig struct {
	TickInterval      time.Duration `yaml:"tick_interval"`
	ColdStartDelay    time.Duration `yaml:"cold_start_delay"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	StateLockTTL      time.Duration `yaml:"state_lock_ttl"`
}

// LivenessConfig maps to liveness.Config.
type LivenessConfig struct {
	Interval          time.Duration `yaml:"interval"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// DispatchConfig maps to dispatcher.Config.
type DispatchConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
	StateLockTTL time.Duration `yaml:"state_lock_ttl"`
}

// CollaboratorsConfig holds the base URLs of the three optional manager
// clients internal/collab builds.
type CollaboratorsConfig struct {
	ResourceManagerURL string `yaml:"resource_manager_url,omitempty"`
	DataManagerURL     string `yaml:"data_manager_url,omitempty"`
	EventManagerURL    string `yaml:"event_manager_url,omitempty"`
}

// Default returns the configuration workcelld runs with when no file or
// environment overrides are present: an in-memory store listening on
// :8000, with the scheduler/liveness/dispatcher packages' own tuning
// defaults.
func Default() *Config {
	return &Config{
		ListenAddr: ":8000",
		Backend:    BackendMemory,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Scheduler: SchedulerConfig{
			TickInterval:      1 * time.Second,
			ColdStartDelay:    3 * time.Second,
			HeartbeatInterval: 30 * time.Second,
			StateLockTTL:      10 * time.Second,
		},
		Liveness: LivenessConfig{
			Interval:          2 * time.Second,
			RequestsPerSecond: 20,
		},
		Dispatch: DispatchConfig{
			PollInterval: 5 * time.Second,
			Timeout:      10 * time.Minute,
			StateLockTTL: 10 * time.Second,
		},
	}
}

// Load builds a Config from defaults, then a YAML file if configPath is
// non-empty, then environment variable overrides, in that precedence
// order, and validates the result.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &workcellerrors.ValidationError{Field: "config_file", Message: err.Error()}
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config YAML: %w", err)
	}
	return nil
}

// loadFromEnv overrides the subset of settings an operator most often
// needs to flip without editing the YAML file: listen address, backend
// selection, SQLite path, log level, and the liveness poller's request
// rate.
func (c *Config) loadFromEnv() {
	if v := os.Getenv("WORKCELL_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("WORKCELL_BACKEND"); v != "" {
		c.Backend = Backend(strings.ToLower(v))
	}
	if v := os.Getenv("WORKCELL_SQLITE_PATH"); v != "" {
		c.SQLitePath = v
	}
	if v := os.Getenv("WORKCELL_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("WORKCELL_LIVENESS_RPS"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			c.Liveness.RequestsPerSecond = parsed
		}
	}
}

// Validate checks the subset of configuration that would otherwise fail
// confusingly deep inside store or collab construction.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLitePath == "" {
			return &workcellerrors.ValidationError{Field: "sqlite_path", Message: "required when backend is sqlite"}
		}
	default:
		return &workcellerrors.ValidationError{Field: "backend", Message: fmt.Sprintf("unknown backend %q, want memory or sqlite", c.Backend)}
	}
	if c.ListenAddr == "" {
		return &workcellerrors.ValidationError{Field: "listen_addr", Message: "must not be empty"}
	}
	return nil
}
