// Copyright 2026 Mark Kendrick
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

// Package config loads adwflow configuration from YAML with environment
// variable overrides. Missing config files are fine; everything has a
// working default.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mkendrick/adwflow/internal/log"
	"github.com/mkendrick/adwflow/pkg/errors"
)

// Config is the complete adwflow configuration.
type Config struct {
	Log       log.Config      `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Workflows WorkflowsConfig `yaml:"workflows"`
	Agent     AgentConfig     `yaml:"agent"`
}

// StoreConfig selects and locates the run store backend.
type StoreConfig struct {
	// Backend is "file" or "sqlite". Default: file.
	Backend string `yaml:"backend"`

	// Path locates the backing file or database.
	// Default: <data dir>/runs.json (file) or <data dir>/runs.db (sqlite).
	Path string `yaml:"path,omitempty"`
}

// WorkflowsConfig locates ADW definition files.
type WorkflowsConfig struct {
	// Dir is the directory of workflow YAML files.
	// Default: <config dir>/workflows.
	Dir string `yaml:"dir,omitempty"`
}

// AgentConfig sets worker call defaults.
type AgentConfig struct {
	// Model is the default worker model.
	Model string `yaml:"model,omitempty"`

	// MaxAttempts, InitialDelay, and MaxDelay configure the default
	// retry policy for worker calls.
	MaxAttempts  int           `yaml:"max_attempts,omitempty"`
	InitialDelay time.Duration `yaml:"initial_delay,omitempty"`
	MaxDelay     time.Duration `yaml:"max_delay,omitempty"`

	// Timeout bounds each worker call attempt.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// RateLimit throttles worker calls per second; zero disables
	// throttling. Burst applies only when RateLimit is set.
	RateLimit float64 `yaml:"rate_limit,omitempty"`
	Burst     int     `yaml:"burst,omitempty"`
}

// UnmarshalYAML decodes durations from "10m"-style strings and leaves
// fields absent from the document at their current values.
func (a *AgentConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Model        string  `yaml:"model"`
		MaxAttempts  int     `yaml:"max_attempts"`
		InitialDelay string  `yaml:"initial_delay"`
		MaxDelay     string  `yaml:"max_delay"`
		Timeout      string  `yaml:"timeout"`
		RateLimit    float64 `yaml:"rate_limit"`
		Burst        int     `yaml:"burst"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.Model != "" {
		a.Model = raw.Model
	}
	if raw.MaxAttempts != 0 {
		a.MaxAttempts = raw.MaxAttempts
	}
	if raw.RateLimit != 0 {
		a.RateLimit = raw.RateLimit
	}
	if raw.Burst != 0 {
		a.Burst = raw.Burst
	}
	for _, f := range []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"agent.initial_delay", raw.InitialDelay, &a.InitialDelay},
		{"agent.max_delay", raw.MaxDelay, &a.MaxDelay},
		{"agent.timeout", raw.Timeout, &a.Timeout},
	} {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return &errors.ConfigError{Key: f.key, Reason: "invalid duration " + f.raw, Cause: err}
		}
		*f.dst = d
	}
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: *log.DefaultConfig(),
		Store: StoreConfig{
			Backend: "file",
		},
		Agent: AgentConfig{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Timeout:      5 * time.Minute,
			Burst:        1,
		},
	}
}

// Load reads the config at path, falling back to defaults when path is
// empty or the file does not exist, then applies environment overrides
// and fills derived paths.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = defaultConfigFile()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &errors.ConfigError{Key: "config", Reason: "invalid config YAML", Cause: err}
		}
	case os.IsNotExist(err):
		// Defaults apply.
	default:
		return nil, &errors.ConfigError{Key: "config", Reason: "cannot read config file", Cause: err}
	}

	cfg.applyEnv()
	if err := cfg.fillDerived(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies ADWFLOW_* environment overrides. Log settings read
// their own environment in log.FromEnv; this covers the rest.
func (c *Config) applyEnv() {
	if v := os.Getenv("ADWFLOW_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("ADWFLOW_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("ADWFLOW_WORKFLOWS_DIR"); v != "" {
		c.Workflows.Dir = v
	}
	if v := os.Getenv("ADWFLOW_AGENT_MODEL"); v != "" {
		c.Agent.Model = v
	}
	if v := os.Getenv("ADWFLOW_AGENT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Agent.Timeout = d
		}
	}
	if v := os.Getenv("ADWFLOW_AGENT_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Agent.RateLimit = f
		}
	}
}

func (c *Config) fillDerived() error {
	if c.Store.Path == "" {
		dataDir, err := DataDir()
		if err != nil {
			return &errors.ConfigError{Key: "store.path", Reason: "cannot resolve data directory", Cause: err}
		}
		switch c.Store.Backend {
		case "sqlite":
			c.Store.Path = filepath.Join(dataDir, "runs.db")
		default:
			c.Store.Path = filepath.Join(dataDir, "runs.json")
		}
	}
	if c.Workflows.Dir == "" {
		configDir, err := ConfigDir()
		if err != nil {
			return &errors.ConfigError{Key: "workflows.dir", Reason: "cannot resolve config directory", Cause: err}
		}
		c.Workflows.Dir = filepath.Join(configDir, "workflows")
	}
	return nil
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "file", "sqlite":
	default:
		return &errors.ConfigError{
			Key:    "store.backend",
			Reason: "unknown backend " + c.Store.Backend + " (want file or sqlite)",
		}
	}
	if c.Agent.MaxAttempts < 0 {
		return &errors.ConfigError{Key: "agent.max_attempts", Reason: "must not be negative"}
	}
	if c.Agent.RateLimit < 0 {
		return &errors.ConfigError{Key: "agent.rate_limit", Reason: "must not be negative"}
	}
	return nil
}

// ConfigDir returns the adwflow config directory, respecting
// XDG_CONFIG_HOME. The directory is created if missing.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}

	dir := filepath.Join(base, "adwflow")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// DataDir returns the adwflow data directory, respecting XDG_DATA_HOME.
// The directory is created if missing.
func DataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}

	dir := filepath.Join(base, "adwflow")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

func defaultConfigFile() string {
	dir, err := ConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}
