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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateXDG(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(t.TempDir(), "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(t.TempDir(), "data"))
}

func TestLoadDefaults(t *testing.T) {
	isolateXDG(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Contains(t, cfg.Store.Path, "runs.json")
	assert.Contains(t, cfg.Workflows.Dir, "workflows")
	assert.Equal(t, 3, cfg.Agent.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Agent.Timeout)
}

func TestLoadFromFile(t *testing.T) {
	isolateXDG(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
store:
  backend: sqlite
  path: /var/lib/adwflow/runs.db
agent:
  model: claude-sonnet-4-5
  max_attempts: 5
  timeout: 10m
  rate_limit: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "/var/lib/adwflow/runs.db", cfg.Store.Path)
	assert.Equal(t, "claude-sonnet-4-5", cfg.Agent.Model)
	assert.Equal(t, 5, cfg.Agent.MaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.Agent.Timeout)
	assert.Equal(t, 2.0, cfg.Agent.RateLimit)
}

func TestLoadEnvOverrides(t *testing.T) {
	isolateXDG(t)
	t.Setenv("ADWFLOW_STORE_BACKEND", "sqlite")
	t.Setenv("ADWFLOW_STORE_PATH", "/tmp/override.db")
	t.Setenv("ADWFLOW_AGENT_MODEL", "claude-haiku-4-5")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "/tmp/override.db", cfg.Store.Path)
	assert.Equal(t, "claude-haiku-4-5", cfg.Agent.Model)
}

func TestLoadRejectsBadValues(t *testing.T) {
	isolateXDG(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: mongodb\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.backend")
}

func TestLoadRejectsBadYAML(t *testing.T) {
	isolateXDG(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSQLiteBackendDerivesDBPath(t *testing.T) {
	isolateXDG(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: sqlite\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Contains(t, cfg.Store.Path, "runs.db")
}
