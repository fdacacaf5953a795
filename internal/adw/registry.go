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

package adw

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mkendrick/adwflow/pkg/errors"
)

// Registry holds loaded ADW definitions by id.
type Registry struct {
	logger *slog.Logger

	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
		defs:   make(map[string]*Definition),
	}
}

// LoadDir parses every .yaml/.yml file under dir into the registry.
// A file that fails to parse is skipped with a warning; one broken
// definition must not hide the rest.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return &errors.ConfigError{Key: "workflows.dir", Reason: "cannot read workflow directory", Cause: err}
	}

	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := r.LoadFile(path); err != nil {
			r.logger.Warn("skipping unparsable workflow file", "path", path, "error", err.Error())
		}
	}
	return nil
}

// LoadFile parses one definition file into the registry.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &errors.NotFoundError{Resource: "workflow file", ID: path}
		}
		return &errors.ConfigError{Key: "workflows.file", Reason: "cannot read workflow file", Cause: err}
	}

	def, err := Parse(data)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.defs[def.ID] = def
	r.mu.Unlock()

	r.logger.Debug("loaded workflow definition", "id", def.ID, "steps", len(def.Steps))
	return nil
}

// Get returns the definition with the given id.
func (r *Registry) Get(id string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "workflow", ID: id}
	}
	return def, nil
}

// List returns all loaded definitions sorted by id.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
