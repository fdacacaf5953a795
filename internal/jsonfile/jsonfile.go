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

// Package jsonfile provides load/save primitives for whole-document JSON
// persistence. Saves are atomic for single-process use: the document is
// written to a temp file in the same directory and renamed over the target.
package jsonfile

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/mkendrick/adwflow/pkg/errors"
)

// Load reads and unmarshals the JSON document at path into v.
// A missing file returns os.ErrNotExist (via the wrapped cause) so callers
// can treat it as "no data yet"; any other failure is a PersistenceError.
func Load(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return err
		}
		return &errors.PersistenceError{Op: "load", Path: path, Cause: err}
	}

	if err := json.Unmarshal(data, v); err != nil {
		return &errors.PersistenceError{Op: "load", Path: path, Cause: err}
	}
	return nil
}

// Save marshals v and atomically replaces the document at path.
// Parent directories are created as needed.
func Save(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &errors.PersistenceError{Op: "save", Path: path, Cause: err}
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &errors.PersistenceError{Op: "save", Path: path, Cause: err}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return &errors.PersistenceError{Op: "save", Path: path, Cause: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &errors.PersistenceError{Op: "save", Path: path, Cause: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &errors.PersistenceError{Op: "save", Path: path, Cause: err}
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &errors.PersistenceError{Op: "save", Path: path, Cause: err}
	}
	return nil
}
