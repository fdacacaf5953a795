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

package runstore

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mkendrick/adwflow/internal/jsonfile"
	"github.com/mkendrick/adwflow/pkg/errors"
)

// documentVersion is the on-disk schema version.
const documentVersion = 1

// document is the whole-file JSON layout.
type document struct {
	Version int             `json:"version"`
	Runs    map[string]*Run `json:"runs"`
}

// FileStore keeps every run in one versioned JSON document, rewritten in
// full on each mutation. It suits the tens-to-hundreds-of-runs histories
// of a single project; larger histories want SQLiteStore.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu  sync.Mutex
	doc *document
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithFileStoreLogger sets the store's logger.
func WithFileStoreLogger(logger *slog.Logger) FileStoreOption {
	return func(s *FileStore) { s.logger = logger }
}

// NewFileStore opens (or initializes) the run document at path. A
// missing, malformed, or wrong-version document starts the store empty;
// the old content is replaced on the first successful save.
func NewFileStore(path string, opts ...FileStoreOption) (*FileStore, error) {
	s := &FileStore{
		path:   path,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	var doc document
	err := jsonfile.Load(path, &doc)
	switch {
	case err == nil && doc.Version == documentVersion && doc.Runs != nil:
		// Entries without a run id are unusable by every query and
		// mutation path; drop them instead of serving ghost records.
		for key, run := range doc.Runs {
			if run == nil || run.ID == "" {
				s.logger.Warn("dropping run entry without id", "path", path, "key", key)
				delete(doc.Runs, key)
			}
		}
		s.doc = &doc
	case err == nil:
		s.logger.Warn("run store document unusable, starting empty",
			"path", path, "version", doc.Version)
		s.doc = emptyDocument()
	case os.IsNotExist(err):
		s.doc = emptyDocument()
	default:
		var perr *errors.PersistenceError
		if errors.As(err, &perr) && perr.Op == "load" {
			// Unreadable JSON is treated like a missing document rather
			// than bricking the workflow engine.
			s.logger.Warn("run store document unreadable, starting empty",
				"path", path, "error", err.Error())
			s.doc = emptyDocument()
		} else {
			return nil, err
		}
	}

	return s, nil
}

func emptyDocument() *document {
	return &document{Version: documentVersion, Runs: make(map[string]*Run)}
}

// save writes the document; callers hold s.mu.
func (s *FileStore) save() error {
	return jsonfile.Save(s.path, s.doc)
}

// mutateRun loads the run, applies fn, and persists. Callers get
// NotFoundError for unknown ids and PersistenceError for save failures.
func (s *FileStore) mutateRun(id string, fn func(run *Run) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.doc.Runs[id]
	if !ok {
		return &errors.NotFoundError{Resource: "run", ID: id}
	}
	if err := fn(run); err != nil {
		return err
	}
	return s.save()
}

// CreateRun implements Store.
func (s *FileStore) CreateRun(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		return &errors.ValidationError{Field: "id", Message: "run id is required"}
	}
	if _, exists := s.doc.Runs[run.ID]; exists {
		return &errors.ValidationError{Field: "id", Message: "run already exists: " + run.ID}
	}

	stored := run.clone()
	if stored.Status == "" {
		stored.Status = StatusPending
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if stored.Steps == nil {
		stored.Steps = []Step{}
	}
	s.doc.Runs[run.ID] = stored
	return s.save()
}

// GetRun implements Store.
func (s *FileStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.doc.Runs[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "run", ID: id}
	}
	return run.clone(), nil
}

// StartRun implements Store.
func (s *FileStore) StartRun(ctx context.Context, id string) error {
	return s.mutateRun(id, func(run *Run) error {
		now := time.Now().UTC()
		run.Status = StatusRunning
		run.StartedAt = &now
		return nil
	})
}

// UpdateRunStatus implements Store.
func (s *FileStore) UpdateRunStatus(ctx context.Context, id string, status Status) error {
	return s.mutateRun(id, func(run *Run) error {
		applyStatus(run, status)
		return nil
	})
}

// AddStep implements Store.
func (s *FileStore) AddStep(ctx context.Context, runID string, step *Step) error {
	return s.mutateRun(runID, func(run *Run) error {
		stored := *step
		if stored.Status == "" {
			stored.Status = StepPending
		}
		stored.Usage = nil
		run.Steps = append(run.Steps, stored)
		tallySteps(run)
		if step.Usage != nil {
			attachStepUsage(run, &run.Steps[len(run.Steps)-1], step.Usage)
		}
		return nil
	})
}

// StartStep implements Store.
func (s *FileStore) StartStep(ctx context.Context, runID, stepID string) error {
	return s.mutateRun(runID, func(run *Run) error {
		step := findStep(run, stepID)
		if step == nil {
			return &errors.NotFoundError{Resource: "step", ID: stepID}
		}
		now := time.Now().UTC()
		step.Status = StepRunning
		step.StartedAt = &now
		return nil
	})
}

// CompleteStep implements Store.
func (s *FileStore) CompleteStep(ctx context.Context, runID, stepID string, output any, usage *Usage) error {
	return s.mutateRun(runID, func(run *Run) error {
		step := findStep(run, stepID)
		if step == nil {
			return &errors.NotFoundError{Resource: "step", ID: stepID}
		}
		finishStep(step, StepCompleted, "", output)
		attachStepUsage(run, step, usage)
		tallySteps(run)
		return nil
	})
}

// FailStep implements Store.
func (s *FileStore) FailStep(ctx context.Context, runID, stepID, errText string) error {
	return s.mutateRun(runID, func(run *Run) error {
		step := findStep(run, stepID)
		if step == nil {
			return &errors.NotFoundError{Resource: "step", ID: stepID}
		}
		finishStep(step, StepFailed, errText, nil)
		tallySteps(run)
		return nil
	})
}

// CompleteRun implements Store.
func (s *FileStore) CompleteRun(ctx context.Context, id string, output any, metrics map[string]float64) error {
	return s.mutateRun(id, func(run *Run) error {
		mergeMetrics(run, metrics)
		finishRun(run, StatusCompleted, "", output)
		return nil
	})
}

// FailRun implements Store.
func (s *FileStore) FailRun(ctx context.Context, id, errText string) error {
	return s.mutateRun(id, func(run *Run) error {
		status := StatusFailed
		if strings.Contains(strings.ToLower(errText), "timed out") ||
			strings.Contains(strings.ToLower(errText), "deadline exceeded") {
			status = StatusTimeout
		}
		finishRun(run, status, errText, nil)
		return nil
	})
}

// CancelRun implements Store.
func (s *FileStore) CancelRun(ctx context.Context, id string) error {
	return s.mutateRun(id, func(run *Run) error {
		if run.Status.Terminal() {
			return &errors.ValidationError{Field: "status", Message: "cannot cancel " + string(run.Status) + " run " + id}
		}
		finishRun(run, StatusCancelled, "", nil)
		return nil
	})
}

// AddArtifact implements Store.
func (s *FileStore) AddArtifact(ctx context.Context, runID string, artifact *Artifact) error {
	return s.mutateRun(runID, func(run *Run) error {
		stored := *artifact
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = time.Now().UTC()
		}
		run.Artifacts = append(run.Artifacts, stored)
		return nil
	})
}

// AddUsage implements Store.
func (s *FileStore) AddUsage(ctx context.Context, runID string, usage Usage) error {
	return s.mutateRun(runID, func(run *Run) error {
		run.Usage.Add(usage)
		return nil
	})
}

// QueryRuns implements Store.
func (s *FileStore) QueryRuns(ctx context.Context, filter *Filter) ([]*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if filter == nil {
		filter = &Filter{}
	}

	var out []*Run
	for _, run := range s.doc.Runs {
		if filter.matches(run) {
			out = append(out, run.clone())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return filter.page(out), nil
}

// Summary implements Store.
func (s *FileStore) Summary(ctx context.Context) (*Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs := make([]*Run, 0, len(s.doc.Runs))
	for _, run := range s.doc.Runs {
		runs = append(runs, run)
	}
	return summarize(runs), nil
}

// PruneOldRuns implements Store.
func (s *FileStore) PruneOldRuns(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for id, run := range s.doc.Runs {
		if run.Status.Terminal() && run.CreatedAt.Before(before) {
			delete(s.doc.Runs, id)
			pruned++
		}
	}
	if pruned == 0 {
		return 0, nil
	}
	if err := s.save(); err != nil {
		return 0, err
	}
	return pruned, nil
}

// Close implements Store. FileStore holds no open handles.
func (s *FileStore) Close() error { return nil }

func findStep(run *Run, stepID string) *Step {
	for i := range run.Steps {
		if run.Steps[i].ID == stepID {
			return &run.Steps[i]
		}
	}
	return nil
}
