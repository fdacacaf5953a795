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
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mkendrick/adwflow/pkg/errors"
)

// SQLiteStore keeps runs in a local SQLite database. The full record is
// stored as a JSON document; a few columns are broken out for indexed
// filtering so queries never unmarshal the whole history.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path. The special
// value ":memory:" creates an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, &errors.ConfigError{Key: "store.path", Reason: "database path is required"}
	}

	// WAL mode lets concurrent readers proceed during writes.
	connStr := path
	if path != ":memory:" {
		connStr += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, &errors.PersistenceError{Op: "open", Path: path, Cause: err}
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &errors.PersistenceError{Op: "open", Path: path, Cause: err}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			workflow_type TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			document TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_workflow_type ON runs(workflow_type)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return &errors.PersistenceError{Op: "migrate", Cause: err}
		}
	}
	return nil
}

// CreateRun implements Store.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		return &errors.ValidationError{Field: "id", Message: "run id is required"}
	}

	stored := *run
	if stored.Status == "" {
		stored.Status = StatusPending
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if stored.Steps == nil {
		stored.Steps = []Step{}
	}
	return s.insert(ctx, &stored)
}

func (s *SQLiteStore) insert(ctx context.Context, run *Run) error {
	doc, err := json.Marshal(run)
	if err != nil {
		return &errors.PersistenceError{Op: "save", Cause: err}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, workflow_type, status, created_at, document) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.WorkflowType, string(run.Status), run.CreatedAt.UnixMilli(), string(doc))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return &errors.ValidationError{Field: "id", Message: "run already exists: " + run.ID}
		}
		return &errors.PersistenceError{Op: "save", Cause: err}
	}
	return nil
}

// GetRun implements Store.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM runs WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "run", ID: id}
	}
	if err != nil {
		return nil, &errors.PersistenceError{Op: "load", Cause: err}
	}

	var run Run
	if err := json.Unmarshal([]byte(doc), &run); err != nil {
		return nil, &errors.PersistenceError{Op: "load", Cause: err}
	}
	return &run, nil
}

// mutateRun rewrites one run's document inside a transaction.
func (s *SQLiteStore) mutateRun(ctx context.Context, id string, fn func(run *Run) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &errors.PersistenceError{Op: "save", Cause: err}
	}
	defer tx.Rollback()

	var doc string
	err = tx.QueryRowContext(ctx, `SELECT document FROM runs WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return &errors.NotFoundError{Resource: "run", ID: id}
	}
	if err != nil {
		return &errors.PersistenceError{Op: "load", Cause: err}
	}

	var run Run
	if err := json.Unmarshal([]byte(doc), &run); err != nil {
		return &errors.PersistenceError{Op: "load", Cause: err}
	}
	if err := fn(&run); err != nil {
		return err
	}

	updated, err := json.Marshal(&run)
	if err != nil {
		return &errors.PersistenceError{Op: "save", Cause: err}
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, document = ? WHERE id = ?`,
		string(run.Status), string(updated), id)
	if err != nil {
		return &errors.PersistenceError{Op: "save", Cause: err}
	}
	if err := tx.Commit(); err != nil {
		return &errors.PersistenceError{Op: "save", Cause: err}
	}
	return nil
}

// StartRun implements Store.
func (s *SQLiteStore) StartRun(ctx context.Context, id string) error {
	return s.mutateRun(ctx, id, func(run *Run) error {
		now := time.Now().UTC()
		run.Status = StatusRunning
		run.StartedAt = &now
		return nil
	})
}

// UpdateRunStatus implements Store.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id string, status Status) error {
	return s.mutateRun(ctx, id, func(run *Run) error {
		applyStatus(run, status)
		return nil
	})
}

// AddStep implements Store.
func (s *SQLiteStore) AddStep(ctx context.Context, runID string, step *Step) error {
	return s.mutateRun(ctx, runID, func(run *Run) error {
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
func (s *SQLiteStore) StartStep(ctx context.Context, runID, stepID string) error {
	return s.mutateRun(ctx, runID, func(run *Run) error {
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
func (s *SQLiteStore) CompleteStep(ctx context.Context, runID, stepID string, output any, usage *Usage) error {
	return s.mutateRun(ctx, runID, func(run *Run) error {
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
func (s *SQLiteStore) FailStep(ctx context.Context, runID, stepID, errText string) error {
	return s.mutateRun(ctx, runID, func(run *Run) error {
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
func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, output any, metrics map[string]float64) error {
	return s.mutateRun(ctx, id, func(run *Run) error {
		mergeMetrics(run, metrics)
		finishRun(run, StatusCompleted, "", output)
		return nil
	})
}

// FailRun implements Store.
func (s *SQLiteStore) FailRun(ctx context.Context, id, errText string) error {
	return s.mutateRun(ctx, id, func(run *Run) error {
		status := StatusFailed
		lower := strings.ToLower(errText)
		if strings.Contains(lower, "timed out") || strings.Contains(lower, "deadline exceeded") {
			status = StatusTimeout
		}
		finishRun(run, status, errText, nil)
		return nil
	})
}

// CancelRun implements Store.
func (s *SQLiteStore) CancelRun(ctx context.Context, id string) error {
	return s.mutateRun(ctx, id, func(run *Run) error {
		if run.Status.Terminal() {
			return &errors.ValidationError{Field: "status", Message: "cannot cancel " + string(run.Status) + " run " + id}
		}
		finishRun(run, StatusCancelled, "", nil)
		return nil
	})
}

// AddArtifact implements Store.
func (s *SQLiteStore) AddArtifact(ctx context.Context, runID string, artifact *Artifact) error {
	return s.mutateRun(ctx, runID, func(run *Run) error {
		stored := *artifact
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = time.Now().UTC()
		}
		run.Artifacts = append(run.Artifacts, stored)
		return nil
	})
}

// AddUsage implements Store.
func (s *SQLiteStore) AddUsage(ctx context.Context, runID string, usage Usage) error {
	return s.mutateRun(ctx, runID, func(run *Run) error {
		run.Usage.Add(usage)
		return nil
	})
}

// QueryRuns implements Store.
func (s *SQLiteStore) QueryRuns(ctx context.Context, filter *Filter) ([]*Run, error) {
	if filter == nil {
		filter = &Filter{}
	}

	query := `SELECT document FROM runs`
	var conds []string
	var args []any
	if filter.WorkflowType != "" {
		conds = append(conds, "workflow_type = ?")
		args = append(args, filter.WorkflowType)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		conds = append(conds, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, filter.Since.UnixMilli())
	}
	if !filter.Until.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, filter.Until.UnixMilli())
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &errors.PersistenceError{Op: "load", Cause: err}
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, &errors.PersistenceError{Op: "load", Cause: err}
		}
		var run Run
		if err := json.Unmarshal([]byte(doc), &run); err != nil {
			return nil, &errors.PersistenceError{Op: "load", Cause: err}
		}
		// Trigger, task and label filtering happen here; those fields
		// live only in the document.
		if !filter.matches(&run) {
			continue
		}
		out = append(out, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.PersistenceError{Op: "load", Cause: err}
	}
	return filter.page(out), nil
}

// Summary implements Store.
func (s *SQLiteStore) Summary(ctx context.Context) (*Summary, error) {
	runs, err := s.QueryRuns(ctx, nil)
	if err != nil {
		return nil, err
	}
	return summarize(runs), nil
}

// PruneOldRuns implements Store.
func (s *SQLiteStore) PruneOldRuns(ctx context.Context, before time.Time) (int, error) {
	terminal := []string{
		string(StatusCompleted), string(StatusFailed),
		string(StatusCancelled), string(StatusTimeout),
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE created_at < ? AND status IN (?, ?, ?, ?)`,
		append([]any{before.UnixMilli()}, toAnySlice(terminal)...)...)
	if err != nil {
		return 0, &errors.PersistenceError{Op: "prune", Cause: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &errors.PersistenceError{Op: "prune", Cause: err}
	}
	return int(n), nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
