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
	"time"
)

// Store persists run records. All methods are safe for concurrent use.
// Mutations are durable when the method returns; a persistence failure
// surfaces as a *errors.PersistenceError and leaves the previous durable
// state intact.
type Store interface {
	// CreateRun records a new pending run.
	CreateRun(ctx context.Context, run *Run) error

	// GetRun fetches one run by id. Missing runs return
	// *errors.NotFoundError.
	GetRun(ctx context.Context, id string) (*Run, error)

	// StartRun transitions a run to running and stamps StartedAt.
	StartRun(ctx context.Context, id string) error

	// UpdateRunStatus sets the run's status without touching timestamps.
	UpdateRunStatus(ctx context.Context, id string, status Status) error

	// AddStep appends a step record to the run.
	AddStep(ctx context.Context, runID string, step *Step) error

	// StartStep transitions a step to running and stamps StartedAt.
	StartStep(ctx context.Context, runID, stepID string) error

	// CompleteStep finishes a step successfully with its output. A
	// non-nil usage is attached to the step and folded into the run's
	// aggregate usage.
	CompleteStep(ctx context.Context, runID, stepID string, output any, usage *Usage) error

	// FailStep finishes a step with an error.
	FailStep(ctx context.Context, runID, stepID, errText string) error

	// CompleteRun finishes a run successfully with its final output,
	// merging the given metrics into the run's metrics map.
	CompleteRun(ctx context.Context, id string, output any, metrics map[string]float64) error

	// FailRun finishes a run with an error. Status becomes failed, or
	// timeout when the error text indicates a deadline.
	FailRun(ctx context.Context, id, errText string) error

	// CancelRun marks a run cancelled.
	CancelRun(ctx context.Context, id string) error

	// AddArtifact records an artifact on the run.
	AddArtifact(ctx context.Context, runID string, artifact *Artifact) error

	// AddUsage accumulates run-level worker usage not attributable to
	// any single step.
	AddUsage(ctx context.Context, runID string, usage Usage) error

	// QueryRuns lists runs matching the filter, newest first.
	QueryRuns(ctx context.Context, filter *Filter) ([]*Run, error)

	// Summary aggregates the stored history.
	Summary(ctx context.Context) (*Summary, error)

	// PruneOldRuns deletes terminal runs created before the cutoff and
	// returns how many were removed. Non-terminal runs are never pruned.
	PruneOldRuns(ctx context.Context, before time.Time) (int, error)

	// Close releases backend resources.
	Close() error
}

// applyStatus sets a run's status with lifecycle bookkeeping: entering
// running sets StartedAt once, entering any terminal state closes out
// the run.
func applyStatus(run *Run, status Status) {
	if status.Terminal() {
		finishRun(run, status, run.Error, nil)
		return
	}
	run.Status = status
	if status == StatusRunning && run.StartedAt == nil {
		now := time.Now().UTC()
		run.StartedAt = &now
	}
}

// finishRun applies terminal bookkeeping shared by both backends.
func finishRun(run *Run, status Status, errText string, output any) {
	now := time.Now().UTC()
	run.Status = status
	run.EndedAt = &now
	run.Error = errText
	if output != nil {
		run.Output = output
	}
	if run.StartedAt != nil {
		run.DurationMs = now.Sub(*run.StartedAt).Milliseconds()
	}
	tallySteps(run)
}

// finishStep applies terminal bookkeeping to a step record.
func finishStep(step *Step, status StepStatus, errText string, output any) {
	now := time.Now().UTC()
	step.Status = status
	step.EndedAt = &now
	step.Error = errText
	if output != nil {
		step.Output = output
	}
	if step.StartedAt != nil {
		step.DurationMs = now.Sub(*step.StartedAt).Milliseconds()
	}
}

// tallySteps refreshes the run's step counters. Token and cost totals
// are kept in sync by attachStepUsage and AddUsage instead, so
// run-level usage survives step recounts.
func tallySteps(run *Run) {
	run.Usage.StepCount = len(run.Steps)
	run.Usage.SuccessfulSteps = 0
	run.Usage.FailedSteps = 0
	for i := range run.Steps {
		switch run.Steps[i].Status {
		case StepCompleted:
			run.Usage.SuccessfulSteps++
		case StepFailed:
			run.Usage.FailedSteps++
		}
	}
}

// attachStepUsage sets a step's usage, keeping the run aggregate equal
// to the sum of every step's usage plus run-level additions. Replacing
// a previously attached usage first backs the old one out.
func attachStepUsage(run *Run, step *Step, usage *Usage) {
	if usage == nil {
		return
	}
	if prev := step.Usage; prev != nil {
		run.Usage.InputTokens -= prev.InputTokens
		run.Usage.OutputTokens -= prev.OutputTokens
		run.Usage.TotalTokens -= prev.TotalTokens
		run.Usage.EstimatedCostUSD -= prev.EstimatedCostUSD
	}
	u := *usage
	step.Usage = &u
	run.Usage.Add(u)
}

// mergeMetrics overlays metrics onto the run's metrics map.
func mergeMetrics(run *Run, metrics map[string]float64) {
	if len(metrics) == 0 {
		return
	}
	if run.Metrics == nil {
		run.Metrics = make(map[string]float64, len(metrics))
	}
	for k, v := range metrics {
		run.Metrics[k] = v
	}
}
