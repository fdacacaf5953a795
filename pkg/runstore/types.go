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

// Package runstore persists workflow run records: who triggered a run,
// what its steps did, what artifacts it produced, and what it cost.
//
// Two backends implement the Store interface: FileStore keeps every run
// in a single versioned JSON document, SQLiteStore keeps runs in a local
// database for larger histories. Both are safe for concurrent use within
// one process.
package runstore

import (
	"maps"
	"time"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusTimeout   Status = "timeout"
)

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout:
		return true
	}
	return false
}

// StepStatus is the lifecycle state of one recorded step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Run is one persisted workflow execution.
type Run struct {
	// ID uniquely identifies the run.
	ID string `json:"id"`

	// WorkflowType is the workflow definition's id (e.g. "plan_build_test").
	WorkflowType string `json:"workflowType"`

	// WorkflowName is the human-readable workflow name.
	WorkflowName string `json:"workflowName,omitempty"`

	// Trigger records what started the run (e.g. "manual", "cron",
	// "issue_comment").
	Trigger string `json:"trigger,omitempty"`

	// TriggerMeta carries trigger-specific details.
	TriggerMeta map[string]string `json:"triggerMeta,omitempty"`

	// Status is the run's lifecycle state.
	Status Status `json:"status"`

	// CreatedAt is when the record was created; StartedAt and EndedAt
	// bound actual execution.
	CreatedAt time.Time  `json:"createdAt"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`

	// DurationMs is the wall-clock run duration, set on completion.
	DurationMs int64 `json:"durationMs,omitempty"`

	// Task is the free-form task description given to the workflow.
	Task string `json:"task,omitempty"`

	// TaskID links the run to an external work item.
	TaskID string `json:"taskId,omitempty"`

	// Config snapshots the workflow configuration used for the run.
	Config map[string]any `json:"config,omitempty"`

	// Steps are the run's recorded steps in execution order.
	Steps []Step `json:"steps"`

	// Artifacts are files or references the run produced.
	Artifacts []Artifact `json:"artifacts,omitempty"`

	// Usage aggregates worker token consumption and step counts.
	Usage Usage `json:"usage"`

	// Metrics holds free-form numeric metrics.
	Metrics map[string]float64 `json:"metrics,omitempty"`

	// Labels tag the run for filtering.
	Labels map[string]string `json:"labels,omitempty"`

	// Output is the run's final output value.
	Output any `json:"output,omitempty"`

	// Error is the terminal error text for failed runs.
	Error string `json:"error,omitempty"`
}

// clone returns a deep copy detached from store-owned memory, so a
// caller mutating the result cannot corrupt the stored record.
func (r *Run) clone() *Run {
	out := *r
	out.TriggerMeta = maps.Clone(r.TriggerMeta)
	out.Config = maps.Clone(r.Config)
	out.Metrics = maps.Clone(r.Metrics)
	out.Labels = maps.Clone(r.Labels)
	out.StartedAt = cloneTime(r.StartedAt)
	out.EndedAt = cloneTime(r.EndedAt)
	if r.Steps != nil {
		out.Steps = make([]Step, len(r.Steps))
		copy(out.Steps, r.Steps)
		for i := range out.Steps {
			step := &out.Steps[i]
			step.StartedAt = cloneTime(step.StartedAt)
			step.EndedAt = cloneTime(step.EndedAt)
			if step.Usage != nil {
				u := *step.Usage
				step.Usage = &u
			}
		}
	}
	if r.Artifacts != nil {
		out.Artifacts = append([]Artifact(nil), r.Artifacts...)
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Step records one step execution inside a run.
type Step struct {
	// ID is the step's id within the workflow.
	ID string `json:"id"`

	// Name is the human-readable step name.
	Name string `json:"name,omitempty"`

	// Status is the step's lifecycle state.
	Status StepStatus `json:"status"`

	// Attempts counts executor invocations including retries.
	Attempts int `json:"attempts,omitempty"`

	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`

	// DurationMs is the step's wall-clock duration, set on completion.
	DurationMs int64 `json:"durationMs,omitempty"`

	// Output is the step's output value.
	Output any `json:"output,omitempty"`

	// Error is the terminal error text for failed steps.
	Error string `json:"error,omitempty"`

	// SkipReason explains skipped steps.
	SkipReason string `json:"skipReason,omitempty"`

	// Usage is the step's worker token consumption.
	Usage *Usage `json:"usage,omitempty"`
}

// Artifact references something a run produced.
type Artifact struct {
	// Name identifies the artifact within the run.
	Name string `json:"name"`

	// Type classifies the artifact (e.g. "patch", "plan", "report").
	Type string `json:"type,omitempty"`

	// Path is the artifact's filesystem location, if file-backed.
	Path string `json:"path,omitempty"`

	// URL is the artifact's remote location, if applicable.
	URL string `json:"url,omitempty"`

	// CreatedAt is when the artifact was recorded.
	CreatedAt time.Time `json:"createdAt"`
}

// Usage aggregates worker consumption over a run or step.
type Usage struct {
	InputTokens      int     `json:"inputTokens"`
	OutputTokens     int     `json:"outputTokens"`
	TotalTokens      int     `json:"totalTokens"`
	EstimatedCostUSD float64 `json:"estimatedCostUsd,omitempty"`
	StepCount        int     `json:"stepCount,omitempty"`
	SuccessfulSteps  int     `json:"successfulSteps,omitempty"`
	FailedSteps      int     `json:"failedSteps,omitempty"`
}

// Add accumulates usage.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
	u.EstimatedCostUSD += other.EstimatedCostUSD
}

// Filter selects runs in QueryRuns. Zero fields match everything.
type Filter struct {
	// WorkflowType matches runs of one workflow definition.
	WorkflowType string

	// Status matches runs in one lifecycle state; Statuses matches any
	// of a set. Both empty means any status.
	Status   Status
	Statuses []Status

	// Trigger matches runs started by one trigger source.
	Trigger string

	// TaskID matches runs linked to one external work item.
	TaskID string

	// Since matches runs created at or after the given time.
	Since time.Time

	// Until matches runs created before the given time.
	Until time.Time

	// Labels match runs carrying all given label pairs.
	Labels map[string]string

	// Offset skips that many runs after sorting; Limit caps the number
	// of returned runs, zero meaning no cap.
	Offset int
	Limit  int
}

// Summary aggregates the store's run history.
type Summary struct {
	TotalRuns     int            `json:"totalRuns"`
	ByStatus      map[Status]int `json:"byStatus"`
	ByWorkflow    map[string]int `json:"byWorkflow"`
	ByTrigger     map[string]int `json:"byTrigger"`
	TotalUsage    Usage          `json:"totalUsage"`
	// SuccessRate is completed over all terminal runs.
	SuccessRate   float64 `json:"successRate"`
	AvgDurationMs int64   `json:"avgDurationMs,omitempty"`
	// AvgScore averages metrics.overallScore across runs carrying it.
	AvgScore float64 `json:"avgScore,omitempty"`
}

// overallScoreKey is the metrics entry averaged into Summary.AvgScore.
const overallScoreKey = "overallScore"

// matches reports whether the run passes the filter, ignoring
// Offset and Limit.
func (f *Filter) matches(run *Run) bool {
	if f.WorkflowType != "" && run.WorkflowType != f.WorkflowType {
		return false
	}
	if f.Status != "" && run.Status != f.Status {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if run.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Trigger != "" && run.Trigger != f.Trigger {
		return false
	}
	if f.TaskID != "" && run.TaskID != f.TaskID {
		return false
	}
	if !f.Since.IsZero() && run.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !run.CreatedAt.Before(f.Until) {
		return false
	}
	for k, v := range f.Labels {
		if run.Labels[k] != v {
			return false
		}
	}
	return true
}

// page applies the filter's offset and limit to an already-sorted slice.
func (f *Filter) page(runs []*Run) []*Run {
	if f.Offset > 0 {
		if f.Offset >= len(runs) {
			return nil
		}
		runs = runs[f.Offset:]
	}
	if f.Limit > 0 && len(runs) > f.Limit {
		runs = runs[:f.Limit]
	}
	return runs
}

// summarize aggregates runs into a Summary. Shared by both backends.
func summarize(runs []*Run) *Summary {
	summary := &Summary{
		ByStatus:   make(map[Status]int),
		ByWorkflow: make(map[string]int),
		ByTrigger:  make(map[string]int),
	}

	var totalDuration, timed int64
	var terminal, scored int
	var scoreSum float64
	for _, run := range runs {
		summary.TotalRuns++
		summary.ByStatus[run.Status]++
		summary.ByWorkflow[run.WorkflowType]++
		if run.Trigger != "" {
			summary.ByTrigger[run.Trigger]++
		}
		summary.TotalUsage.Add(run.Usage)
		if run.Status.Terminal() {
			terminal++
		}
		if run.DurationMs > 0 {
			totalDuration += run.DurationMs
			timed++
		}
		if score, ok := run.Metrics[overallScoreKey]; ok {
			scoreSum += score
			scored++
		}
	}
	if terminal > 0 {
		summary.SuccessRate = float64(summary.ByStatus[StatusCompleted]) / float64(terminal)
	}
	if timed > 0 {
		summary.AvgDurationMs = totalDuration / timed
	}
	if scored > 0 {
		summary.AvgScore = scoreSum / float64(scored)
	}
	return summary
}
