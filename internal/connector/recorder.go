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

// Package connector bridges the workflow runner to the run store. A
// Recorder subscribes to runner hooks and mirrors each run's lifecycle
// into persisted run records. Recording is best-effort: a store hiccup
// is logged, never allowed to fail the run itself.
package connector

import (
	"context"
	"log/slog"
	"time"

	"github.com/mkendrick/adwflow/internal/log"
	"github.com/mkendrick/adwflow/pkg/agent"
	"github.com/mkendrick/adwflow/pkg/runstore"
	"github.com/mkendrick/adwflow/pkg/workflow"
)

// storeTimeout bounds each store mutation issued from a hook.
const storeTimeout = 5 * time.Second

// StepUsageFunc reports the worker usage attributable to one step, nil
// when the step made no worker calls.
type StepUsageFunc func(runID, stepID string) *runstore.Usage

// Recorder mirrors workflow runs into a run store.
type Recorder struct {
	store  runstore.Store
	logger *slog.Logger

	// Trigger and task annotate the created run records.
	Trigger string
	Task    string
	TaskID  string
	Labels  map[string]string

	// StepUsage, when set, attributes worker usage to each completed
	// step. CallerUsage adapts an agent call log into one.
	StepUsage StepUsageFunc

	// Metrics are merged into the metrics recorded on run completion.
	Metrics map[string]float64
}

// NewRecorder creates a recorder writing to store.
func NewRecorder(store runstore.Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// Hooks returns the hook set to subscribe on a runner.
func (r *Recorder) Hooks() workflow.Hooks {
	return workflow.Hooks{
		OnWorkflowStart: r.workflowStart,
		OnWorkflowEnd:   r.workflowEnd,
		OnStepStart:     r.stepStart,
		OnStepEnd:       r.stepEnd,
	}
}

func (r *Recorder) workflowStart(runID string, def *workflow.Definition) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	err := r.store.CreateRun(ctx, &runstore.Run{
		ID:           runID,
		WorkflowType: def.ID,
		WorkflowName: def.Name,
		Trigger:      r.Trigger,
		Task:         r.Task,
		TaskID:       r.TaskID,
		Labels:       r.Labels,
	})
	if err != nil {
		r.logger.Warn("failed to record run start", log.RunIDKey, runID, "error", err.Error())
		return
	}
	if err := r.store.StartRun(ctx, runID); err != nil {
		r.logger.Warn("failed to mark run running", log.RunIDKey, runID, "error", err.Error())
	}
}

func (r *Recorder) stepStart(runID string, step *workflow.Step) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	err := r.store.AddStep(ctx, runID, &runstore.Step{ID: step.ID, Name: step.Name})
	if err != nil {
		r.logger.Warn("failed to record step", log.RunIDKey, runID, log.StepIDKey, step.ID, "error", err.Error())
		return
	}
	if err := r.store.StartStep(ctx, runID, step.ID); err != nil {
		r.logger.Warn("failed to mark step running", log.RunIDKey, runID, log.StepIDKey, step.ID, "error", err.Error())
	}
}

func (r *Recorder) stepEnd(runID string, record *workflow.StepRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	var err error
	switch record.Status {
	case workflow.StepStatusSuccess:
		var usage *runstore.Usage
		if r.StepUsage != nil {
			usage = r.StepUsage(runID, record.StepID)
		}
		err = r.store.CompleteStep(ctx, runID, record.StepID, record.Output, usage)
	case workflow.StepStatusFailed:
		err = r.store.FailStep(ctx, runID, record.StepID, record.Error)
	default:
		return
	}
	if err != nil {
		r.logger.Warn("failed to record step result", log.RunIDKey, runID, log.StepIDKey, record.StepID, "error", err.Error())
	}
}

func (r *Recorder) workflowEnd(runID string, result *workflow.RunResult) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	// Steps the runner never started (skipped on dependency failure,
	// condition, or cancellation) only surface here.
	for i := range result.Records {
		record := &result.Records[i]
		if record.Status != workflow.StepStatusSkipped {
			continue
		}
		step := &runstore.Step{
			ID:         record.StepID,
			Name:       record.Name,
			Status:     runstore.StepSkipped,
			SkipReason: record.SkipReason,
		}
		if err := r.store.AddStep(ctx, runID, step); err != nil {
			r.logger.Warn("failed to record skipped step", log.RunIDKey, runID, log.StepIDKey, record.StepID, "error", err.Error())
		}
	}

	var err error
	switch result.Status {
	case workflow.RunStatusSuccess:
		err = r.store.CompleteRun(ctx, runID, result.Outputs, r.runMetrics(result))
	case workflow.RunStatusCancelled:
		err = r.store.CancelRun(ctx, runID)
	default:
		err = r.store.FailRun(ctx, runID, failureText(result))
	}
	if err != nil {
		r.logger.Warn("failed to record run result", log.RunIDKey, runID, "error", err.Error())
	}
}

// overallScoreKey is the conventional name for a run's quality score;
// evaluation steps that emit one get it promoted to a run metric.
const overallScoreKey = "overallScore"

// runMetrics derives the metrics recorded with a completed run:
// completeness is the fraction of steps that succeeded, and a step
// output carrying an overallScore number surfaces as the run's score.
// Caller-supplied metrics win over derived ones.
func (r *Recorder) runMetrics(result *workflow.RunResult) map[string]float64 {
	metrics := make(map[string]float64, len(r.Metrics)+2)
	if n := len(result.Records); n > 0 {
		completed := 0
		for i := range result.Records {
			if result.Records[i].Status == workflow.StepStatusSuccess {
				completed++
			}
		}
		metrics["completeness"] = float64(completed) / float64(n)
	}
	for i := range result.Records {
		out, ok := result.Records[i].Output.(map[string]any)
		if !ok {
			continue
		}
		if score, ok := out[overallScoreKey].(float64); ok {
			metrics[overallScoreKey] = score
		}
	}
	for k, v := range r.Metrics {
		metrics[k] = v
	}
	return metrics
}

// CallerUsage attributes a caller's call log to steps via the run and
// step metadata stamped on each request.
func CallerUsage(caller *agent.Caller) StepUsageFunc {
	return func(runID, stepID string) *runstore.Usage {
		var usage runstore.Usage
		found := false
		for _, call := range caller.Calls() {
			if call.Request == nil || call.Response == nil {
				continue
			}
			meta := call.Request.Metadata
			if meta[agent.MetadataRunID] != runID || meta[agent.MetadataStepID] != stepID {
				continue
			}
			usage.InputTokens += call.Response.Usage.InputTokens
			usage.OutputTokens += call.Response.Usage.OutputTokens
			usage.TotalTokens += call.Response.Usage.TotalTokens
			found = true
		}
		if !found {
			return nil
		}
		return &usage
	}
}

func failureText(result *workflow.RunResult) string {
	if len(result.Failures) == 0 {
		return "workflow failed"
	}
	text := ""
	for i, f := range result.Failures {
		if i > 0 {
			text += "; "
		}
		text += "step " + f.StepID + ": " + f.Error
	}
	return text
}

// RecordUsage accumulates run-level worker usage not attributable to a
// single step, such as out-of-band evaluation calls.
func (r *Recorder) RecordUsage(runID string, usage runstore.Usage) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := r.store.AddUsage(ctx, runID, usage); err != nil {
		r.logger.Warn("failed to record usage", log.RunIDKey, runID, "error", err.Error())
	}
}

// RecordArtifact attaches an artifact to the run.
func (r *Recorder) RecordArtifact(runID string, artifact *runstore.Artifact) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := r.store.AddArtifact(ctx, runID, artifact); err != nil {
		r.logger.Warn("failed to record artifact", log.RunIDKey, runID, "error", err.Error())
	}
}
