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

package connector

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkendrick/adwflow/pkg/agent"
	"github.com/mkendrick/adwflow/pkg/runstore"
	"github.com/mkendrick/adwflow/pkg/workflow"
)

func newRecorder(t *testing.T) (*Recorder, runstore.Store) {
	t.Helper()
	store, err := runstore.NewFileStore(filepath.Join(t.TempDir(), "runs.json"))
	require.NoError(t, err)
	return NewRecorder(store, nil), store
}

func TestRecorderMirrorsSuccessfulRun(t *testing.T) {
	recorder, store := newRecorder(t)
	recorder.Trigger = "manual"
	recorder.Task = "implement retry backoff"

	runner := workflow.NewRunner()
	runner.Subscribe(recorder.Hooks())

	def := &workflow.Definition{
		ID:   "plan_build",
		Name: "Plan and Build",
		Steps: []workflow.Step{
			{
				ID: "plan",
				Execute: func(ctx context.Context, input any, sc *workflow.StepContext) (any, error) {
					return "the plan", nil
				},
			},
			{
				ID:        "build",
				DependsOn: []string{"plan"},
				Execute: func(ctx context.Context, input any, sc *workflow.StepContext) (any, error) {
					return "the build", nil
				},
			},
		},
	}

	result, err := runner.Run(context.Background(), def, nil)
	require.NoError(t, err)
	require.Equal(t, workflow.RunStatusSuccess, result.Status)

	run, err := store.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)

	assert.Equal(t, runstore.StatusCompleted, run.Status)
	assert.Equal(t, "plan_build", run.WorkflowType)
	assert.Equal(t, "manual", run.Trigger)
	assert.Equal(t, "implement retry backoff", run.Task)
	assert.NotNil(t, run.StartedAt)
	assert.NotNil(t, run.EndedAt)

	require.Len(t, run.Steps, 2)
	assert.Equal(t, runstore.StepCompleted, run.Steps[0].Status)
	assert.Equal(t, "the plan", run.Steps[0].Output)
	assert.Equal(t, runstore.StepCompleted, run.Steps[1].Status)
}

func TestRecorderMirrorsFailureAndSkips(t *testing.T) {
	recorder, store := newRecorder(t)

	runner := workflow.NewRunner()
	runner.Subscribe(recorder.Hooks())

	def := &workflow.Definition{
		ID:   "wf",
		Name: "failing",
		DefaultRetry: &workflow.RetryConfig{
			MaxAttempts:  1,
			InitialDelay: time.Millisecond,
		},
		Steps: []workflow.Step{
			{
				ID: "broken",
				Execute: func(ctx context.Context, input any, sc *workflow.StepContext) (any, error) {
					return nil, errors.New("compile error")
				},
			},
			{
				ID:        "never",
				DependsOn: []string{"broken"},
				Execute: func(ctx context.Context, input any, sc *workflow.StepContext) (any, error) {
					return nil, nil
				},
			},
		},
	}

	result, err := runner.Run(context.Background(), def, nil)
	require.NoError(t, err)
	require.Equal(t, workflow.RunStatusFailed, result.Status)

	run, err := store.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)

	assert.Equal(t, runstore.StatusFailed, run.Status)
	assert.Contains(t, run.Error, "step broken")
	assert.Contains(t, run.Error, "compile error")

	require.Len(t, run.Steps, 2)
	assert.Equal(t, runstore.StepFailed, run.Steps[0].Status)
	assert.Equal(t, runstore.StepSkipped, run.Steps[1].Status)
	assert.NotEmpty(t, run.Steps[1].SkipReason)
}

func TestRecorderMirrorsCancellation(t *testing.T) {
	recorder, store := newRecorder(t)

	runner := workflow.NewRunner()
	runner.Subscribe(recorder.Hooks())

	ctx, cancel := context.WithCancel(context.Background())
	def := &workflow.Definition{
		ID:   "wf",
		Name: "cancelled",
		Steps: []workflow.Step{
			{
				ID: "first",
				Execute: func(ctx context.Context, input any, sc *workflow.StepContext) (any, error) {
					cancel()
					return "ok", nil
				},
			},
			{
				ID: "second",
				Execute: func(ctx context.Context, input any, sc *workflow.StepContext) (any, error) {
					return nil, nil
				},
			},
		},
	}

	result, err := runner.Run(ctx, def, nil)
	require.NoError(t, err)
	require.Equal(t, workflow.RunStatusCancelled, result.Status)

	run, err := store.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, runstore.StatusCancelled, run.Status)
}

func TestRecorderAttributesStepUsage(t *testing.T) {
	recorder, store := newRecorder(t)
	recorder.StepUsage = func(runID, stepID string) *runstore.Usage {
		if stepID == "plan" {
			return &runstore.Usage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150}
		}
		return nil
	}

	runner := workflow.NewRunner()
	runner.Subscribe(recorder.Hooks())

	def := &workflow.Definition{
		ID:   "wf",
		Name: "wf",
		Steps: []workflow.Step{
			{
				ID: "plan",
				Execute: func(ctx context.Context, input any, sc *workflow.StepContext) (any, error) {
					return "the plan", nil
				},
			},
			{
				ID:        "apply",
				DependsOn: []string{"plan"},
				Execute: func(ctx context.Context, input any, sc *workflow.StepContext) (any, error) {
					return "applied", nil
				},
			},
		},
	}

	result, err := runner.Run(context.Background(), def, nil)
	require.NoError(t, err)
	require.Equal(t, workflow.RunStatusSuccess, result.Status)

	run, err := store.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)

	require.Len(t, run.Steps, 2)
	require.NotNil(t, run.Steps[0].Usage)
	assert.Equal(t, 150, run.Steps[0].Usage.TotalTokens)
	assert.Nil(t, run.Steps[1].Usage)
	assert.Equal(t, 150, run.Usage.TotalTokens, "step usage reaches the run aggregate")
}

func TestRecorderRecordsRunMetrics(t *testing.T) {
	recorder, store := newRecorder(t)

	runner := workflow.NewRunner()
	runner.Subscribe(recorder.Hooks())

	def := &workflow.Definition{
		ID:   "wf",
		Name: "wf",
		Steps: []workflow.Step{
			{
				ID: "build",
				Execute: func(ctx context.Context, input any, sc *workflow.StepContext) (any, error) {
					return "ok", nil
				},
			},
			{
				ID:        "evaluate",
				DependsOn: []string{"build"},
				Execute: func(ctx context.Context, input any, sc *workflow.StepContext) (any, error) {
					return map[string]any{"overallScore": 0.75}, nil
				},
			},
		},
	}

	result, err := runner.Run(context.Background(), def, nil)
	require.NoError(t, err)
	require.Equal(t, workflow.RunStatusSuccess, result.Status)

	run, err := store.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)

	assert.Equal(t, 1.0, run.Metrics["completeness"])
	assert.Equal(t, 0.75, run.Metrics["overallScore"])
}

func TestCallerUsageAttributesByMetadata(t *testing.T) {
	caller := agent.NewCaller(&agent.StubExecutor{})

	_, err := caller.Call(context.Background(), &agent.Request{
		Prompt: "write the plan",
		Metadata: map[string]string{
			agent.MetadataRunID:  "run-1",
			agent.MetadataStepID: "plan",
		},
	}, nil)
	require.NoError(t, err)

	_, err = caller.Call(context.Background(), &agent.Request{
		Prompt: "unrelated call",
		Metadata: map[string]string{
			agent.MetadataRunID:  "run-2",
			agent.MetadataStepID: "plan",
		},
	}, nil)
	require.NoError(t, err)

	stepUsage := CallerUsage(caller)

	usage := stepUsage("run-1", "plan")
	require.NotNil(t, usage)
	assert.Positive(t, usage.TotalTokens)
	assert.Equal(t, usage.InputTokens+usage.OutputTokens, usage.TotalTokens)

	assert.Nil(t, stepUsage("run-1", "build"), "no calls for that step")
	assert.Nil(t, stepUsage("run-9", "plan"), "no calls for that run")
}

func TestRecorderUsageAndArtifacts(t *testing.T) {
	recorder, store := newRecorder(t)
	ctx := context.Background()

	require.NoError(t, store.CreateRun(ctx, &runstore.Run{ID: "run-1", WorkflowType: "wf"}))

	recorder.RecordUsage("run-1", runstore.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15})
	recorder.RecordArtifact("run-1", &runstore.Artifact{Name: "patch", Type: "patch", Path: "/tmp/p.diff"})

	run, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 15, run.Usage.TotalTokens)
	require.Len(t, run.Artifacts, 1)
	assert.Equal(t, "patch", run.Artifacts[0].Name)
}
