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

package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mkendrick/adwflow/pkg/workflow"
)

const tracerName = "adwflow.workflow"

// Tracing is a runner subscriber that emits an OpenTelemetry span per
// run and per step. The spans go to the globally registered tracer
// provider; without one they are no-ops.
type Tracing struct {
	tracer trace.Tracer

	mu        sync.Mutex
	runSpans  map[string]spanEntry
	stepSpans map[string]trace.Span
}

type spanEntry struct {
	ctx  context.Context
	span trace.Span
}

// NewTracing creates a tracing subscriber.
func NewTracing() *Tracing {
	return &Tracing{
		tracer:    otel.Tracer(tracerName),
		runSpans:  make(map[string]spanEntry),
		stepSpans: make(map[string]trace.Span),
	}
}

// WorkflowHooks returns the hook set to subscribe on a runner.
func (t *Tracing) WorkflowHooks() workflow.Hooks {
	return workflow.Hooks{
		OnWorkflowStart: t.workflowStart,
		OnWorkflowEnd:   t.workflowEnd,
		OnStepStart:     t.stepStart,
		OnStepEnd:       t.stepEnd,
	}
}

func (t *Tracing) workflowStart(runID string, def *workflow.Definition) {
	ctx, span := t.tracer.Start(context.Background(), "workflow.run",
		trace.WithAttributes(
			attribute.String("adwflow.run_id", runID),
			attribute.String("adwflow.workflow", def.ID),
			attribute.Int("adwflow.steps", len(def.Steps)),
		))

	t.mu.Lock()
	t.runSpans[runID] = spanEntry{ctx: ctx, span: span}
	t.mu.Unlock()
}

func (t *Tracing) workflowEnd(runID string, result *workflow.RunResult) {
	t.mu.Lock()
	entry, ok := t.runSpans[runID]
	delete(t.runSpans, runID)
	t.mu.Unlock()
	if !ok {
		return
	}

	switch result.Status {
	case workflow.RunStatusSuccess:
		entry.span.SetStatus(codes.Ok, "")
	default:
		entry.span.SetStatus(codes.Error, string(result.Status))
	}
	entry.span.SetAttributes(attribute.Int("adwflow.failures", len(result.Failures)))
	entry.span.End()
}

func (t *Tracing) stepStart(runID string, step *workflow.Step) {
	t.mu.Lock()
	parent, ok := t.runSpans[runID]
	t.mu.Unlock()

	ctx := context.Background()
	if ok {
		ctx = parent.ctx
	}
	_, span := t.tracer.Start(ctx, "workflow.step",
		trace.WithAttributes(
			attribute.String("adwflow.run_id", runID),
			attribute.String("adwflow.step_id", step.ID),
		))

	t.mu.Lock()
	t.stepSpans[runID+"/"+step.ID] = span
	t.mu.Unlock()
}

func (t *Tracing) stepEnd(runID string, record *workflow.StepRecord) {
	key := runID + "/" + record.StepID
	t.mu.Lock()
	span, ok := t.stepSpans[key]
	delete(t.stepSpans, key)
	t.mu.Unlock()
	if !ok {
		return
	}

	span.SetAttributes(attribute.Int("adwflow.attempts", record.Attempts))
	if record.Status == workflow.StepStatusFailed {
		span.SetStatus(codes.Error, record.Error)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
