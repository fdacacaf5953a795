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

// Package workflow is the deterministic control plane for AI Developer
// Workflows: named sequences of steps executed with dependency ordering,
// conditional skipping, per-step retry with exponential backoff,
// output validation, and cancellation.
//
// A Definition is immutable once constructed and owned by the caller. The
// Runner walks its steps in dependency order, invoking each step's execute
// function and gating completion on the validation engine. Step failures
// are reported inside the RunResult, never as an error from Run.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/mkendrick/adwflow/pkg/errors"
	"github.com/mkendrick/adwflow/pkg/validate"
)

// ExecFunc is the body of a step. It receives the workflow's initial
// input and a StepContext exposing the outputs of completed dependencies.
type ExecFunc func(ctx context.Context, input any, sc *StepContext) (any, error)

// ConditionFunc gates a step; returning false skips it.
type ConditionFunc func(sc *StepContext) bool

// TransformFunc rewrites a step's raw output before validation. The
// runner receives one via WithTransformer; the expression language is the
// installer's concern (adwflow wires jq).
type TransformFunc func(ctx context.Context, expression string, value any) (any, error)

// Step declares a single unit of work within a workflow.
type Step struct {
	// ID uniquely identifies the step within its workflow.
	ID string

	// Name is the human-readable step name. Defaults to ID.
	Name string

	// Execute is the step body. Required.
	Execute ExecFunc

	// DependsOn lists step IDs that must complete successfully before
	// this step starts. Referencing an undeclared step or forming a
	// cycle is a construction-time error.
	DependsOn []string

	// Condition, when present and false, skips the step.
	Condition ConditionFunc

	// When is an expression-language alternative to Condition, evaluated
	// against {input, steps, run_id, step_id}. Both may be set; the step
	// runs only if both pass.
	When string

	// Retry overrides the workflow's default retry policy for this step.
	Retry *RetryConfig

	// Validation gates the step's output. A failing validation is
	// treated exactly like a thrown execution error for retry purposes.
	Validation *validate.Config

	// Transform is an optional expression applied to the raw output
	// before validation. Requires a transformer on the runner.
	Transform string

	// ContinueOnFailure lets the workflow proceed past this step's
	// terminal failure. The overall result is still failed.
	ContinueOnFailure bool
}

// Hooks are best-effort observability callbacks. A hook panicking must
// never abort the workflow; panics are caught and discarded at the call
// site.
type Hooks struct {
	OnWorkflowStart func(runID string, def *Definition)
	OnWorkflowEnd   func(runID string, result *RunResult)
	OnStepStart     func(runID string, step *Step)
	OnStepEnd       func(runID string, record *StepRecord)
	OnRetry         func(runID, stepID string, attempt int, err error)
}

// Definition is an immutable workflow definition.
type Definition struct {
	// ID identifies the definition.
	ID string

	// Name is the workflow's human-readable name.
	Name string

	// Steps execute in an order respecting DependsOn, declaration order
	// breaking ties.
	Steps []Step

	// DefaultRetry applies to steps without their own Retry. Nil means
	// the built-in default (3 attempts, 1s initial delay, 30s cap, 10%
	// jitter, transient errors only).
	DefaultRetry *RetryConfig

	// Timeout bounds the whole run. Zero means no overall timeout.
	Timeout time.Duration

	// Hooks receives lifecycle callbacks for this definition.
	Hooks Hooks
}

// Validate checks the definition for construction errors: missing
// id/name/steps, duplicate step ids, unresolved or cyclic dependencies.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return &errors.ValidationError{Field: "id", Message: "workflow id is required"}
	}
	if d.Name == "" {
		return &errors.ValidationError{Field: "name", Message: "workflow name is required"}
	}
	if len(d.Steps) == 0 {
		return &errors.ValidationError{
			Field:      "steps",
			Message:    "workflow must have at least one step",
			Suggestion: "add a step to the definition",
		}
	}

	index := make(map[string]int, len(d.Steps))
	for i, step := range d.Steps {
		if step.ID == "" {
			return &errors.ValidationError{
				Field:   fmt.Sprintf("steps[%d].id", i),
				Message: "step id is required",
			}
		}
		if _, dup := index[step.ID]; dup {
			return &errors.ValidationError{
				Field:   "steps",
				Message: fmt.Sprintf("duplicate step id: %s", step.ID),
			}
		}
		if step.Execute == nil {
			return &errors.ValidationError{
				Field:   fmt.Sprintf("step[%s].execute", step.ID),
				Message: "step execute function is required",
			}
		}
		index[step.ID] = i
	}

	for _, step := range d.Steps {
		for _, dep := range step.DependsOn {
			if _, ok := index[dep]; !ok {
				return &errors.ValidationError{
					Field:   fmt.Sprintf("step[%s].depends_on", step.ID),
					Message: fmt.Sprintf("dependency not found: %s", dep),
				}
			}
			if dep == step.ID {
				return &errors.ValidationError{
					Field:   fmt.Sprintf("step[%s].depends_on", step.ID),
					Message: "step cannot depend on itself",
				}
			}
		}
	}

	if cycle := findCycle(d.Steps, index); cycle != "" {
		return &errors.ValidationError{
			Field:   "steps",
			Message: fmt.Sprintf("cyclic dependency involving step: %s", cycle),
		}
	}

	return nil
}

// findCycle runs a colored DFS over the dependency graph and returns the
// id of a step on a cycle, or "".
func findCycle(steps []Step, index map[string]int) string {
	const (
		white = 0 // unvisited
		gray  = 1 // on stack
		black = 2 // done
	)
	colors := make([]int, len(steps))

	var visit func(i int) string
	visit = func(i int) string {
		colors[i] = gray
		for _, dep := range steps[i].DependsOn {
			j := index[dep]
			switch colors[j] {
			case gray:
				return steps[j].ID
			case white:
				if id := visit(j); id != "" {
					return id
				}
			}
		}
		colors[i] = black
		return ""
	}

	for i := range steps {
		if colors[i] == white {
			if id := visit(i); id != "" {
				return id
			}
		}
	}
	return ""
}

// executionOrder returns step indices in a dependency-respecting order,
// preferring declaration order among ready steps. Assumes Validate passed.
func executionOrder(steps []Step, index map[string]int) []int {
	done := make([]bool, len(steps))
	order := make([]int, 0, len(steps))

	for len(order) < len(steps) {
		progressed := false
		for i, step := range steps {
			if done[i] {
				continue
			}
			ready := true
			for _, dep := range step.DependsOn {
				if !done[index[dep]] {
					ready = false
					break
				}
			}
			if ready {
				done[i] = true
				order = append(order, i)
				progressed = true
			}
		}
		if !progressed {
			// Unreachable when Validate passed; avoid spinning.
			break
		}
	}
	return order
}
