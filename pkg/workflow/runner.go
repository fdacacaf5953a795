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

package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mkendrick/adwflow/internal/log"
	"github.com/mkendrick/adwflow/pkg/errors"
	"github.com/mkendrick/adwflow/pkg/validate"
	"github.com/mkendrick/adwflow/pkg/workflow/expression"
)

// Runner executes workflow definitions one step at a time. Steps of a
// single run are strictly sequential; callers needing parallelism within
// a step reach for the agent call wrapper's bounded pool.
type Runner struct {
	logger      *slog.Logger
	exprEval    *expression.Evaluator
	transformer TransformFunc
	subscribers []Hooks
}

// NewRunner creates a workflow runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		logger:   slog.Default(),
		exprEval: expression.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithTransformer installs the expression engine used for step
// Transform fields.
func WithTransformer(fn TransformFunc) RunnerOption {
	return func(r *Runner) { r.transformer = fn }
}

// Subscribe registers an additional hook set. Subscribers are invoked in
// registration order after the definition's own hooks; all are
// best-effort.
func (r *Runner) Subscribe(hooks Hooks) {
	r.subscribers = append(r.subscribers, hooks)
}

// RunOption configures a single run.
type RunOption func(*runOptions)

type runOptions struct {
	runID string
}

// WithRunID pins the run's identifier instead of generating one. Used by
// callers that pre-create the run in a store.
func WithRunID(id string) RunOption {
	return func(o *runOptions) { o.runID = id }
}

// Run executes the definition against the initial input. Cancellation is
// carried by ctx and is polled between steps, never pre-emptively inside
// a running step body.
//
// Run returns an error only when the definition itself is invalid; step
// failures are enumerated inside the returned RunResult.
func (r *Runner) Run(ctx context.Context, def *Definition, input any, opts ...RunOption) (*RunResult, error) {
	if def == nil {
		return nil, &errors.ValidationError{Field: "definition", Message: "definition cannot be nil"}
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}

	var options runOptions
	for _, opt := range opts {
		opt(&options)
	}
	runID := options.runID
	if runID == "" {
		runID = uuid.New().String()
	}

	if def.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, def.Timeout)
		defer cancel()
	}

	logger := log.WithRun(r.logger, runID).With(log.WorkflowKey, def.Name)

	index := make(map[string]int, len(def.Steps))
	for i, step := range def.Steps {
		index[step.ID] = i
	}
	order := executionOrder(def.Steps, index)

	result := &RunResult{
		RunID:   runID,
		Status:  RunStatusSuccess,
		Outputs: make(map[string]any),
		Records: make([]StepRecord, len(def.Steps)),
	}
	for i, step := range def.Steps {
		name := step.Name
		if name == "" {
			name = step.ID
		}
		result.Records[i] = StepRecord{StepID: step.ID, Name: name, Status: StepStatusPending}
	}

	r.fireWorkflowStart(def, runID)
	logger.Info("workflow started", "steps", len(def.Steps))

	cancelled := false
	aborted := false

	for _, i := range order {
		step := &def.Steps[i]
		record := &result.Records[i]

		if !cancelled && ctx.Err() != nil {
			cancelled = true
		}
		if cancelled || aborted {
			record.Status = StepStatusSkipped
			if cancelled {
				record.SkipReason = "run cancelled"
			} else {
				record.SkipReason = "earlier step failed"
			}
			continue
		}

		if reason := unmetDependency(step, result, index); reason != "" {
			record.Status = StepStatusSkipped
			record.SkipReason = reason
			logger.Debug("step skipped", log.StepIDKey, step.ID, "reason", reason)
			continue
		}

		sc := &StepContext{
			RunID:           runID,
			StepID:          step.ID,
			Attempt:         1,
			Input:           input,
			PreviousResults: result.Outputs,
			Logger:          log.WithStep(logger, step.ID),
		}

		skip, err := r.conditionSkips(step, sc)
		if err != nil {
			record.Status = StepStatusFailed
			record.Error = err.Error()
			result.Failures = append(result.Failures, StepFailure{StepID: step.ID, Error: record.Error})
			if !step.ContinueOnFailure {
				aborted = true
			}
			continue
		}
		if skip {
			record.Status = StepStatusSkipped
			record.SkipReason = "condition evaluated to false"
			logger.Debug("step skipped", log.StepIDKey, step.ID, "reason", record.SkipReason)
			continue
		}

		r.fireStepStart(def, runID, step)
		interrupted := r.executeWithRetry(ctx, def, step, sc, record)
		r.fireStepEnd(def, runID, record)

		switch record.Status {
		case StepStatusSuccess:
			result.Outputs[step.ID] = record.Output
		case StepStatusFailed:
			result.Failures = append(result.Failures, StepFailure{StepID: step.ID, Error: record.Error})
			if !step.ContinueOnFailure {
				aborted = true
			}
		}
		if interrupted {
			cancelled = true
		}
	}

	switch {
	case cancelled:
		result.Status = RunStatusCancelled
	case len(result.Failures) > 0:
		result.Status = RunStatusFailed
	default:
		result.Status = RunStatusSuccess
	}

	logger.Info("workflow finished", "status", result.Status, "failures", len(result.Failures))
	r.fireWorkflowEnd(def, runID, result)
	return result, nil
}

// executeWithRetry runs one step's retry loop, mutating record in place.
// It reports whether the run's cancellation signal interrupted a backoff
// wait.
func (r *Runner) executeWithRetry(ctx context.Context, def *Definition, step *Step, sc *StepContext, record *StepRecord) (interrupted bool) {
	retry := resolveRetry(step.Retry, def.DefaultRetry)

	record.Status = StepStatusRunning
	record.StartedAt = time.Now()
	defer func() { record.CompletedAt = time.Now() }()

	var lastErr error
	for attempt := 1; attempt <= retry.MaxAttempts; attempt++ {
		sc.Attempt = attempt
		record.Attempts = attempt

		output, err := r.executeOnce(ctx, step, sc, record)
		if err == nil {
			record.Status = StepStatusSuccess
			record.Output = output
			record.Error = ""
			return false
		}
		lastErr = err

		if attempt == retry.MaxAttempts || !retry.IsRetryable(err, attempt) {
			break
		}

		record.Status = StepStatusRetrying
		r.fireRetry(def, sc.RunID, step.ID, attempt, err)
		sc.Logger.Warn("step attempt failed, retrying",
			log.AttemptKey, attempt, "error", err.Error())

		delay := retry.backoffDelay(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			record.Status = StepStatusFailed
			record.Error = lastErr.Error()
			return true
		}
	}

	record.Status = StepStatusFailed
	record.Error = lastErr.Error()
	sc.Logger.Error("step failed", log.AttemptKey, record.Attempts, "error", record.Error)
	return false
}

// executeOnce runs the step body a single time, applying transform and
// output validation. A failing validation result is returned as an error
// so it consumes retry attempts exactly like a thrown execution error.
func (r *Runner) executeOnce(ctx context.Context, step *Step, sc *StepContext, record *StepRecord) (any, error) {
	output, err := step.Execute(ctx, sc.Input, sc)
	if err != nil {
		return nil, err
	}

	if step.Transform != "" && r.transformer != nil {
		output, err = r.transformer(ctx, step.Transform, output)
		if err != nil {
			return nil, err
		}
	}

	if step.Validation != nil {
		res := validate.Validate(ctx, output, step.Validation)
		record.Validation = &res
		if !res.Valid {
			return nil, &ValidationFailedError{StepID: step.ID, Result: res}
		}
	}

	return output, nil
}

// unmetDependency reports why the step cannot run, or "".
func unmetDependency(step *Step, result *RunResult, index map[string]int) string {
	for _, dep := range step.DependsOn {
		depRecord := &result.Records[index[dep]]
		if depRecord.Status != StepStatusSuccess {
			return "dependency " + dep + " did not complete successfully"
		}
	}
	return ""
}

// conditionSkips evaluates the step's Condition func and When expression.
func (r *Runner) conditionSkips(step *Step, sc *StepContext) (bool, error) {
	if step.Condition != nil && !step.Condition(sc) {
		return true, nil
	}
	if step.When != "" {
		ok, err := r.exprEval.Evaluate(step.When, sc.exprEnv())
		if err != nil {
			return false, err
		}
		if !ok {
			return true, nil
		}
	}
	return false, nil
}

func (r *Runner) allHooks(def *Definition) []Hooks {
	return append([]Hooks{def.Hooks}, r.subscribers...)
}

// Hook invocations run under recover: observer failures never alter the
// engine's outcome.

func (r *Runner) fireWorkflowStart(def *Definition, runID string) {
	for _, h := range r.allHooks(def) {
		if h.OnWorkflowStart != nil {
			safeInvoke(r.logger, func() { h.OnWorkflowStart(runID, def) })
		}
	}
}

func (r *Runner) fireWorkflowEnd(def *Definition, runID string, result *RunResult) {
	for _, h := range r.allHooks(def) {
		if h.OnWorkflowEnd != nil {
			safeInvoke(r.logger, func() { h.OnWorkflowEnd(runID, result) })
		}
	}
}

func (r *Runner) fireStepStart(def *Definition, runID string, step *Step) {
	for _, h := range r.allHooks(def) {
		if h.OnStepStart != nil {
			safeInvoke(r.logger, func() { h.OnStepStart(runID, step) })
		}
	}
}

func (r *Runner) fireStepEnd(def *Definition, runID string, record *StepRecord) {
	for _, h := range r.allHooks(def) {
		if h.OnStepEnd != nil {
			safeInvoke(r.logger, func() { h.OnStepEnd(runID, record) })
		}
	}
}

func (r *Runner) fireRetry(def *Definition, runID, stepID string, attempt int, err error) {
	for _, h := range r.allHooks(def) {
		if h.OnRetry != nil {
			safeInvoke(r.logger, func() { h.OnRetry(runID, stepID, attempt, err) })
		}
	}
}

func safeInvoke(logger *slog.Logger, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Warn("hook panicked", "panic", rec)
		}
	}()
	fn()
}
