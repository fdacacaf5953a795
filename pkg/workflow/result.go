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
	"fmt"
	"strings"
	"time"

	"github.com/mkendrick/adwflow/pkg/validate"
)

// StepStatus represents the execution status of a workflow step.
type StepStatus string

const (
	// StepStatusPending indicates the step has not started yet.
	StepStatusPending StepStatus = "pending"
	// StepStatusRunning indicates the step is currently executing.
	StepStatusRunning StepStatus = "running"
	// StepStatusSuccess indicates the step completed successfully.
	StepStatusSuccess StepStatus = "success"
	// StepStatusFailed indicates the step failed terminally.
	StepStatusFailed StepStatus = "failed"
	// StepStatusSkipped indicates the step never ran: a false condition,
	// an unmet dependency, or an aborted/cancelled run.
	StepStatusSkipped StepStatus = "skipped"
	// StepStatusRetrying indicates a failed attempt with attempts left.
	StepStatusRetrying StepStatus = "retrying"
)

// RunStatus is the overall outcome of a workflow run.
type RunStatus string

const (
	// RunStatusSuccess indicates every non-skipped step succeeded.
	RunStatusSuccess RunStatus = "success"
	// RunStatusFailed indicates at least one step failed terminally.
	RunStatusFailed RunStatus = "failed"
	// RunStatusCancelled indicates the cancellation signal tripped
	// before the run completed.
	RunStatusCancelled RunStatus = "cancelled"
)

// StepRecord is the runner's transient per-step execution log entry. The
// runner owns these only for the run currently executing; durable history
// belongs to the run store.
type StepRecord struct {
	StepID      string
	Name        string
	Status      StepStatus
	Attempts    int
	StartedAt   time.Time
	CompletedAt time.Time
	Output      any
	Error       string
	Validation  *validate.Result
	SkipReason  string
}

// Duration is the wall-clock time the step spent executing, including
// retries and backoff.
func (r *StepRecord) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// StepFailure pairs a terminally failed step with its error text.
type StepFailure struct {
	StepID string
	Error  string
}

// RunResult is always returned from Run, enumerating failures inside it
// rather than surfacing them as errors.
type RunResult struct {
	RunID    string
	Status   RunStatus
	Outputs  map[string]any
	Failures []StepFailure
	Records  []StepRecord
}

// Record returns the execution record for a step id, or nil.
func (r *RunResult) Record(stepID string) *StepRecord {
	for i := range r.Records {
		if r.Records[i].StepID == stepID {
			return &r.Records[i]
		}
	}
	return nil
}

// ValidationFailedError marks a step output that failed validation. It is
// retryable: the underlying non-determinism may produce a valid result on
// a later attempt. Validation failures and thrown execution errors share
// one retry counter; the final error text does not distinguish them.
type ValidationFailedError struct {
	StepID string
	Result validate.Result
}

// Error implements the error interface.
func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("output validation failed: %s", strings.Join(e.Result.Errors, "; "))
}

// ErrorType implements errors.ErrorClassifier.
func (e *ValidationFailedError) ErrorType() string { return "output_validation" }

// IsRetryable implements errors.ErrorClassifier.
func (e *ValidationFailedError) IsRetryable() bool { return true }
