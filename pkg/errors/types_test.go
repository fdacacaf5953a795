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

package errors_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	adwerrors "github.com/mkendrick/adwflow/pkg/errors"
)

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *adwerrors.ValidationError
		wantMsg string
	}{
		{
			name: "with field",
			err: &adwerrors.ValidationError{
				Field:      "steps",
				Message:    "workflow must have at least one step",
				Suggestion: "add a step to the definition",
			},
			wantMsg: "validation failed on steps: workflow must have at least one step",
		},
		{
			name: "without field",
			err: &adwerrors.ValidationError{
				Message: "invalid format",
			},
			wantMsg: "validation failed: invalid format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("ValidationError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestNotFoundError_Error(t *testing.T) {
	err := &adwerrors.NotFoundError{Resource: "run", ID: "adw-123"}
	if got, want := err.Error(), "run not found: adw-123"; got != want {
		t.Errorf("NotFoundError.Error() = %q, want %q", got, want)
	}
}

func TestWorkerError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *adwerrors.WorkerError
		wantMsg string
	}{
		{
			name: "with status and request id",
			err: &adwerrors.WorkerError{
				Provider:   "anthropic",
				StatusCode: 429,
				Message:    "rate limit exceeded",
				RequestID:  "req_abc",
			},
			wantMsg: "worker anthropic error [HTTP 429]: rate limit exceeded (request-id: req_abc)",
		},
		{
			name: "minimal",
			err: &adwerrors.WorkerError{
				Provider: "stub",
				Message:  "boom",
			},
			wantMsg: "worker stub error: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("WorkerError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestWorkerError_IsRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
		{400, false},
		{401, false},
		{404, false},
		{0, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			err := &adwerrors.WorkerError{Provider: "stub", StatusCode: tt.status, Message: "x"}
			if got := err.IsRetryable(); got != tt.want {
				t.Errorf("IsRetryable() with status %d = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestWorkerError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := &adwerrors.WorkerError{Provider: "stub", Message: "call failed", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestTimeoutError(t *testing.T) {
	err := &adwerrors.TimeoutError{Operation: "validation", Duration: 30 * time.Second}

	if got, want := err.Error(), "validation operation timed out after 30s"; got != want {
		t.Errorf("TimeoutError.Error() = %q, want %q", got, want)
	}
	if !err.IsRetryable() {
		t.Error("timeouts should classify as retryable")
	}
	if got, want := err.ErrorType(), "timeout"; got != want {
		t.Errorf("ErrorType() = %q, want %q", got, want)
	}
}

func TestCancelledError(t *testing.T) {
	err := &adwerrors.CancelledError{Operation: "workflow run"}

	if got, want := err.Error(), "workflow run cancelled"; got != want {
		t.Errorf("CancelledError.Error() = %q, want %q", got, want)
	}
	if err.IsRetryable() {
		t.Error("cancellation must never be retryable")
	}
}

func TestPersistenceError(t *testing.T) {
	cause := errors.New("disk full")
	err := &adwerrors.PersistenceError{Op: "save", Path: "/tmp/runs.json", Cause: cause}

	if got, want := err.Error(), "store save failed for /tmp/runs.json: disk full"; got != want {
		t.Errorf("PersistenceError.Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		wantRetryable  bool
		wantClassified bool
	}{
		{
			name:           "retryable worker error",
			err:            &adwerrors.WorkerError{Provider: "stub", StatusCode: 503, Message: "overloaded"},
			wantRetryable:  true,
			wantClassified: true,
		},
		{
			name:           "wrapped retryable worker error",
			err:            fmt.Errorf("step failed: %w", &adwerrors.TimeoutError{Operation: "call", Duration: time.Second}),
			wantRetryable:  true,
			wantClassified: true,
		},
		{
			name:           "validation error",
			err:            &adwerrors.ValidationError{Message: "bad"},
			wantRetryable:  false,
			wantClassified: true,
		},
		{
			name:           "plain error",
			err:            errors.New("something broke"),
			wantRetryable:  false,
			wantClassified: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retryable, classified := adwerrors.Retryable(tt.err)
			if retryable != tt.wantRetryable || classified != tt.wantClassified {
				t.Errorf("Retryable() = (%v, %v), want (%v, %v)",
					retryable, classified, tt.wantRetryable, tt.wantClassified)
			}
		})
	}
}
