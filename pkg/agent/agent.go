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

// Package agent wraps calls to a non-deterministic AI worker in a
// deterministic harness: retry with exponential backoff, per-call
// timeouts, input/output validation, rate limiting, and a call log.
//
// The worker itself hides behind the Executor interface; the harness
// never assumes anything about the transport. Callers that need a worker
// for tests use StubExecutor.
package agent

import (
	"context"
	"fmt"
	"time"
)

// Executor performs a single worker call. Implementations wrap an LLM
// provider, a CLI subprocess, or a remote service; they must honor ctx
// cancellation.
type Executor interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req *Request) (*Response, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Metadata keys callers set on requests so entries in the call log can
// be attributed to the workflow run and step that issued them.
const (
	MetadataRunID  = "run_id"
	MetadataStepID = "step_id"
)

// Request describes one worker call.
type Request struct {
	// Prompt is the task text sent to the worker. Required.
	Prompt string `json:"prompt"`

	// SystemPrompt is prepended worker guidance (optional).
	SystemPrompt string `json:"systemPrompt,omitempty"`

	// Model selects the worker model (optional; executor default applies).
	Model string `json:"model,omitempty"`

	// MaxTokens caps the response length (optional).
	MaxTokens int `json:"maxTokens,omitempty"`

	// Metadata carries caller annotations into the call log.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Response is the worker's reply.
type Response struct {
	// Content is the worker's text output.
	Content string `json:"content"`

	// Model is the model that produced the response.
	Model string `json:"model,omitempty"`

	// StopReason indicates why the response ended.
	StopReason string `json:"stopReason,omitempty"`

	// Usage tracks token consumption for the call.
	Usage TokenUsage `json:"usage"`
}

// TokenUsage tracks token consumption for a request.
type TokenUsage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

// Add accumulates usage across calls.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// CallStatus is the terminal state of one wrapped call.
type CallStatus string

const (
	CallStatusSuccess CallStatus = "success"
	CallStatusFailed  CallStatus = "failed"
	CallStatusSkipped CallStatus = "skipped"
)

// CallRecord is one entry in the caller's call log.
type CallRecord struct {
	// CallID uniquely identifies the call.
	CallID string `json:"callId"`

	// Status is the call's terminal state.
	Status CallStatus `json:"status"`

	// Attempts is how many times the executor was invoked.
	Attempts int `json:"attempts"`

	// StartedAt and CompletedAt bound the whole call including retries.
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`

	// Request is the call's request.
	Request *Request `json:"request"`

	// Response is present on success.
	Response *Response `json:"response,omitempty"`

	// Error is the terminal error text on failure.
	Error string `json:"error,omitempty"`
}

// Duration is the wall-clock time of the call including retries.
func (r *CallRecord) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

func (r *CallRecord) String() string {
	return fmt.Sprintf("call %s: %s after %d attempt(s)", r.CallID, r.Status, r.Attempts)
}

// Hooks are best-effort callbacks around each wrapped call. Each fires
// exactly once per call regardless of how many retry attempts it took.
type Hooks struct {
	OnBeforeCall func(callID string, req *Request)
	OnAfterCall  func(record *CallRecord)
}
