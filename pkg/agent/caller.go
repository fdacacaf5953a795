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

package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mkendrick/adwflow/internal/log"
	"github.com/mkendrick/adwflow/pkg/errors"
	"github.com/mkendrick/adwflow/pkg/validate"
)

// Caller wraps an Executor with the call harness. A single Caller is
// safe for concurrent use; its call log accumulates across calls.
type Caller struct {
	executor Executor
	config   Config
	logger   *slog.Logger
	limiter  *rate.Limiter
	hooks    []Hooks

	mu    sync.Mutex
	calls []CallRecord
}

// CallerOption configures a Caller.
type CallerOption func(*Caller)

// WithConfig sets the caller's base config.
func WithConfig(cfg Config) CallerOption {
	return func(c *Caller) { c.config = cfg }
}

// WithLogger sets the caller's logger.
func WithLogger(logger *slog.Logger) CallerOption {
	return func(c *Caller) { c.logger = logger }
}

// WithRateLimit throttles executor invocations to rps calls per second
// with the given burst. Retry attempts count against the limit too.
func WithRateLimit(rps float64, burst int) CallerOption {
	return func(c *Caller) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithHooks registers a hook set invoked around every call.
func WithHooks(hooks Hooks) CallerOption {
	return func(c *Caller) { c.hooks = append(c.hooks, hooks) }
}

// NewCaller creates a call harness around the executor.
func NewCaller(executor Executor, opts ...CallerOption) *Caller {
	c := &Caller{
		executor: executor,
		config:   DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.config = c.config.WithDefaults()
	return c
}

// Calls returns a copy of the call log.
func (c *Caller) Calls() []CallRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CallRecord, len(c.calls))
	copy(out, c.calls)
	return out
}

// Usage returns token usage accumulated over all successful calls.
func (c *Caller) Usage() TokenUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total TokenUsage
	for i := range c.calls {
		if c.calls[i].Response != nil {
			total.Add(c.calls[i].Response.Usage)
		}
	}
	return total
}

// Call performs one wrapped worker call. A non-nil override is merged
// over the caller's base config, set fields winning.
//
// Input validation runs before the first attempt; a failure aborts the
// call with zero executor invocations. Output validation failures
// consume retry attempts like executor errors. OnBeforeCall and
// OnAfterCall each fire exactly once per Call regardless of retries.
func (c *Caller) Call(ctx context.Context, req *Request, override *Config) (*Response, error) {
	cfg := c.config.merge(override)
	callID := uuid.New().String()
	logger := c.logger.With(log.CallIDKey, callID)

	record := CallRecord{
		CallID:    callID,
		Status:    CallStatusFailed,
		StartedAt: time.Now(),
		Request:   req,
	}
	defer func() {
		record.CompletedAt = time.Now()
		c.mu.Lock()
		c.calls = append(c.calls, record)
		c.mu.Unlock()
		c.fireAfterCall(&record)
	}()

	if req == nil || req.Prompt == "" {
		record.Error = "prompt is required"
		return nil, &errors.ValidationError{Field: "prompt", Message: "prompt is required"}
	}

	if cfg.InputValidation != nil {
		res := validate.Validate(ctx, requestEnv(req), cfg.InputValidation)
		if !res.Valid {
			record.Status = CallStatusSkipped
			record.Error = "input validation failed: " + joinErrors(res.Errors)
			logger.Warn("call rejected by input validation", "errors", res.Errors)
			return nil, &errors.ValidationError{Field: "request", Message: record.Error}
		}
	}

	c.fireBeforeCall(callID, req)

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		record.Attempts = attempt

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				record.Error = err.Error()
				return nil, &errors.CancelledError{Operation: "worker call"}
			}
		}

		resp, err := c.executeOnce(ctx, req, cfg)
		if err == nil {
			record.Status = CallStatusSuccess
			record.Response = resp
			logger.Debug("call succeeded",
				log.AttemptKey, attempt,
				"input_tokens", resp.Usage.InputTokens,
				"output_tokens", resp.Usage.OutputTokens)
			return resp, nil
		}
		lastErr = err

		if attempt == cfg.MaxAttempts || !cfg.IsRetryable(err, attempt) {
			break
		}

		logger.Warn("call attempt failed, retrying",
			log.AttemptKey, attempt, "error", err.Error())

		delay := cfg.backoffDelay(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			record.Error = lastErr.Error()
			return nil, &errors.CancelledError{Operation: "worker call"}
		}
	}

	record.Error = lastErr.Error()
	logger.Error("call failed", log.AttemptKey, record.Attempts, "error", record.Error)
	return nil, lastErr
}

// executeOnce runs one attempt with the per-attempt timeout, validating
// the output when configured.
func (c *Caller) executeOnce(ctx context.Context, req *Request, cfg Config) (*Response, error) {
	attemptCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.executor.Execute(attemptCtx, req)
	if err != nil {
		if attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, &errors.TimeoutError{Operation: "worker call", Duration: time.Since(start)}
		}
		return nil, err
	}
	if resp == nil {
		return nil, &errors.WorkerError{Message: "executor returned nil response"}
	}

	if cfg.OutputValidation != nil {
		res := validate.Validate(ctx, resp.Content, cfg.OutputValidation)
		if !res.Valid {
			return nil, &outputValidationError{errors: res.Errors}
		}
	}

	return resp, nil
}

func (c *Caller) fireBeforeCall(callID string, req *Request) {
	for _, h := range c.hooks {
		if h.OnBeforeCall != nil {
			safeInvoke(c.logger, func() { h.OnBeforeCall(callID, req) })
		}
	}
}

func (c *Caller) fireAfterCall(record *CallRecord) {
	for _, h := range c.hooks {
		if h.OnAfterCall != nil {
			safeInvoke(c.logger, func() { h.OnAfterCall(record) })
		}
	}
}

func safeInvoke(logger *slog.Logger, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Warn("call hook panicked", "panic", rec)
		}
	}()
	fn()
}

// requestEnv exposes the request to input validators as a plain map.
func requestEnv(req *Request) map[string]any {
	return map[string]any{
		"prompt":       req.Prompt,
		"systemPrompt": req.SystemPrompt,
		"model":        req.Model,
		"maxTokens":    req.MaxTokens,
	}
}

func joinErrors(errs []string) string {
	out := ""
	for i, e := range errs {
		if i > 0 {
			out += "; "
		}
		out += e
	}
	return out
}

// outputValidationError marks a response rejected by output validation.
// It is retryable: the worker may produce acceptable output on the next
// attempt.
type outputValidationError struct {
	errors []string
}

func (e *outputValidationError) Error() string {
	return "output validation failed: " + joinErrors(e.errors)
}

// ErrorType implements errors.ErrorClassifier.
func (e *outputValidationError) ErrorType() string { return "output_validation" }

// IsRetryable implements errors.ErrorClassifier.
func (e *outputValidationError) IsRetryable() bool { return true }
