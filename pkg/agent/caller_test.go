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
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adwerrors "github.com/mkendrick/adwflow/pkg/errors"
	"github.com/mkendrick/adwflow/pkg/validate"
)

func fastConfig(maxAttempts int) Config {
	return Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Jitter:       0,
		IsRetryable:  func(error, int) bool { return true },
	}
}

func TestCallSuccess(t *testing.T) {
	stub := &StubExecutor{}
	caller := NewCaller(stub)

	resp, err := caller.Call(context.Background(), &Request{Prompt: "classify this issue"}, nil)
	require.NoError(t, err)

	assert.Contains(t, resp.Content, "classify this issue")
	assert.Equal(t, "stub", resp.Model)
	assert.Positive(t, resp.Usage.TotalTokens)
	assert.Equal(t, int64(1), stub.CallCount())

	calls := caller.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, CallStatusSuccess, calls[0].Status)
	assert.Equal(t, 1, calls[0].Attempts)
	assert.NotEmpty(t, calls[0].CallID)
}

func TestCallMissingPrompt(t *testing.T) {
	caller := NewCaller(&StubExecutor{})

	_, err := caller.Call(context.Background(), &Request{}, nil)

	var verr *adwerrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "prompt", verr.Field)
}

func TestCallInputValidationShortCircuits(t *testing.T) {
	stub := &StubExecutor{}
	caller := NewCaller(stub, WithConfig(Config{
		MaxAttempts: 3,
		InputValidation: &validate.Config{
			Validator: validate.Func(func(value any) validate.Result {
				env := value.(map[string]any)
				if !strings.Contains(env["prompt"].(string), "issue") {
					return validate.Fail("prompt must mention the issue")
				}
				return validate.OK()
			}),
		},
	}))

	_, err := caller.Call(context.Background(), &Request{Prompt: "do something"}, nil)
	require.Error(t, err)

	assert.Equal(t, int64(0), stub.CallCount(), "rejected input must never reach the worker")
	calls := caller.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, CallStatusSkipped, calls[0].Status)
	assert.Equal(t, 0, calls[0].Attempts)
}

func TestCallRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	executor := ExecutorFunc(func(ctx context.Context, req *Request) (*Response, error) {
		if calls.Add(1) <= 2 {
			return nil, errors.New("rate limit exceeded")
		}
		return &Response{Content: "ok"}, nil
	})

	cfg := fastConfig(5)
	cfg.IsRetryable = DefaultIsRetryable
	caller := NewCaller(executor, WithConfig(cfg))

	resp, err := caller.Call(context.Background(), &Request{Prompt: "p"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, caller.Calls()[0].Attempts)
}

func TestCallStopsOnPermanentError(t *testing.T) {
	var calls atomic.Int32
	executor := ExecutorFunc(func(ctx context.Context, req *Request) (*Response, error) {
		calls.Add(1)
		return nil, &adwerrors.WorkerError{Provider: "anthropic", StatusCode: 401, Message: "unauthorized"}
	})

	cfg := fastConfig(5)
	cfg.IsRetryable = DefaultIsRetryable
	caller := NewCaller(executor, WithConfig(cfg))

	_, err := caller.Call(context.Background(), &Request{Prompt: "p"}, nil)
	require.Error(t, err)

	assert.Equal(t, int32(1), calls.Load(), "client errors must not retry")
}

func TestCallExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	executor := ExecutorFunc(func(ctx context.Context, req *Request) (*Response, error) {
		calls.Add(1)
		return nil, errors.New("503 service unavailable")
	})

	caller := NewCaller(executor, WithConfig(fastConfig(3)))

	_, err := caller.Call(context.Background(), &Request{Prompt: "p"}, nil)
	require.Error(t, err)

	assert.Equal(t, int32(3), calls.Load())
	record := caller.Calls()[0]
	assert.Equal(t, CallStatusFailed, record.Status)
	assert.Contains(t, record.Error, "503")
}

func TestCallOutputValidationRetries(t *testing.T) {
	var calls atomic.Int32
	executor := ExecutorFunc(func(ctx context.Context, req *Request) (*Response, error) {
		if calls.Add(1) < 3 {
			return &Response{Content: "garbage"}, nil
		}
		return &Response{Content: "PATCH READY"}, nil
	})

	cfg := fastConfig(5)
	cfg.IsRetryable = DefaultIsRetryable
	cfg.OutputValidation = &validate.Config{
		Validator: validate.Func(func(value any) validate.Result {
			if !strings.Contains(value.(string), "PATCH") {
				return validate.Fail("response must contain a patch")
			}
			return validate.OK()
		}),
	}
	caller := NewCaller(executor, WithConfig(cfg))

	resp, err := caller.Call(context.Background(), &Request{Prompt: "p"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "PATCH READY", resp.Content)
	assert.Equal(t, int32(3), calls.Load(), "bad output consumes attempts like thrown errors")
}

func TestCallOverrideWinsOverBase(t *testing.T) {
	var calls atomic.Int32
	executor := ExecutorFunc(func(ctx context.Context, req *Request) (*Response, error) {
		calls.Add(1)
		return nil, errors.New("always fails")
	})

	caller := NewCaller(executor, WithConfig(fastConfig(5)))

	override := fastConfig(2)
	_, err := caller.Call(context.Background(), &Request{Prompt: "p"}, &override)
	require.Error(t, err)

	assert.Equal(t, int32(2), calls.Load(), "call-specific MaxAttempts overrides the base")
}

func TestCallPerAttemptTimeout(t *testing.T) {
	executor := ExecutorFunc(func(ctx context.Context, req *Request) (*Response, error) {
		select {
		case <-time.After(10 * time.Second):
			return &Response{Content: "too late"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	cfg := fastConfig(1)
	cfg.Timeout = 10 * time.Millisecond
	caller := NewCaller(executor, WithConfig(cfg))

	_, err := caller.Call(context.Background(), &Request{Prompt: "p"}, nil)

	var terr *adwerrors.TimeoutError
	require.ErrorAs(t, err, &terr)
}

func TestCallHooksFireOncePerCall(t *testing.T) {
	var before, after atomic.Int32
	var calls atomic.Int32
	executor := ExecutorFunc(func(ctx context.Context, req *Request) (*Response, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("flaky")
		}
		return &Response{Content: "ok"}, nil
	})

	caller := NewCaller(executor,
		WithConfig(fastConfig(5)),
		WithHooks(Hooks{
			OnBeforeCall: func(callID string, req *Request) { before.Add(1) },
			OnAfterCall:  func(record *CallRecord) { after.Add(1) },
		}))

	_, err := caller.Call(context.Background(), &Request{Prompt: "p"}, nil)
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int32(1), before.Load(), "OnBeforeCall fires once regardless of retries")
	assert.Equal(t, int32(1), after.Load(), "OnAfterCall fires once regardless of retries")
}

func TestCallCancellationInterruptsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	executor := ExecutorFunc(func(ctx context.Context, req *Request) (*Response, error) {
		cancel()
		return nil, errors.New("fail once")
	})

	cfg := fastConfig(3)
	cfg.InitialDelay = time.Hour
	caller := NewCaller(executor, WithConfig(cfg))

	start := time.Now()
	_, err := caller.Call(ctx, &Request{Prompt: "p"}, nil)

	var cerr *adwerrors.CancelledError
	require.ErrorAs(t, err, &cerr)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestUsageAccumulates(t *testing.T) {
	caller := NewCaller(&StubExecutor{})

	_, err := caller.Call(context.Background(), &Request{Prompt: "first task prompt"}, nil)
	require.NoError(t, err)
	_, err = caller.Call(context.Background(), &Request{Prompt: "second task prompt"}, nil)
	require.NoError(t, err)

	usage := caller.Usage()
	assert.Positive(t, usage.InputTokens)
	assert.Positive(t, usage.OutputTokens)
	assert.Equal(t, usage.InputTokens+usage.OutputTokens, usage.TotalTokens)
}

func TestConfigMerge(t *testing.T) {
	base := Config{MaxAttempts: 5, InitialDelay: time.Second, Timeout: time.Minute}

	merged := base.merge(&Config{MaxAttempts: 2})
	assert.Equal(t, 2, merged.MaxAttempts)
	assert.Equal(t, time.Second, merged.InitialDelay, "unset overlay fields keep base values")
	assert.Equal(t, time.Minute, merged.Timeout)

	merged = base.merge(nil)
	assert.Equal(t, 5, merged.MaxAttempts)
	assert.NotNil(t, merged.IsRetryable, "defaults fill in after merge")
}

func TestConfigMergeJitterOverride(t *testing.T) {
	base := Config{MaxAttempts: 3, Jitter: 0.5}

	merged := base.merge(&Config{MaxAttempts: 2})
	assert.Equal(t, 0.5, merged.Jitter, "zero overlay jitter keeps the base value")

	merged = base.merge(&Config{Jitter: 0.2})
	assert.Equal(t, 0.2, merged.Jitter)

	merged = base.merge(&Config{Jitter: -1})
	assert.Equal(t, 0.0, merged.Jitter, "negative overlay disables jitter")
}
