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
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/mkendrick/adwflow/pkg/errors"
)

// RetryConfig configures per-step retry behavior with exponential backoff.
// Resolution order: step-level config overrides the workflow default,
// which overrides DefaultRetryConfig.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, at least 1.
	MaxAttempts int

	// InitialDelay is the backoff before attempt 2.
	InitialDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration

	// Jitter perturbs each delay by up to ±Jitter fraction (0-1).
	Jitter float64

	// IsRetryable decides whether err on the given attempt should be
	// retried. Nil means DefaultIsRetryable.
	IsRetryable func(err error, attempt int) bool
}

// DefaultRetryConfig returns the built-in retry policy: 3 attempts, 1s
// initial delay, 30s cap, 10% jitter, transient errors only.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Jitter:       0.1,
		IsRetryable:  DefaultIsRetryable,
	}
}

// transientSubstrings are error-text fragments treated as retryable when
// the error carries no classification of its own.
var transientSubstrings = []string{
	"timeout",
	"timed out",
	"rate limit",
	"429",
	"500",
	"502",
	"503",
	"504",
	"connection reset",
	"connection refused",
	"overloaded",
}

// DefaultIsRetryable consults the error's ErrorClassifier when it has
// one, then falls back to matching a fixed set of transient-error
// substrings.
func DefaultIsRetryable(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if retryable, classified := errors.Retryable(err); classified {
		return retryable
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range transientSubstrings {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// resolveRetry applies the resolution order and fills defaults for
// partially specified configs.
func resolveRetry(step *RetryConfig, workflowDefault *RetryConfig) *RetryConfig {
	src := step
	if src == nil {
		src = workflowDefault
	}
	if src == nil {
		return DefaultRetryConfig()
	}

	resolved := *src
	if resolved.MaxAttempts < 1 {
		resolved.MaxAttempts = 1
	}
	if resolved.InitialDelay <= 0 {
		resolved.InitialDelay = time.Second
	}
	if resolved.MaxDelay <= 0 {
		resolved.MaxDelay = 30 * time.Second
	}
	if resolved.Jitter < 0 {
		resolved.Jitter = 0
	}
	if resolved.Jitter > 1 {
		resolved.Jitter = 1
	}
	if resolved.IsRetryable == nil {
		resolved.IsRetryable = DefaultIsRetryable
	}
	return &resolved
}

// backoffDelay computes the delay after a failed attempt (1-based):
// min(initial * 2^(attempt-1), max), perturbed by ±jitter.
func (c *RetryConfig) backoffDelay(attempt int) time.Duration {
	delay := float64(c.InitialDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if c.Jitter > 0 {
		delay *= 1 + (rand.Float64()*2-1)*c.Jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
