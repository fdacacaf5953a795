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
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/mkendrick/adwflow/pkg/errors"
	"github.com/mkendrick/adwflow/pkg/validate"
)

// Config configures the call harness. Zero values fall back to defaults
// at call time; a call-specific Config merged over the caller's base
// wins field by field.
type Config struct {
	// MaxAttempts is the total number of executor invocations, at least 1.
	// Default: 3.
	MaxAttempts int

	// InitialDelay is the backoff before attempt 2. Default: 1s.
	InitialDelay time.Duration

	// MaxDelay caps the backoff delay. Default: 30s.
	MaxDelay time.Duration

	// Jitter perturbs each delay by up to ±Jitter fraction (0-1).
	// Default: 0.1. In a per-call override zero means "keep the base
	// value"; pass a negative Jitter to explicitly disable jitter.
	Jitter float64

	// Timeout bounds each individual attempt. Zero means no per-attempt
	// timeout.
	Timeout time.Duration

	// InputValidation gates the request before the first attempt. A
	// failing input validation aborts the call with zero executor
	// invocations.
	InputValidation *validate.Config

	// OutputValidation gates the response. A failing output validation
	// consumes a retry attempt exactly like an executor error.
	OutputValidation *validate.Config

	// IsRetryable decides whether err on the given attempt should be
	// retried. Nil means DefaultIsRetryable.
	IsRetryable func(err error, attempt int) bool
}

// DefaultConfig returns the default call harness configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Jitter:       0.1,
		IsRetryable:  DefaultIsRetryable,
	}
}

// WithDefaults fills in missing config values with defaults.
func (c Config) WithDefaults() Config {
	result := c
	if result.MaxAttempts < 1 {
		result.MaxAttempts = 3
	}
	if result.InitialDelay <= 0 {
		result.InitialDelay = time.Second
	}
	if result.MaxDelay <= 0 {
		result.MaxDelay = 30 * time.Second
	}
	if result.Jitter < 0 {
		result.Jitter = 0
	}
	if result.Jitter > 1 {
		result.Jitter = 1
	}
	if result.IsRetryable == nil {
		result.IsRetryable = DefaultIsRetryable
	}
	return result
}

// merge overlays a call-specific config onto the base; set fields in
// the overlay win, zero-valued fields keep the base value. Jitter
// cannot be zeroed through an overlay directly, only via a negative
// value, which WithDefaults then clamps to zero.
func (c Config) merge(overlay *Config) Config {
	if overlay == nil {
		return c.WithDefaults()
	}
	result := c
	if overlay.MaxAttempts > 0 {
		result.MaxAttempts = overlay.MaxAttempts
	}
	if overlay.InitialDelay > 0 {
		result.InitialDelay = overlay.InitialDelay
	}
	if overlay.MaxDelay > 0 {
		result.MaxDelay = overlay.MaxDelay
	}
	if overlay.Jitter != 0 {
		result.Jitter = overlay.Jitter
	}
	if overlay.Timeout > 0 {
		result.Timeout = overlay.Timeout
	}
	if overlay.InputValidation != nil {
		result.InputValidation = overlay.InputValidation
	}
	if overlay.OutputValidation != nil {
		result.OutputValidation = overlay.OutputValidation
	}
	if overlay.IsRetryable != nil {
		result.IsRetryable = overlay.IsRetryable
	}
	return result.WithDefaults()
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
// one, then falls back to matching transient-error substrings.
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

// backoffDelay computes the delay after a failed attempt (1-based):
// min(initial * 2^(attempt-1), max), perturbed by ±jitter.
func (c Config) backoffDelay(attempt int) time.Duration {
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
