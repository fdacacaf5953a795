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

// Package validate is the output-validation engine for workflow steps and
// agent calls.
//
// Validators are composable values implementing the Validator interface:
// a custom function (Func), a structural schema check (Schema), and the
// AllOf/AnyOf combinators. Validate never panics and always returns within
// the configured timeout; a timeout is reported as a validation error, not
// a process fault.
package validate

import (
	"context"
	"fmt"
	"time"
)

// DefaultTimeout bounds a single validation pass.
const DefaultTimeout = 30 * time.Second

// Result is the outcome of a validation pass.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// OK is the passing result.
func OK() Result {
	return Result{Valid: true}
}

// Fail builds a failing result from the given error messages.
func Fail(errs ...string) Result {
	return Result{Valid: false, Errors: errs}
}

// Merge folds other into r: validity ANDs, errors and warnings concatenate.
func (r Result) Merge(other Result) Result {
	return Result{
		Valid:    r.Valid && other.Valid,
		Errors:   append(append([]string(nil), r.Errors...), other.Errors...),
		Warnings: append(append([]string(nil), r.Warnings...), other.Warnings...),
	}
}

// Validator checks a single value. Implementations must not panic; the
// engine recovers panics defensively but treats them as validator bugs.
type Validator interface {
	Validate(value any) Result
}

// Func adapts a plain function to the Validator interface.
type Func func(value any) Result

// Validate implements Validator.
func (f Func) Validate(value any) Result {
	return f(value)
}

// Config describes the validation applied to a step or call output.
type Config struct {
	// Required, when set false, lets a nil value pass without running
	// any validators. Defaults to required.
	Required *bool

	// Validator is an optional custom validator.
	Validator Validator

	// Schema is an optional structural schema (see Schema for the
	// supported keyword subset).
	Schema map[string]any

	// Timeout bounds the validation pass. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Validate runs the configured checks against value. The custom validator
// and the schema check run independently and their errors and warnings
// accumulate. Validate always returns; it never panics and never exceeds
// the configured timeout by more than scheduling slack.
func Validate(ctx context.Context, value any, cfg *Config) Result {
	if cfg == nil {
		return OK()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	// nil output short-circuits: valid only when explicitly optional.
	if value == nil {
		if cfg.Required != nil && !*cfg.Required {
			return OK()
		}
		if cfg.Validator == nil && cfg.Schema == nil {
			if cfg.Required != nil {
				return Fail("required value is missing")
			}
			return OK()
		}
		if !schemaAllowsNil(cfg.Schema) {
			return Fail("required value is missing")
		}
		return OK()
	}

	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Fail(fmt.Sprintf("validator panicked: %v", r))
			}
		}()
		done <- runChecks(value, cfg)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res
	case <-timer.C:
		return Fail(fmt.Sprintf("validation timed out after %v", timeout))
	case <-ctx.Done():
		return Fail(fmt.Sprintf("validation cancelled: %v", ctx.Err()))
	}
}

func runChecks(value any, cfg *Config) Result {
	res := OK()
	if cfg.Validator != nil {
		res = res.Merge(cfg.Validator.Validate(value))
	}
	if cfg.Schema != nil {
		res = res.Merge(Schema(cfg.Schema).Validate(value))
	}
	return res
}

// schemaAllowsNil reports whether a nil value satisfies the schema's
// nullable/required flags.
func schemaAllowsNil(schema map[string]any) bool {
	if schema == nil {
		return false
	}
	if nullable, ok := schema["nullable"].(bool); ok && nullable {
		return true
	}
	if req, ok := schema["required"].(bool); ok && !req {
		return true
	}
	if t, ok := schema["type"].(string); ok && t == "null" {
		return true
	}
	return false
}
