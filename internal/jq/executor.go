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

// Package jq evaluates jq expressions for step output transforms, with
// timeout and input-size protection. Compiled programs are cached; step
// transforms tend to repeat across runs.
package jq

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/itchyny/gojq"

	"github.com/mkendrick/adwflow/pkg/errors"
	"github.com/mkendrick/adwflow/pkg/workflow"
)

const (
	// DefaultTimeout bounds a single expression evaluation.
	DefaultTimeout = 1 * time.Second

	// DefaultMaxInputSize caps the transform input (10MB).
	DefaultMaxInputSize = 10 * 1024 * 1024
)

// Executor evaluates jq expressions. Safe for concurrent use.
type Executor struct {
	timeout      time.Duration
	maxInputSize int64

	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewExecutor creates a jq executor. Zero values pick the defaults.
func NewExecutor(timeout time.Duration, maxInputSize int64) *Executor {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if maxInputSize == 0 {
		maxInputSize = DefaultMaxInputSize
	}
	return &Executor{
		timeout:      timeout,
		maxInputSize: maxInputSize,
		cache:        make(map[string]*gojq.Code),
	}
}

// TransformFunc adapts the executor to the workflow runner's transform
// hook.
func (e *Executor) TransformFunc() workflow.TransformFunc {
	return func(ctx context.Context, expression string, value any) (any, error) {
		return e.Execute(ctx, expression, value)
	}
}

// Execute runs the expression against data. An empty expression returns
// data unchanged. Results follow jq semantics: no output yields nil, a
// single output is returned directly, multiple outputs come back as a
// slice.
func (e *Executor) Execute(ctx context.Context, expression string, data any) (any, error) {
	if expression == "" {
		return data, nil
	}

	if err := e.checkInputSize(data); err != nil {
		return nil, err
	}

	code, err := e.compile(expression)
	if err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resultChan := make(chan any, 1)
	errorChan := make(chan error, 1)

	go func() {
		iter := code.RunWithContext(execCtx, data)
		var results []any
		for {
			v, ok := iter.Next()
			if !ok {
				break
			}
			if err, isErr := v.(error); isErr {
				errorChan <- &errors.ValidationError{
					Field:   "transform",
					Message: "jq evaluation failed: " + err.Error(),
				}
				return
			}
			results = append(results, v)
		}

		switch len(results) {
		case 0:
			resultChan <- nil
		case 1:
			resultChan <- results[0]
		default:
			resultChan <- results
		}
	}()

	select {
	case result := <-resultChan:
		return result, nil
	case err := <-errorChan:
		return nil, err
	case <-execCtx.Done():
		return nil, &errors.TimeoutError{Operation: "jq transform", Duration: e.timeout}
	}
}

// Validate compiles the expression without running it, catching syntax
// errors at workflow load time.
func (e *Executor) Validate(expression string) error {
	if expression == "" {
		return nil
	}
	_, err := e.compile(expression)
	return err
}

func (e *Executor) compile(expression string) (*gojq.Code, error) {
	e.mu.RLock()
	code, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:      "transform",
			Message:    "invalid jq expression: " + err.Error(),
			Suggestion: "check the expression against jq syntax",
		}
	}
	code, err = gojq.Compile(query)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:   "transform",
			Message: "jq compilation failed: " + err.Error(),
		}
	}

	e.mu.Lock()
	e.cache[expression] = code
	e.mu.Unlock()
	return code, nil
}

func (e *Executor) checkInputSize(data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return &errors.ValidationError{
			Field:   "transform",
			Message: "transform input is not JSON-representable: " + err.Error(),
		}
	}
	if int64(len(jsonData)) > e.maxInputSize {
		return &errors.ValidationError{
			Field:   "transform",
			Message: "transform input exceeds size limit",
		}
	}
	return nil
}
