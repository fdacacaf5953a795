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

import "log/slog"

// StepContext is handed to a step's execute function and condition. It
// exposes the run and step identity, the current attempt number, and the
// outputs of dependencies that completed successfully so far.
type StepContext struct {
	// RunID identifies the executing run.
	RunID string

	// StepID identifies the executing step.
	StepID string

	// Attempt is the 1-based attempt number.
	Attempt int

	// Input is the workflow's initial input.
	Input any

	// PreviousResults maps step id to output for every step that has
	// completed successfully so far. The map is shared and must not be
	// mutated by step bodies.
	PreviousResults map[string]any

	// Logger carries run and step fields.
	Logger *slog.Logger
}

// Previous returns the output of an earlier step, with presence.
func (sc *StepContext) Previous(stepID string) (any, bool) {
	v, ok := sc.PreviousResults[stepID]
	return v, ok
}

// exprEnv builds the environment for When expressions.
func (sc *StepContext) exprEnv() map[string]any {
	return map[string]any{
		"input":   sc.Input,
		"steps":   sc.PreviousResults,
		"run_id":  sc.RunID,
		"step_id": sc.StepID,
		"attempt": sc.Attempt,
	}
}
