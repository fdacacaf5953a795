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

// Package adw loads AI Developer Workflow definitions from YAML and
// builds runnable workflows out of them. An ADW file names a sequence of
// prompt steps (sent to the AI worker) and command steps (run as local
// processes), with dependencies, conditions, retries, output schemas,
// and jq transforms.
package adw

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mkendrick/adwflow/pkg/errors"
)

// Definition is a YAML-based ADW definition.
type Definition struct {
	// ID is the workflow identifier (e.g. "plan_build_test").
	ID string `yaml:"id" json:"id"`

	// Name is the human-readable workflow name. Defaults to ID.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Description provides human-readable context.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Version tracks the definition schema version (optional, defaults
	// to "1").
	Version string `yaml:"version,omitempty" json:"version,omitempty"`

	// Timeout bounds the whole run (e.g. "30m"). Zero means none.
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// Retry is the default retry policy for all steps.
	Retry *RetryDefinition `yaml:"retry,omitempty" json:"retry,omitempty"`

	// Steps are the workflow's units of work.
	Steps []StepDefinition `yaml:"steps" json:"steps"`
}

// StepType distinguishes prompt steps from command steps.
type StepType string

const (
	// StepPrompt sends a rendered prompt to the AI worker.
	StepPrompt StepType = "prompt"

	// StepCommand runs a local process.
	StepCommand StepType = "command"
)

// StepDefinition is one step of an ADW.
type StepDefinition struct {
	// ID is the unique step identifier within this workflow.
	ID string `yaml:"id" json:"id"`

	// Name is a human-readable step name (optional).
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Type selects the step kind. Defaults to prompt when Prompt is set,
	// command when Command is set.
	Type StepType `yaml:"type,omitempty" json:"type,omitempty"`

	// Prompt is the worker prompt for prompt steps. Supports Go template
	// variables: {{.Input}} and {{.Steps.stepid}}.
	Prompt string `yaml:"prompt,omitempty" json:"prompt,omitempty"`

	// System is an optional system prompt for prompt steps.
	System string `yaml:"system,omitempty" json:"system,omitempty"`

	// Model selects the worker model for this step (optional).
	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// MaxTokens caps the worker response for this step (optional).
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`

	// Command and Args define the process for command steps. Args
	// support the same template variables as prompts.
	Command string   `yaml:"command,omitempty" json:"command,omitempty"`
	Args    []string `yaml:"args,omitempty" json:"args,omitempty"`

	// DependsOn lists step IDs that must succeed first.
	DependsOn []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`

	// When gates the step on an expression over {input, steps}.
	When string `yaml:"when,omitempty" json:"when,omitempty"`

	// Retry overrides the workflow's retry policy for this step.
	Retry *RetryDefinition `yaml:"retry,omitempty" json:"retry,omitempty"`

	// Schema validates the step's output structurally.
	Schema map[string]any `yaml:"schema,omitempty" json:"schema,omitempty"`

	// Transform is a jq expression applied to the raw output before
	// validation.
	Transform string `yaml:"transform,omitempty" json:"transform,omitempty"`

	// ContinueOnFailure lets the workflow proceed past this step's
	// failure.
	ContinueOnFailure bool `yaml:"continue_on_failure,omitempty" json:"continue_on_failure,omitempty"`
}

// RetryDefinition configures retries in YAML.
type RetryDefinition struct {
	MaxAttempts  int      `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty"`
	InitialDelay Duration `yaml:"initial_delay,omitempty" json:"initial_delay,omitempty"`
	MaxDelay     Duration `yaml:"max_delay,omitempty" json:"max_delay,omitempty"`
	Jitter       float64  `yaml:"jitter,omitempty" json:"jitter,omitempty"`
}

// Duration wraps time.Duration with YAML string parsing ("30s", "5m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return &errors.ConfigError{Key: "timeout", Reason: "invalid duration: " + raw, Cause: err}
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// kind resolves the step's effective type.
func (s *StepDefinition) kind() StepType {
	if s.Type != "" {
		return s.Type
	}
	if s.Command != "" {
		return StepCommand
	}
	return StepPrompt
}

// Validate checks the definition for structural problems before it is
// built into a runnable workflow. Dependency and cycle checks happen in
// the workflow layer.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return &errors.ValidationError{Field: "id", Message: "workflow id is required"}
	}
	if len(d.Steps) == 0 {
		return &errors.ValidationError{Field: "steps", Message: "workflow must have at least one step"}
	}
	for i := range d.Steps {
		step := &d.Steps[i]
		if step.ID == "" {
			return &errors.ValidationError{Field: "steps", Message: "every step needs an id"}
		}
		switch step.kind() {
		case StepPrompt:
			if step.Prompt == "" {
				return &errors.ValidationError{
					Field:   "step[" + step.ID + "].prompt",
					Message: "prompt steps require a prompt",
				}
			}
		case StepCommand:
			if step.Command == "" {
				return &errors.ValidationError{
					Field:   "step[" + step.ID + "].command",
					Message: "command steps require a command",
				}
			}
		default:
			return &errors.ValidationError{
				Field:   "step[" + step.ID + "].type",
				Message: "unknown step type: " + string(step.Type),
			}
		}
	}
	return nil
}

// Parse unmarshals and validates an ADW definition from YAML.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, &errors.ConfigError{Key: "workflow", Reason: "invalid workflow YAML", Cause: err}
	}
	if def.Name == "" {
		def.Name = def.ID
	}
	if def.Version == "" {
		def.Version = "1"
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}
