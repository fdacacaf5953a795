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

package adw

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"text/template"

	"github.com/mkendrick/adwflow/pkg/agent"
	"github.com/mkendrick/adwflow/pkg/errors"
	"github.com/mkendrick/adwflow/pkg/validate"
	"github.com/mkendrick/adwflow/pkg/workflow"
)

// Builder turns ADW definitions into runnable workflow definitions.
type Builder struct {
	caller *agent.Caller
}

// NewBuilder creates a builder calling the worker through caller.
func NewBuilder(caller *agent.Caller) *Builder {
	return &Builder{caller: caller}
}

// templateEnv is the data exposed to prompt and argument templates.
type templateEnv struct {
	Input any
	Steps map[string]any
}

// Build compiles the ADW into a workflow definition. Templates are
// parsed eagerly so a malformed prompt fails at build time, not mid-run.
func (b *Builder) Build(def *Definition) (*workflow.Definition, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	out := &workflow.Definition{
		ID:      def.ID,
		Name:    def.Name,
		Timeout: def.Timeout.Std(),
	}
	if def.Retry != nil {
		out.DefaultRetry = buildRetry(def.Retry)
	}

	for i := range def.Steps {
		stepDef := &def.Steps[i]
		step, err := b.buildStep(stepDef)
		if err != nil {
			return nil, err
		}
		out.Steps = append(out.Steps, *step)
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Builder) buildStep(stepDef *StepDefinition) (*workflow.Step, error) {
	step := &workflow.Step{
		ID:                stepDef.ID,
		Name:              stepDef.Name,
		DependsOn:         stepDef.DependsOn,
		When:              stepDef.When,
		Transform:         stepDef.Transform,
		ContinueOnFailure: stepDef.ContinueOnFailure,
	}
	if stepDef.Retry != nil {
		step.Retry = buildRetry(stepDef.Retry)
	}
	if stepDef.Schema != nil {
		step.Validation = &validate.Config{Schema: stepDef.Schema}
	}

	switch stepDef.kind() {
	case StepPrompt:
		tmpl, err := parseTemplate(stepDef.ID, "prompt", stepDef.Prompt)
		if err != nil {
			return nil, err
		}
		step.Execute = b.promptExec(stepDef, tmpl)
	case StepCommand:
		tmpls := make([]*template.Template, len(stepDef.Args))
		for i, arg := range stepDef.Args {
			tmpl, err := parseTemplate(stepDef.ID, "arg", arg)
			if err != nil {
				return nil, err
			}
			tmpls[i] = tmpl
		}
		step.Execute = commandExec(stepDef, tmpls)
	}
	return step, nil
}

func (b *Builder) promptExec(stepDef *StepDefinition, tmpl *template.Template) workflow.ExecFunc {
	return func(ctx context.Context, input any, sc *workflow.StepContext) (any, error) {
		prompt, err := render(tmpl, input, sc)
		if err != nil {
			return nil, err
		}

		resp, err := b.caller.Call(ctx, &agent.Request{
			Prompt:       prompt,
			SystemPrompt: stepDef.System,
			Model:        stepDef.Model,
			MaxTokens:    stepDef.MaxTokens,
			Metadata: map[string]string{
				agent.MetadataRunID:  sc.RunID,
				agent.MetadataStepID: sc.StepID,
			},
		}, nil)
		if err != nil {
			return nil, err
		}
		return parseOutput(resp.Content), nil
	}
}

func commandExec(stepDef *StepDefinition, argTmpls []*template.Template) workflow.ExecFunc {
	return func(ctx context.Context, input any, sc *workflow.StepContext) (any, error) {
		args := make([]string, len(argTmpls))
		for i, tmpl := range argTmpls {
			rendered, err := render(tmpl, input, sc)
			if err != nil {
				return nil, err
			}
			args[i] = rendered
		}

		cmd := exec.CommandContext(ctx, stepDef.Command, args...)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = err.Error()
			}
			return nil, &errors.WorkerError{
				Provider: "command",
				Message:  stepDef.Command + " failed: " + msg,
				Cause:    err,
			}
		}
		return parseOutput(stdout.String()), nil
	}
}

func buildRetry(def *RetryDefinition) *workflow.RetryConfig {
	return &workflow.RetryConfig{
		MaxAttempts:  def.MaxAttempts,
		InitialDelay: def.InitialDelay.Std(),
		MaxDelay:     def.MaxDelay.Std(),
		Jitter:       def.Jitter,
	}
}

func parseTemplate(stepID, field, text string) (*template.Template, error) {
	tmpl, err := template.New(stepID + "." + field).Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:   "step[" + stepID + "]." + field,
			Message: "invalid template: " + err.Error(),
		}
	}
	return tmpl, nil
}

func render(tmpl *template.Template, input any, sc *workflow.StepContext) (string, error) {
	var buf bytes.Buffer
	err := tmpl.Execute(&buf, templateEnv{Input: input, Steps: sc.PreviousResults})
	if err != nil {
		return "", &errors.ValidationError{
			Field:   "step[" + sc.StepID + "]",
			Message: "template rendering failed: " + err.Error(),
		}
	}
	return buf.String(), nil
}

// parseOutput decodes JSON output when the worker or command produced
// it, otherwise returns the trimmed text.
func parseOutput(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return decoded
		}
	}
	return trimmed
}
