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
	"fmt"
	"sync/atomic"
)

// StubExecutor is a deterministic in-process worker for tests and dry
// runs. It echoes a truncated form of the prompt and reports synthetic
// token counts derived from text length.
type StubExecutor struct {
	// Model is reported back in responses. Defaults to "stub".
	Model string

	// Respond overrides the echo behavior per request (optional).
	Respond func(req *Request) (string, error)

	calls atomic.Int64
}

const stubEchoLimit = 80

// Execute implements Executor.
func (s *StubExecutor) Execute(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.calls.Add(1)

	content := ""
	if s.Respond != nil {
		var err error
		content, err = s.Respond(req)
		if err != nil {
			return nil, err
		}
	} else {
		prompt := req.Prompt
		if len(prompt) > stubEchoLimit {
			prompt = prompt[:stubEchoLimit] + "..."
		}
		content = fmt.Sprintf("stub response to: %s", prompt)
	}

	model := s.Model
	if model == "" {
		model = "stub"
	}

	// Rough 4-chars-per-token heuristic keeps usage numbers plausible.
	inputTokens := (len(req.Prompt) + len(req.SystemPrompt)) / 4
	outputTokens := len(content) / 4
	return &Response{
		Content:    content,
		Model:      model,
		StopReason: "end_turn",
		Usage: TokenUsage{
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			TotalTokens:  inputTokens + outputTokens,
		},
	}, nil
}

// CallCount returns how many times Execute ran.
func (s *StubExecutor) CallCount() int64 {
	return s.calls.Load()
}
