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

package observability

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkendrick/adwflow/pkg/agent"
	"github.com/mkendrick/adwflow/pkg/workflow"
)

func TestMetricsCountRuns(t *testing.T) {
	metrics := NewMetrics()
	runner := workflow.NewRunner()
	runner.Subscribe(metrics.WorkflowHooks())

	def := &workflow.Definition{
		ID:   "metrics_test_wf",
		Name: "metrics test",
		Steps: []workflow.Step{
			{
				ID: "only",
				Execute: func(ctx context.Context, input any, sc *workflow.StepContext) (any, error) {
					return "ok", nil
				},
			},
		},
	}

	before := testutil.ToFloat64(runsTotal.WithLabelValues("metrics_test_wf", "success"))

	_, err := runner.Run(context.Background(), def, nil)
	require.NoError(t, err)

	after := testutil.ToFloat64(runsTotal.WithLabelValues("metrics_test_wf", "success"))
	assert.Equal(t, before+1, after)
}

func TestMetricsCountWorkerCalls(t *testing.T) {
	metrics := NewMetrics()
	caller := agent.NewCaller(&agent.StubExecutor{}, agent.WithHooks(metrics.CallHooks()))

	before := testutil.ToFloat64(callsTotal.WithLabelValues("success"))

	_, err := caller.Call(context.Background(), &agent.Request{Prompt: "count me"}, nil)
	require.NoError(t, err)

	after := testutil.ToFloat64(callsTotal.WithLabelValues("success"))
	assert.Equal(t, before+1, after)
}

func TestTracingSubscriberIsInert(t *testing.T) {
	// Without a registered tracer provider the spans are no-ops; the
	// subscriber must still run cleanly through a full workflow.
	tracing := NewTracing()
	runner := workflow.NewRunner()
	runner.Subscribe(tracing.WorkflowHooks())

	def := &workflow.Definition{
		ID:   "tracing_test_wf",
		Name: "tracing test",
		Steps: []workflow.Step{
			{
				ID: "only",
				Execute: func(ctx context.Context, input any, sc *workflow.StepContext) (any, error) {
					return "ok", nil
				},
			},
		},
	}

	result, err := runner.Run(context.Background(), def, nil)
	require.NoError(t, err)
	assert.Equal(t, workflow.RunStatusSuccess, result.Status)
}
