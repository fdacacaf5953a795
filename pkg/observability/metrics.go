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

// Package observability exports workflow and worker-call telemetry:
// Prometheus metrics and OpenTelemetry spans, both attached through the
// runner's and caller's hook surfaces.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mkendrick/adwflow/pkg/agent"
	"github.com/mkendrick/adwflow/pkg/workflow"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adwflow_runs_total",
			Help: "Total workflow runs by workflow and final status",
		},
		[]string{"workflow", "status"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adwflow_run_duration_seconds",
			Help:    "Duration of workflow runs",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		},
		[]string{"workflow"},
	)

	stepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adwflow_steps_total",
			Help: "Total step executions by final status",
		},
		[]string{"status"},
	)

	stepRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adwflow_step_retries_total",
		Help: "Total step retry attempts",
	})

	callsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adwflow_worker_calls_total",
			Help: "Total worker calls by final status",
		},
		[]string{"status"},
	)

	callDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "adwflow_worker_call_duration_seconds",
		Help:    "Duration of worker calls including retries",
		Buckets: prometheus.DefBuckets,
	})

	callTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adwflow_worker_tokens_total",
			Help: "Total worker tokens by direction",
		},
		[]string{"direction"},
	)
)

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// Metrics is a runner subscriber that exports Prometheus metrics.
type Metrics struct {
	mu     sync.Mutex
	starts map[string]runStart
}

type runStart struct {
	workflow string
	at       time.Time
}

// NewMetrics creates a metrics subscriber.
func NewMetrics() *Metrics {
	return &Metrics{starts: make(map[string]runStart)}
}

// WorkflowHooks returns the hook set to subscribe on a runner.
func (m *Metrics) WorkflowHooks() workflow.Hooks {
	return workflow.Hooks{
		OnWorkflowStart: m.workflowStart,
		OnWorkflowEnd:   m.workflowEnd,
		OnStepEnd:       m.stepEnd,
		OnRetry:         m.retry,
	}
}

// CallHooks returns the hook set to register on an agent caller.
func (m *Metrics) CallHooks() agent.Hooks {
	return agent.Hooks{
		OnAfterCall: func(record *agent.CallRecord) {
			callsTotal.WithLabelValues(string(record.Status)).Inc()
			callDuration.Observe(record.Duration().Seconds())
			if record.Response != nil {
				callTokens.WithLabelValues("input").Add(float64(record.Response.Usage.InputTokens))
				callTokens.WithLabelValues("output").Add(float64(record.Response.Usage.OutputTokens))
			}
		},
	}
}

func (m *Metrics) workflowStart(runID string, def *workflow.Definition) {
	m.mu.Lock()
	m.starts[runID] = runStart{workflow: def.ID, at: time.Now()}
	m.mu.Unlock()
}

func (m *Metrics) workflowEnd(runID string, result *workflow.RunResult) {
	m.mu.Lock()
	start, ok := m.starts[runID]
	delete(m.starts, runID)
	m.mu.Unlock()
	if !ok {
		return
	}

	runsTotal.WithLabelValues(start.workflow, string(result.Status)).Inc()
	runDuration.WithLabelValues(start.workflow).Observe(time.Since(start.at).Seconds())
}

func (m *Metrics) stepEnd(runID string, record *workflow.StepRecord) {
	stepsTotal.WithLabelValues(string(record.Status)).Inc()
}

func (m *Metrics) retry(runID, stepID string, attempt int, err error) {
	stepRetries.Inc()
}
