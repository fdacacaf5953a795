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

package commands

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mkendrick/adwflow/internal/adw"
	"github.com/mkendrick/adwflow/internal/connector"
	"github.com/mkendrick/adwflow/internal/jq"
	"github.com/mkendrick/adwflow/pkg/agent"
	"github.com/mkendrick/adwflow/pkg/observability"
	"github.com/mkendrick/adwflow/pkg/workflow"
)

func newRunCommand(a *app) *cobra.Command {
	var (
		inputs  kvValue
		trigger string
		labels  kvValue
	)

	cmd := &cobra.Command{
		Use:   "run <workflow.yaml|name>",
		Short: "Execute a workflow",
		Long: `Execute a workflow by file path or by registered name.

A path argument is parsed directly; anything else is resolved against the
configured workflows directory. Step outputs and the run record are
persisted to the run store.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := a.resolveWorkflow(args[0])
			if err != nil {
				return err
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			metrics := observability.NewMetrics()
			caller := a.newCaller(agent.WithHooks(metrics.CallHooks()))
			wdef, err := adw.NewBuilder(caller).Build(def)
			if err != nil {
				return err
			}

			recorder := connector.NewRecorder(store, a.logger)
			recorder.Trigger = trigger
			recorder.StepUsage = connector.CallerUsage(caller)
			if len(labels) > 0 {
				recorder.Labels = labels
			}

			runner := workflow.NewRunner(
				workflow.WithLogger(a.logger),
				workflow.WithTransformer(jq.NewExecutor(0, 0).TransformFunc()),
			)
			runner.Subscribe(recorder.Hooks())
			runner.Subscribe(metrics.WorkflowHooks())
			runner.Subscribe(observability.NewTracing().WorkflowHooks())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := runner.Run(ctx, wdef, inputs.asInput())
			if err != nil {
				return err
			}

			printRunResult(cmd, result)
			if result.Status != workflow.RunStatusSuccess {
				return fmt.Errorf("run %s %s", result.RunID, result.Status)
			}
			return nil
		},
	}

	cmd.Flags().VarP(&inputs, "input", "i", "Workflow input as key=value (repeatable)")
	cmd.Flags().StringVar(&trigger, "trigger", "manual", "Trigger recorded on the run (manual, cron, webhook, ...)")
	cmd.Flags().Var(&labels, "label", "Label attached to the run as key=value (repeatable)")
	return cmd
}

// resolveWorkflow loads a definition from a file path, falling back to
// the registered workflows directory for bare names.
func (a *app) resolveWorkflow(ref string) (*adw.Definition, error) {
	if looksLikePath(ref) {
		data, err := os.ReadFile(ref)
		if err != nil {
			return nil, err
		}
		return adw.Parse(data)
	}

	reg := adw.NewRegistry(a.logger)
	if err := reg.LoadDir(a.cfg.Workflows.Dir); err != nil {
		return nil, err
	}
	return reg.Get(ref)
}

func looksLikePath(ref string) bool {
	if strings.ContainsAny(ref, `/\`) {
		return true
	}
	ext := strings.ToLower(ref)
	return strings.HasSuffix(ext, ".yaml") || strings.HasSuffix(ext, ".yml")
}

func printRunResult(cmd *cobra.Command, result *workflow.RunResult) {
	cmd.Printf("run %s: %s\n", result.RunID, result.Status)
	for i := range result.Records {
		rec := &result.Records[i]
		switch rec.Status {
		case workflow.StepStatusSkipped:
			cmd.Printf("  %-20s %s (%s)\n", rec.StepID, rec.Status, rec.SkipReason)
		case workflow.StepStatusFailed:
			cmd.Printf("  %-20s %s: %s\n", rec.StepID, rec.Status, rec.Error)
		default:
			cmd.Printf("  %-20s %s (%d attempt(s), %s)\n", rec.StepID, rec.Status, rec.Attempts, rec.Duration().Round(timeRound))
		}
	}
}
