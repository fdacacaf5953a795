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
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkendrick/adwflow/pkg/runstore"
)

const timeRound = time.Millisecond

func newRunsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect run history",
	}
	cmd.AddCommand(newRunsListCommand(a), newRunsShowCommand(a))
	return cmd
}

func newRunsListCommand(a *app) *cobra.Command {
	var (
		workflowType string
		status       string
		trigger      string
		taskID       string
		since        string
		labels       kvValue
		offset       int
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := &runstore.Filter{
				WorkflowType: workflowType,
				Status:       runstore.Status(status),
				Trigger:      trigger,
				TaskID:       taskID,
				Offset:       offset,
				Limit:        limit,
			}
			if since != "" {
				d, err := time.ParseDuration(since)
				if err != nil {
					return fmt.Errorf("--since %q: %w", since, err)
				}
				filter.Since = time.Now().Add(-d)
			}
			if len(labels) > 0 {
				filter.Labels = labels
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.QueryRuns(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				cmd.Println("no runs")
				return nil
			}

			cmd.Printf("%-38s %-20s %-10s %-22s %s\n", "ID", "WORKFLOW", "STATUS", "CREATED", "DURATION")
			for _, run := range runs {
				cmd.Printf("%-38s %-20s %-10s %-22s %s\n",
					run.ID, run.WorkflowType, run.Status,
					run.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					formatDurationMs(run.DurationMs))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowType, "workflow", "", "Filter by workflow id")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, running, completed, failed, cancelled, timeout)")
	cmd.Flags().StringVar(&trigger, "trigger", "", "Filter by trigger source")
	cmd.Flags().StringVar(&taskID, "task-id", "", "Filter by external task id")
	cmd.Flags().StringVar(&since, "since", "", "Only runs newer than the given age (e.g. 24h)")
	cmd.Flags().Var(&labels, "label", "Filter by label key=value (repeatable)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip that many runs")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list (0 = all)")
	return cmd
}

func newRunsShowCommand(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if asJSON {
				data, err := json.MarshalIndent(run, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(data))
				return nil
			}

			printRun(cmd, run)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw run document")
	return cmd
}

func printRun(cmd *cobra.Command, run *runstore.Run) {
	cmd.Printf("Run:       %s\n", run.ID)
	cmd.Printf("Workflow:  %s", run.WorkflowType)
	if run.WorkflowName != "" && run.WorkflowName != run.WorkflowType {
		cmd.Printf(" (%s)", run.WorkflowName)
	}
	cmd.Println()
	cmd.Printf("Status:    %s\n", run.Status)
	if run.Trigger != "" {
		cmd.Printf("Trigger:   %s\n", run.Trigger)
	}
	cmd.Printf("Created:   %s\n", run.CreatedAt.Local().Format(time.RFC3339))
	if run.DurationMs > 0 {
		cmd.Printf("Duration:  %s\n", formatDurationMs(run.DurationMs))
	}
	if run.Error != "" {
		cmd.Printf("Error:     %s\n", run.Error)
	}
	if run.Usage.TotalTokens > 0 {
		cmd.Printf("Tokens:    %d in / %d out\n", run.Usage.InputTokens, run.Usage.OutputTokens)
	}
	for k, v := range run.Labels {
		cmd.Printf("Label:     %s=%s\n", k, v)
	}
	if len(run.Steps) > 0 {
		cmd.Println("Steps:")
		for _, step := range run.Steps {
			line := fmt.Sprintf("  %-20s %-10s", step.ID, step.Status)
			switch {
			case step.Error != "":
				line += " " + step.Error
			case step.SkipReason != "":
				line += " (" + step.SkipReason + ")"
			case step.DurationMs > 0:
				line += " " + formatDurationMs(step.DurationMs)
			}
			cmd.Println(line)
		}
	}
	for _, art := range run.Artifacts {
		cmd.Printf("Artifact:  %s (%s) %s%s\n", art.Name, art.Type, art.Path, art.URL)
	}
}

func formatDurationMs(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return (time.Duration(ms) * time.Millisecond).Round(timeRound).String()
}
