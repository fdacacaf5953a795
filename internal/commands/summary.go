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
	"sort"

	"github.com/spf13/cobra"

	"github.com/mkendrick/adwflow/pkg/runstore"
)

func newSummaryCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Aggregate statistics over the run history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			summary, err := store.Summary(cmd.Context())
			if err != nil {
				return err
			}

			cmd.Printf("Total runs:    %d\n", summary.TotalRuns)
			cmd.Printf("Success rate:  %.0f%%\n", summary.SuccessRate*100)
			if summary.AvgDurationMs > 0 {
				cmd.Printf("Avg duration:  %s\n", formatDurationMs(summary.AvgDurationMs))
			}
			if summary.AvgScore > 0 {
				cmd.Printf("Avg score:     %.2f\n", summary.AvgScore)
			}
			if summary.TotalUsage.TotalTokens > 0 {
				cmd.Printf("Total tokens:  %d in / %d out\n",
					summary.TotalUsage.InputTokens, summary.TotalUsage.OutputTokens)
			}

			if len(summary.ByStatus) > 0 {
				cmd.Println("By status:")
				statuses := make([]string, 0, len(summary.ByStatus))
				for s := range summary.ByStatus {
					statuses = append(statuses, string(s))
				}
				sort.Strings(statuses)
				for _, s := range statuses {
					cmd.Printf("  %-12s %d\n", s, summary.ByStatus[runstore.Status(s)])
				}
			}

			printCountMap(cmd, "By workflow:", summary.ByWorkflow)
			printCountMap(cmd, "By trigger:", summary.ByTrigger)
			return nil
		},
	}
}

func printCountMap(cmd *cobra.Command, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	cmd.Println(title)
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmd.Printf("  %-20s %d\n", k, counts[k])
	}
}
