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
	"time"

	"github.com/spf13/cobra"
)

func newPruneCommand(a *app) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old terminal runs from the store",
		Long: `Delete runs older than --max-age. Only terminal runs (completed,
failed, cancelled, timeout) are removed; pending and running runs are
kept regardless of age.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxAge <= 0 {
				return fmt.Errorf("--max-age must be positive")
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			pruned, err := store.PruneOldRuns(cmd.Context(), time.Now().Add(-maxAge))
			if err != nil {
				return err
			}
			cmd.Printf("pruned %d run(s)\n", pruned)
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 30*24*time.Hour, "Age beyond which terminal runs are deleted")
	return cmd
}
