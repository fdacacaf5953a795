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
	"os"

	"github.com/spf13/cobra"

	"github.com/mkendrick/adwflow/internal/adw"
	"github.com/mkendrick/adwflow/internal/jq"
	"github.com/mkendrick/adwflow/pkg/agent"
)

func newValidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workflow.yaml>",
		Short: "Check a workflow file without running it",
		Long: `Parse a workflow file, check its structure, build every step, and
compile its jq transforms. Nothing is executed and no run is recorded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			def, err := adw.Parse(data)
			if err != nil {
				return err
			}

			// Building exercises template parsing and the dependency
			// cycle check; a throwaway caller keeps it side-effect free.
			caller := agent.NewCaller(&agent.StubExecutor{})
			if _, err := adw.NewBuilder(caller).Build(def); err != nil {
				return err
			}

			transformer := jq.NewExecutor(0, 0)
			for _, step := range def.Steps {
				if step.Transform == "" {
					continue
				}
				if err := transformer.Validate(step.Transform); err != nil {
					return err
				}
			}

			cmd.Printf("%s: valid (%d step(s))\n", def.ID, len(def.Steps))
			return nil
		},
	}
}
