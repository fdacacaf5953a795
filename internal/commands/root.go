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

// Package commands implements the adwflow CLI.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mkendrick/adwflow/internal/config"
	"github.com/mkendrick/adwflow/internal/log"
	"github.com/mkendrick/adwflow/pkg/agent"
	"github.com/mkendrick/adwflow/pkg/errors"
	"github.com/mkendrick/adwflow/pkg/runstore"
)

// app carries the wiring shared by all subcommands.
type app struct {
	configPath string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand builds the adwflow command tree.
func NewRootCommand(version string) *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "adwflow",
		Short: "Run AI Developer Workflows",
		Long: `adwflow executes AI Developer Workflows: YAML-defined sequences of
AI worker prompts and local commands, with retries, output validation,
and a persisted run history.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			lc := log.FromEnv()
			if cfg.Log.Level != "" {
				lc.Level = cfg.Log.Level
			}
			if cfg.Log.Format != "" {
				lc.Format = cfg.Log.Format
			}
			a.logger = log.New(lc)
			slog.SetDefault(a.logger)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file path (default: $XDG_CONFIG_HOME/adwflow/config.yaml)")

	root.AddCommand(
		newRunCommand(a),
		newRunsCommand(a),
		newSummaryCommand(a),
		newPruneCommand(a),
		newValidateCommand(a),
	)
	return root
}

// openStore opens the configured run store backend.
func (a *app) openStore() (runstore.Store, error) {
	switch a.cfg.Store.Backend {
	case "sqlite":
		return runstore.NewSQLiteStore(a.cfg.Store.Path)
	case "file":
		return runstore.NewFileStore(a.cfg.Store.Path, runstore.WithFileStoreLogger(a.logger))
	default:
		return nil, &errors.ConfigError{Key: "store.backend", Reason: "unknown backend " + a.cfg.Store.Backend}
	}
}

// newCaller builds the worker call harness from config. Without a real
// worker configured the stub executor stands in, which keeps dry runs
// and tests hermetic.
func (a *app) newCaller(extra ...agent.CallerOption) *agent.Caller {
	opts := []agent.CallerOption{
		agent.WithLogger(a.logger),
		agent.WithConfig(agent.Config{
			MaxAttempts:  a.cfg.Agent.MaxAttempts,
			InitialDelay: a.cfg.Agent.InitialDelay,
			MaxDelay:     a.cfg.Agent.MaxDelay,
			Timeout:      a.cfg.Agent.Timeout,
		}),
	}
	if a.cfg.Agent.RateLimit > 0 {
		burst := a.cfg.Agent.Burst
		if burst < 1 {
			burst = 1
		}
		opts = append(opts, agent.WithRateLimit(a.cfg.Agent.RateLimit, burst))
	}
	opts = append(opts, extra...)
	return agent.NewCaller(&agent.StubExecutor{Model: a.cfg.Agent.Model}, opts...)
}
