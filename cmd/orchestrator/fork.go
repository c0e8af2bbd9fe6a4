package main

import (
	"github.com/spf13/cobra"

	"github.com/flowstate/orchestrator/core/checkpoint"
	"github.com/flowstate/orchestrator/core/orchestrator"
	"github.com/flowstate/orchestrator/internal/config"
)

func newForkCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fork",
		Short:         "Start a new run seeded from another run's latest snapshot",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFork(cmd, root)
		},
	}
	registerRepoFlags(cmd)
	cmd.Flags().Int("max-cycles", orchestrator.DefaultMaxCycles, "maximum scheduling cycles before giving up")
	cmd.Flags().String("db-path", "", "checkpoint store location (mongodb:// URI, or empty for an in-process store)")
	cmd.Flags().String("from-run", "", "run whose latest snapshot seeds the fork (required)")
	cmd.Flags().String("new-run-id", "", "run id for the fork (default: generated)")
	cmd.Flags().String("mode", "", "reconciliation mode: PATCH, OVERWRITE, or FILL_GAPS (default OVERWRITE)")
	return cmd
}

func runFork(cmd *cobra.Command, root *RootOptions) error {
	cfg, err := config.LoadFork(cmd)
	if err != nil {
		return wrapExit(ExitCommandError, err)
	}

	store, err := openStore(cfg.DBPath)
	if err != nil {
		return wrapExit(ExitFailure, err)
	}

	manager := checkpoint.NewForkManager(store, cfg.FromRunID, checkpoint.WithMode(cfg.Mode))
	result, err := executeRun(cmd.Context(), runParams{
		Repo:         cfg.RepoConfig,
		MaxCycles:    cfg.MaxCycles,
		RunID:        cfg.NewRunID,
		Checkpointer: manager,
		Reconcile:    manager,
	})
	if err != nil {
		return wrapExit(ExitFailure, err)
	}
	return printResult(cmd.OutOrStdout(), root.Format, result)
}
