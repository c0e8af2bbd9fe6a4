package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowstate/orchestrator/core/checkpoint"
	"github.com/flowstate/orchestrator/internal/config"
)

func newListCheckpointsCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "list-checkpoints",
		Short:         "List every checkpoint recorded for a run, oldest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListCheckpoints(cmd, root)
		},
	}
	cmd.Flags().String("db-path", "", "checkpoint store location (mongodb:// URI, or empty for an in-process store)")
	cmd.Flags().String("run-id", "", "run to list checkpoints for (required)")
	return cmd
}

func runListCheckpoints(cmd *cobra.Command, root *RootOptions) error {
	cfg, err := config.LoadListCheckpoints(cmd)
	if err != nil {
		return wrapExit(ExitCommandError, err)
	}

	store, err := openStore(cfg.DBPath)
	if err != nil {
		return wrapExit(ExitFailure, err)
	}

	lister, ok := store.(checkpoint.Lister)
	if !ok {
		return wrapExit(ExitFailure, fmt.Errorf("checkpoint store does not support listing checkpoints"))
	}

	snaps, err := lister.ListCheckpoints(cmd.Context(), cfg.RunID)
	if err != nil {
		return wrapExit(ExitFailure, err)
	}
	return printResult(cmd.OutOrStdout(), root.Format, snaps)
}
