package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowstate/orchestrator/core/checkpoint"
	"github.com/flowstate/orchestrator/internal/config"
)

func newListRunsCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "list-runs",
		Short:         "List every run recorded in the checkpoint store",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListRuns(cmd, root)
		},
	}
	cmd.Flags().String("db-path", "", "checkpoint store location (mongodb:// URI, or empty for an in-process store)")
	return cmd
}

func runListRuns(cmd *cobra.Command, root *RootOptions) error {
	cfg, err := config.LoadListRuns(cmd)
	if err != nil {
		return wrapExit(ExitCommandError, err)
	}

	store, err := openStore(cfg.DBPath)
	if err != nil {
		return wrapExit(ExitFailure, err)
	}

	lister, ok := store.(checkpoint.Lister)
	if !ok {
		return wrapExit(ExitFailure, fmt.Errorf("checkpoint store does not support listing runs"))
	}

	runs, err := lister.ListRuns(cmd.Context())
	if err != nil {
		return wrapExit(ExitFailure, err)
	}
	return printResult(cmd.OutOrStdout(), root.Format, runs)
}
