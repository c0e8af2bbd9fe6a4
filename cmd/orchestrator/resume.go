package main

import (
	"github.com/spf13/cobra"

	"github.com/flowstate/orchestrator/core/checkpoint"
	"github.com/flowstate/orchestrator/internal/config"
)

func newResumeCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "resume",
		Short:         "Continue a previously checkpointed run from its latest snapshot",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(cmd, root)
		},
	}
	registerRepoFlags(cmd)
	cmd.Flags().Int("max-cycles", 0, "maximum additional scheduling cycles before giving up")
	cmd.Flags().String("db-path", "", "checkpoint store location (mongodb:// URI, or empty for an in-process store)")
	cmd.Flags().String("run-id", "", "run to resume (required)")
	cmd.Flags().String("mode", "", "reconciliation mode: PATCH, OVERWRITE, or FILL_GAPS (default PATCH)")
	return cmd
}

func runResume(cmd *cobra.Command, root *RootOptions) error {
	cfg, err := config.LoadResume(cmd)
	if err != nil {
		return wrapExit(ExitCommandError, err)
	}

	store, err := openStore(cfg.DBPath)
	if err != nil {
		return wrapExit(ExitFailure, err)
	}

	manager := checkpoint.NewResumeManager(store, cfg.RunID, checkpoint.WithMode(cfg.Mode))
	result, err := executeRun(cmd.Context(), runParams{
		Repo:         cfg.RepoConfig,
		MaxCycles:    cfg.MaxCycles,
		RunID:        cfg.RunID,
		Checkpointer: manager,
		Reconcile:    manager,
	})
	if err != nil {
		return wrapExit(ExitFailure, err)
	}
	return printResult(cmd.OutOrStdout(), root.Format, result)
}
