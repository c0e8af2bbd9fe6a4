package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowstate/orchestrator/core/checkpoint"
	"github.com/flowstate/orchestrator/internal/config"
)

func newExportCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "export",
		Short:         "Export one checkpoint snapshot as JSON",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, root)
		},
	}
	cmd.Flags().String("db-path", "", "checkpoint store location (mongodb:// URI, or empty for an in-process store)")
	cmd.Flags().String("run-id", "", "run to export a checkpoint from (required)")
	cmd.Flags().Int("cycle", -1, "cycle to export (default: the latest checkpoint)")
	cmd.Flags().Int("inference-count", -1, "break ties between checkpoints within the same cycle by inference count")
	cmd.Flags().String("output", "", "file to write the snapshot to (default: stdout)")
	return cmd
}

func runExport(cmd *cobra.Command, root *RootOptions) error {
	cfg, err := config.LoadExport(cmd)
	if err != nil {
		return wrapExit(ExitCommandError, err)
	}

	store, err := openStore(cfg.DBPath)
	if err != nil {
		return wrapExit(ExitFailure, err)
	}

	snap, err := findSnapshot(cmd, store, cfg)
	if err != nil {
		return wrapExit(ExitFailure, err)
	}

	return writeSnapshot(cfg.Output, snap)
}

// findSnapshot returns the latest checkpoint for cfg.RunID when cfg.Cycle is
// unset (-1), or the checkpoint matching cfg.Cycle (and, if set,
// cfg.InferenceCount) otherwise. Matching by cycle requires the store to
// implement checkpoint.Lister.
func findSnapshot(cmd *cobra.Command, store checkpoint.Store, cfg config.ExportConfig) (checkpoint.Snapshot, error) {
	if cfg.Cycle < 0 {
		snap, ok, err := store.Latest(cmd.Context(), cfg.RunID)
		if err != nil {
			return checkpoint.Snapshot{}, err
		}
		if !ok {
			return checkpoint.Snapshot{}, fmt.Errorf("no checkpoint found for run %q", cfg.RunID)
		}
		return snap, nil
	}

	lister, ok := store.(checkpoint.Lister)
	if !ok {
		return checkpoint.Snapshot{}, fmt.Errorf("checkpoint store does not support selecting a checkpoint by cycle")
	}
	snaps, err := lister.ListCheckpoints(cmd.Context(), cfg.RunID)
	if err != nil {
		return checkpoint.Snapshot{}, err
	}
	for _, snap := range snaps {
		if snap.Cycle != cfg.Cycle {
			continue
		}
		if cfg.InferenceCount >= 0 && snap.InferenceCount != cfg.InferenceCount {
			continue
		}
		return snap, nil
	}
	return checkpoint.Snapshot{}, fmt.Errorf("no checkpoint found for run %q at cycle %d", cfg.RunID, cfg.Cycle)
}

func writeSnapshot(output string, snap checkpoint.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if output == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(output, data, 0o644)
}
