// Package main implements the orchestrator CLI (§6.2): run/resume/fork a
// scheduler run against a JSON repository file set, and inspect a
// checkpoint store's run/checkpoint history.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds the flags every subcommand inherits.
type RootOptions struct {
	Verbose bool
	Format  string // "text" | "json"
}

// ValidFormats lists the accepted --format values.
var ValidFormats = []string{"text", "json"}

// NewRootCommand builds the orchestrator root command and wires every
// subcommand onto it.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "orchestrator",
		Short: "Run and inspect dataflow orchestrator scheduler runs",
		Long: `orchestrator loads a concepts/inferences repository, runs the
cooperative scheduling loop to completion or deadlock, and checkpoints
progress so a run can be resumed or forked.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid --format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newResumeCommand(opts))
	cmd.AddCommand(newForkCommand(opts))
	cmd.AddCommand(newListRunsCommand(opts))
	cmd.AddCommand(newListCheckpointsCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newServeCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
