package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/flowstate/orchestrator/core/checkpoint"
	"github.com/flowstate/orchestrator/core/dispatch"
	"github.com/flowstate/orchestrator/core/orchestrator"
	"github.com/flowstate/orchestrator/core/sequence"
	"github.com/flowstate/orchestrator/internal/config"
	"github.com/flowstate/orchestrator/internal/repofile"
	"github.com/flowstate/orchestrator/internal/telemetry"
)

func newRunCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "run",
		Short:         "Start a fresh scheduler run from a repository file set",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, root)
		},
	}
	registerRepoFlags(cmd)
	cmd.Flags().String("llm", "", "LLM backend name (forwarded to the action body verbatim; the core never calls it directly)")
	cmd.Flags().Int("max-cycles", orchestrator.DefaultMaxCycles, "maximum scheduling cycles before giving up")
	cmd.Flags().String("db-path", "", "checkpoint store location (mongodb:// URI, or empty for an in-process store)")
	return cmd
}

func registerRepoFlags(cmd *cobra.Command) {
	cmd.Flags().String("concepts", "", "path to concepts.json (required)")
	cmd.Flags().String("inferences", "", "path to inferences.json (required)")
	cmd.Flags().String("inputs", "", "path to inputs.json (optional)")
	cmd.Flags().String("schemas", "", "path to schemas.json, validating each sequence kind's working_interpretation (optional)")
	cmd.Flags().String("base-dir", "", "base directory repo file paths are resolved against")
}

func runRun(cmd *cobra.Command, root *RootOptions) error {
	cfg, err := config.LoadRun(cmd)
	if err != nil {
		return wrapExit(ExitCommandError, err)
	}

	store, err := openStore(cfg.DBPath)
	if err != nil {
		return wrapExit(ExitFailure, err)
	}

	result, err := executeRun(cmd.Context(), runParams{
		Repo:         cfg.RepoConfig,
		MaxCycles:    cfg.MaxCycles,
		Checkpointer: checkpoint.NewManager(store),
	})
	if err != nil {
		return wrapExit(ExitFailure, err)
	}
	return printResult(cmd.OutOrStdout(), root.Format, result)
}

// runParams bundles what every run/resume/fork variant needs to build and
// execute an Orchestrator; only the Checkpointer/Reconciler and RunID
// selection differ between the three subcommands.
type runParams struct {
	Repo         config.RepoConfig
	MaxCycles    int
	RunID        string
	Store        checkpoint.Store
	Reconcile    orchestrator.Reconciler
	Checkpointer orchestrator.Checkpointer
	Verbose      bool
}

func executeRun(ctx context.Context, p runParams) (*orchestrator.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	log := telemetry.NewClueLogger()
	metrics := telemetry.NewClueMetrics()
	tracer := telemetry.NewClueTracer()

	concepts, err := repofile.LoadConcepts(p.Repo.ConceptsPath)
	if err != nil {
		return nil, err
	}
	if err := repofile.LoadInputs(p.Repo.InputsPath, concepts); err != nil {
		return nil, err
	}
	schemas, err := repofile.LoadSchemas(p.Repo.SchemasPath)
	if err != nil {
		return nil, err
	}
	inferences, err := repofile.LoadInferences(p.Repo.InferencesPath, concepts, schemas)
	if err != nil {
		return nil, err
	}

	registry, err := dispatch.NewRegistry(sequence.DefaultKinds()...)
	if err != nil {
		return nil, err
	}

	bus := newStderrBus(log)
	emitter := newEmitter(bus)
	defer emitter.Close()

	o, err := orchestrator.New(orchestrator.Config{
		Concepts:     concepts,
		Inferences:   inferences,
		Registry:     registry,
		Body:         newEchoBody(log),
		MaxCycles:    p.MaxCycles,
		RunID:        p.RunID,
		Checkpointer: p.Checkpointer,
		Reconcile:    p.Reconcile,
		Emitter:      emitter,
		Logger:       log,
		Metrics:      metrics,
		Tracer:       tracer,
	})
	if err != nil {
		return nil, err
	}

	return o.Run(ctx)
}
