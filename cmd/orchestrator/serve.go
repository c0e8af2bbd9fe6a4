package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/flowstate/orchestrator/core/orchestrator"
	"github.com/flowstate/orchestrator/internal/config"
	"github.com/flowstate/orchestrator/internal/httpapi"
	"github.com/flowstate/orchestrator/internal/telemetry"
)

func newServeCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "serve",
		Short:         "Start a run and expose its §6.3 HTTP/SSE control surface",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, root)
		},
	}
	registerRepoFlags(cmd)
	cmd.Flags().String("llm", "", "LLM backend name (forwarded to the action body verbatim; the core never calls it directly)")
	cmd.Flags().Int("max-cycles", orchestrator.DefaultMaxCycles, "maximum scheduling cycles before giving up")
	cmd.Flags().String("db-path", "", "checkpoint store location (mongodb:// URI, or empty for an in-process store); required for /continue and /step to work")
	cmd.Flags().String("addr", ":8080", "address the HTTP control surface listens on")
	return cmd
}

func runServe(cmd *cobra.Command, root *RootOptions) error {
	cfg, err := config.LoadServe(cmd)
	if err != nil {
		return wrapExit(ExitCommandError, err)
	}

	store, err := openStore(cfg.DBPath)
	if err != nil {
		return wrapExit(ExitFailure, err)
	}

	log := telemetry.NewClueLogger()
	metrics := telemetry.NewClueMetrics()
	tracer := telemetry.NewClueTracer()

	registry := httpapi.NewRegistry(log)
	run, err := registry.Start(cmd.Context(), httpapi.StartConfig{
		ConceptsPath:   cfg.ConceptsPath,
		InferencesPath: cfg.InferencesPath,
		InputsPath:     cfg.InputsPath,
		SchemasPath:    cfg.SchemasPath,
		MaxCycles:      cfg.MaxCycles,
		Store:          store,
		Body:           newEchoBody(log),
		Log:            log,
		Metrics:        metrics,
		Tracer:         tracer,
	})
	if err != nil {
		return wrapExit(ExitFailure, err)
	}
	log.Info(context.Background(), "serving orchestrator control surface", "run_id", run.ID, "addr", cfg.Addr)

	server := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewHandler(registry, log)}
	errc := make(chan error, 1)
	go func() { errc <- server.ListenAndServe() }()

	select {
	case <-cmd.Context().Done():
		_ = server.Close()
		return nil
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return wrapExit(ExitFailure, err)
		}
		return nil
	}
}
