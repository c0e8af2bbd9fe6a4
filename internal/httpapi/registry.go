// Package httpapi implements the optional HTTP/SSE control surface a remote
// proxy (explicitly out of the core's scope) sits behind: status and
// node/concept inspection endpoints, a breakpoint-driven pause/step/stop
// control surface, and an SSE stream of the event tags the core emits. The
// scheduling loop itself stays single-threaded and authoritative; this
// package only starts one on a background goroutine and gives HTTP handlers
// a safe way to observe and steer it.
package httpapi

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowstate/orchestrator/core/checkpoint"
	"github.com/flowstate/orchestrator/core/concept"
	"github.com/flowstate/orchestrator/core/dispatch"
	"github.com/flowstate/orchestrator/core/events"
	"github.com/flowstate/orchestrator/core/inference"
	"github.com/flowstate/orchestrator/core/orchestrator"
	"github.com/flowstate/orchestrator/core/sequence"
	"github.com/flowstate/orchestrator/internal/repofile"
	"github.com/flowstate/orchestrator/internal/telemetry"
)

// StartConfig is everything Registry.Start needs to build and launch a run,
// the HTTP-surface equivalent of cmd/orchestrator's runParams.
type StartConfig struct {
	ConceptsPath   string
	InferencesPath string
	InputsPath     string
	SchemasPath    string
	MaxCycles      int
	RunID          string

	Store     checkpoint.Store
	Body      dispatch.Body
	Log       telemetry.Logger
	Metrics   telemetry.Metrics
	Tracer    telemetry.Tracer
	Reconcile orchestrator.Reconciler
}

// Run bundles a started Orchestrator with the bookkeeping the HTTP handlers
// need: the event bus SSE subscribers attach to, and the eventual Run
// result once the background goroutine finishes.
type Run struct {
	ID   string
	Orch *orchestrator.Orchestrator
	Bus  events.Bus

	Concepts   *concept.Repo
	Inferences *inference.Repo

	cancel context.CancelFunc
	done   chan struct{}

	// startCfg is retained so Continue/Step can rebuild a fresh Orchestrator
	// against the same repository files and checkpoint store once this one
	// has stopped; Run() cannot be called a second time on the same
	// Orchestrator value.
	startCfg StartConfig

	mu     sync.RWMutex
	result *orchestrator.Result
	err    error
}

// Wait blocks until the run's background goroutine finishes and returns its
// outcome. Safe to call from multiple goroutines.
func (r *Run) Wait(ctx context.Context) (*orchestrator.Result, error) {
	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.result, r.err
}

// Finished reports whether the background Run call has returned, and its
// result/error if so.
func (r *Run) Finished() (result *orchestrator.Result, err error, done bool) {
	select {
	case <-r.done:
	default:
		return nil, nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.result, r.err, true
}

// Stop cancels the run's context, causing its Run loop to return a
// Result{Stopped: true} at the next cycle boundary (core/orchestrator's
// ctx.Err() check).
func (r *Run) Stop() { r.cancel() }

// Registry tracks every run started through this process, keyed by run ID.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*Run
	log  telemetry.Logger
}

// NewRegistry constructs an empty Registry. log defaults to a no-op when nil.
func NewRegistry(log telemetry.Logger) *Registry {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Registry{runs: make(map[string]*Run), log: log}
}

// Get returns the run registered under id, if any.
func (reg *Registry) Get(id string) (*Run, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.runs[id]
	return r, ok
}

// Start builds a fresh Orchestrator from cfg, registers it under its run ID,
// and launches Run on a background goroutine. The returned Run is visible to
// Get immediately, before the background goroutine has made any progress.
func (reg *Registry) Start(ctx context.Context, cfg StartConfig) (*Run, error) {
	concepts, err := repofile.LoadConcepts(cfg.ConceptsPath)
	if err != nil {
		return nil, err
	}
	if err := repofile.LoadInputs(cfg.InputsPath, concepts); err != nil {
		return nil, err
	}
	schemas, err := repofile.LoadSchemas(cfg.SchemasPath)
	if err != nil {
		return nil, err
	}
	inferences, err := repofile.LoadInferences(cfg.InferencesPath, concepts, schemas)
	if err != nil {
		return nil, err
	}

	registry, err := dispatch.NewRegistry(sequence.DefaultKinds()...)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus()
	emitter := events.NewSink(bus, 0)

	var checkpointer orchestrator.Checkpointer
	if cfg.Store != nil {
		checkpointer = checkpoint.NewManager(cfg.Store)
	}

	o, err := orchestrator.New(orchestrator.Config{
		Concepts:     concepts,
		Inferences:   inferences,
		Registry:     registry,
		Body:         cfg.Body,
		MaxCycles:    cfg.MaxCycles,
		RunID:        cfg.RunID,
		Checkpointer: checkpointer,
		Reconcile:    cfg.Reconcile,
		Emitter:      emitter,
		Logger:       cfg.Log,
		Metrics:      cfg.Metrics,
		Tracer:       cfg.Tracer,
	})
	if err != nil {
		emitter.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &Run{
		ID:         o.RunID(),
		Orch:       o,
		Bus:        bus,
		Concepts:   concepts,
		Inferences: inferences,
		cancel:     cancel,
		done:       make(chan struct{}),
		startCfg:   cfg,
	}

	reg.mu.Lock()
	reg.runs[run.ID] = run
	reg.mu.Unlock()

	go func() {
		defer emitter.Close()
		defer close(run.done)
		result, err := o.Run(runCtx)
		run.mu.Lock()
		run.result, run.err = result, err
		run.mu.Unlock()
		if err != nil {
			reg.log.Error(context.Background(), "run ended with error", "run_id", run.ID, "error", err)
		}
	}()

	return run, nil
}

// errRunNotFound is returned by Continue when runID does not match any run
// this process started.
var errRunNotFound = fmt.Errorf("httpapi: run not found")

// errRunStillActive is returned by Continue when the named run's background
// goroutine has not finished yet; only a stopped, paused, or deadlocked run
// can be resumed.
var errRunStillActive = fmt.Errorf("httpapi: run is still in progress")

// errNoCheckpointStore is returned by Continue when the run was started
// without a checkpoint store, so there is nothing to resume from (§4.8.3's
// resume contract requires a persisted Snapshot).
var errNoCheckpointStore = fmt.Errorf("httpapi: run was started without a checkpoint store")

// Continue rebuilds a fresh Orchestrator for runID from its latest
// checkpoint (PATCH mode, mirroring cmd/orchestrator resume's default) and
// relaunches it with maxCycles additional cycles, replacing the registry
// entry under the same run ID. Used by both the /continue endpoint
// (maxCycles = the original budget) and /step (maxCycles = 1).
func (reg *Registry) Continue(ctx context.Context, runID string, maxCycles int) (*Run, error) {
	prior, ok := reg.Get(runID)
	if !ok {
		return nil, errRunNotFound
	}
	if _, _, done := prior.Finished(); !done {
		return nil, errRunStillActive
	}
	if prior.startCfg.Store == nil {
		return nil, errNoCheckpointStore
	}

	next := prior.startCfg
	next.RunID = runID
	next.MaxCycles = maxCycles
	next.Reconcile = checkpoint.NewResumeManager(prior.startCfg.Store, runID, checkpoint.WithMode(checkpoint.ModePatch))
	return reg.Start(ctx, next)
}
