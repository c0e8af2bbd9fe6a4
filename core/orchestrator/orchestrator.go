// Package orchestrator implements the scheduling loop described in §4.7: it
// owns the Waitlist, Blackboard, and ProcessTracker, dispatches inference
// entries through the registered sequence Kind, applies the per-kind
// post-dispatch rules, and emits the §4.9 lifecycle events.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowstate/orchestrator/core/blackboard"
	"github.com/flowstate/orchestrator/core/concept"
	"github.com/flowstate/orchestrator/core/dispatch"
	"github.com/flowstate/orchestrator/core/engine"
	"github.com/flowstate/orchestrator/core/events"
	"github.com/flowstate/orchestrator/core/inference"
	"github.com/flowstate/orchestrator/core/tracker"
	"github.com/flowstate/orchestrator/core/waitlist"
	"github.com/flowstate/orchestrator/core/workspace"
	"github.com/flowstate/orchestrator/internal/telemetry"
)

// DefaultMaxCycles is used when Config.MaxCycles is zero (§4.7.1 "default
// 10-30").
const DefaultMaxCycles = 25

// EventEmitter is the subset of *events.Sink the orchestrator depends on. A
// nil EventEmitter disables event emission entirely.
type EventEmitter interface {
	Emit(event events.Event)
}

// Config configures a new Orchestrator (§4.7.1 "Initialization").
type Config struct {
	Concepts   *concept.Repo
	Inferences *inference.Repo
	Registry   *dispatch.Registry
	Body       dispatch.Body

	// MaxCycles bounds the scheduling loop; zero uses DefaultMaxCycles.
	MaxCycles int
	// RunID is used verbatim if set; otherwise a fresh one is generated.
	RunID string

	// TrackerStore persists ProcessTracker attempts; defaults to an
	// in-memory store when nil.
	TrackerStore tracker.Store
	// Checkpointer, when set, is invoked at the end of every cycle.
	Checkpointer Checkpointer
	// Reconcile, when set, is applied once during New after protected
	// concepts are promoted (checkpoint resume/fork, §4.8.2-3).
	Reconcile Reconciler
	// Emitter, when set, receives every §4.9 event.
	Emitter EventEmitter
	// Clock overrides time.Now, for deterministic tests.
	Clock func() time.Time

	// Engine, when set, durably executes every Body.Invoke call through a
	// workflow/activity pair instead of in-process, so a single dispatch
	// can replay after a crash (SPEC_FULL.md §B). Nil runs Body directly,
	// the default.
	Engine engine.Engine

	// Logger, Metrics, and Tracer default to no-ops when unset; the CLI and
	// HTTP entry points wire clue/OpenTelemetry-backed implementations.
	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer
}

// Result is what Run returns once the scheduling loop stops, whether by
// completion, cycle-budget exhaustion, deadlock, or a pending user
// interaction (§7 items 2, 3, 6).
type Result struct {
	RunID            string
	Cycles           int
	FinalConcepts    []*concept.Entry
	Deadlocked       bool
	StuckFlowIndices []string
	PausedFor        *dispatch.UserInputRequest
	PausedFlowIndex  string
	// Stopped is true when ctx was canceled mid-loop (an HTTP control
	// surface's stop endpoint, typically) rather than the run reaching
	// completion, exhaustion, or deadlock on its own.
	Stopped bool
}

// Orchestrator runs the single-threaded cooperative scheduling loop (§5).
type Orchestrator struct {
	concepts   *concept.Repo
	inferences *inference.Repo
	registry   *dispatch.Registry
	body       dispatch.Body

	board     *blackboard.Blackboard
	waitlist  *waitlist.Waitlist
	workspace *workspace.Workspace
	tracker   *tracker.Tracker

	maxCycles    int
	runID        string
	checkpointer Checkpointer
	emitter      EventEmitter
	clock        func() time.Time

	log     telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer

	// breakpointsMu guards breakpoints against concurrent Set/Clear calls
	// from an HTTP control surface (internal/httpapi) running the loop on a
	// background goroutine while the main loop reads it every cycle.
	breakpointsMu sync.RWMutex
	breakpoints   map[string]bool
}

// New constructs an Orchestrator and performs §4.7.1's initialization steps.
// Every inference's Sequence must resolve in Registry; an unresolvable tag
// is a fatal configuration error (§7 item 1), caught here rather than at
// dispatch time.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Concepts == nil || cfg.Inferences == nil || cfg.Registry == nil {
		return nil, fmt.Errorf("orchestrator: concepts, inferences, and registry are required")
	}
	for _, entry := range cfg.Inferences.All() {
		if _, err := cfg.Registry.Lookup(entry.Sequence); err != nil {
			return nil, fmt.Errorf("orchestrator: inference %s: %w", entry.ID, err)
		}
	}

	maxCycles := cfg.MaxCycles
	if maxCycles <= 0 {
		maxCycles = DefaultMaxCycles
	}
	runID := cfg.RunID
	if runID == "" {
		runID = generateRunID()
	}
	store := cfg.TrackerStore
	if store == nil {
		store = tracker.NewInMemStore()
	}

	wl := waitlist.New(cfg.Inferences.All())
	board := blackboard.New()
	for _, c := range cfg.Concepts.All() {
		board.InitConcept(c.Name, blackboard.ConceptEmpty)
	}
	for _, it := range wl.Items() {
		board.InitItem(it.FlowIndex().String())
	}
	promoteProtectedConcepts(board, cfg.Concepts, cfg.Inferences)

	trk := tracker.NewTracker(store, runID)
	ws := workspace.New()
	if cfg.Reconcile != nil {
		if err := cfg.Reconcile.Reconcile(board, cfg.Concepts, trk, ws); err != nil {
			return nil, fmt.Errorf("orchestrator: reconcile checkpoint: %w", err)
		}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}

	body := cfg.Body
	if cfg.Engine != nil {
		durable, err := newDurableBody(cfg.Engine, body)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: configure durable engine: %w", err)
		}
		body = durable
	}

	o := &Orchestrator{
		concepts:     cfg.Concepts,
		inferences:   cfg.Inferences,
		registry:     cfg.Registry,
		body:         body,
		board:        board,
		waitlist:     wl,
		workspace:    ws,
		tracker:      trk,
		maxCycles:    maxCycles,
		runID:        runID,
		checkpointer: cfg.Checkpointer,
		emitter:      cfg.Emitter,
		clock:        clock,
		log:          log,
		metrics:      metrics,
		tracer:       tracer,
		breakpoints:  make(map[string]bool),
	}
	o.log.Info(context.Background(), "run initialized", "run_id", runID, "items", wl.Len())
	o.emit(events.RunStarted, map[string]any{"run_id": runID, "at": clock()})
	return o, nil
}

// promoteProtectedConcepts implements §4.7.1 step 3: ground concepts, and
// function concepts that are never anyone's concept_to_infer (the
// "primitive functions" supplied by the body), are promoted to complete
// before the loop starts.
func promoteProtectedConcepts(board *blackboard.Blackboard, concepts *concept.Repo, inferences *inference.Repo) {
	toInfer := make(map[string]bool)
	functionConcepts := make(map[string]bool)
	for _, e := range inferences.All() {
		toInfer[e.ConceptToInfer.Name] = true
		if e.FunctionConcept != nil {
			functionConcepts[e.FunctionConcept.Name] = true
		}
	}
	for _, c := range concepts.All() {
		if c.IsGroundConcept {
			board.SetConceptComplete(c.Name)
		}
	}
	for name := range functionConcepts {
		if !toInfer[name] {
			board.SetConceptComplete(name)
		}
	}
}

// RunID returns the orchestrator's run identifier.
func (o *Orchestrator) RunID() string { return o.runID }

// Tracker exposes the ProcessTracker for callers (e.g. a checkpoint writer)
// that need its snapshot outside of Run.
func (o *Orchestrator) Tracker() *tracker.Tracker { return o.tracker }

// Board exposes the Blackboard for read-only observers (status endpoints,
// checkpoint writers).
func (o *Orchestrator) Board() *blackboard.Blackboard { return o.board }

// SetBreakpoint marks a flow index so the loop reports breakpoint:hit and
// skips it (without progress credit) instead of dispatching it (SPEC_FULL.md
// §C.6).
func (o *Orchestrator) SetBreakpoint(flowIndex string) {
	o.breakpointsMu.Lock()
	defer o.breakpointsMu.Unlock()
	o.breakpoints[flowIndex] = true
}

// ClearBreakpoint removes a previously set breakpoint.
func (o *Orchestrator) ClearBreakpoint(flowIndex string) {
	o.breakpointsMu.Lock()
	defer o.breakpointsMu.Unlock()
	delete(o.breakpoints, flowIndex)
}

func (o *Orchestrator) hasBreakpoint(flowIndex string) bool {
	o.breakpointsMu.RLock()
	defer o.breakpointsMu.RUnlock()
	return o.breakpoints[flowIndex]
}

// Breakpoints returns the currently set breakpoint flow indices, in no
// particular order.
func (o *Orchestrator) Breakpoints() []string {
	o.breakpointsMu.RLock()
	defer o.breakpointsMu.RUnlock()
	out := make([]string, 0, len(o.breakpoints))
	for flowIndex := range o.breakpoints {
		out = append(out, flowIndex)
	}
	return out
}

// ClearAllBreakpoints removes every breakpoint.
func (o *Orchestrator) ClearAllBreakpoints() {
	o.breakpointsMu.Lock()
	defer o.breakpointsMu.Unlock()
	o.breakpoints = make(map[string]bool)
}

func (o *Orchestrator) emit(tag events.Tag, payload map[string]any) {
	if o.emitter == nil {
		return
	}
	o.emitter.Emit(events.New(tag, o.clock(), payload))
}

// Run executes the main scheduling loop (§4.7.6) until completion, cycle
// exhaustion, deadlock, or a paused user interaction.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	ctx, runSpan := o.tracer.Start(ctx, "orchestrator.run")
	defer runSpan.End()

	var retries []waitlist.Item
	cycle := 0

	for o.hasAnyNonCompleted() && cycle < o.maxCycles {
		if err := ctx.Err(); err != nil {
			o.log.Info(context.Background(), "run stopped", "run_id", o.runID, "cycle", cycle)
			o.checkpointAtCycle(context.Background(), cycle)
			o.emit(events.RunCompleted, map[string]any{
				"run_id":                 o.runID,
				"final_concepts_summary": o.finalConceptsSummary(),
				"stopped":                true,
			})
			return &Result{
				RunID:            o.runID,
				Cycles:           cycle,
				FinalConcepts:    o.finalConcepts(),
				StuckFlowIndices: o.stuckFlowIndices(),
				Stopped:          true,
			}, nil
		}
		cycle++
		cycleCtx, cycleSpan := o.tracer.Start(ctx, "orchestrator.cycle")
		o.tracker.RecordCycleStart()
		o.emit(events.CycleStarted, map[string]any{"cycle": cycle})
		o.metrics.IncCounter("orchestrator.cycles", 1)

		thisCycle := o.buildCycleOrder(retries)
		retries = nil
		progress := false

		for _, item := range thisCycle {
			flowIndex := item.FlowIndex().String()
			if !isReady(item.Entry, o.board, flowIndex) {
				continue
			}
			if o.hasBreakpoint(flowIndex) {
				o.emit(events.BreakpointHit, map[string]any{"flow_index": flowIndex})
				continue
			}

			progress = true
			outcome, err := o.dispatchOne(cycleCtx, item, cycle)
			if err != nil {
				cycleSpan.RecordError(err)
				cycleSpan.End()
				return nil, err
			}
			if outcome.NeedsUserInput != nil {
				o.checkpointAtCycle(ctx, cycle)
				cycleSpan.End()
				return &Result{
					RunID:           o.runID,
					Cycles:          cycle,
					PausedFor:       outcome.NeedsUserInput,
					PausedFlowIndex: flowIndex,
				}, nil
			}
			if o.board.ItemStatus(flowIndex) == blackboard.ItemPending {
				retries = append(retries, item)
			}
		}

		o.checkpointAtCycle(ctx, cycle)
		o.emitProgress(cycle)
		cycleSpan.End()

		if !progress {
			stuck := o.stuckFlowIndices()
			o.log.Warn(ctx, "run deadlocked", "run_id", o.runID, "cycle", cycle, "stuck_flow_indices", stuck)
			o.metrics.IncCounter("orchestrator.deadlocks", 1)
			o.emit(events.RunCompleted, map[string]any{
				"run_id":                 o.runID,
				"final_concepts_summary": o.finalConceptsSummary(),
				"deadlocked":             true,
			})
			return &Result{
				RunID:            o.runID,
				Cycles:           cycle,
				FinalConcepts:    o.finalConcepts(),
				Deadlocked:       true,
				StuckFlowIndices: stuck,
			}, nil
		}
	}

	o.log.Info(ctx, "run completed", "run_id", o.runID, "cycles", cycle)
	o.emit(events.RunCompleted, map[string]any{
		"run_id":                 o.runID,
		"final_concepts_summary": o.finalConceptsSummary(),
	})
	return &Result{
		RunID:            o.runID,
		Cycles:           cycle,
		FinalConcepts:    o.finalConcepts(),
		StuckFlowIndices: o.stuckFlowIndices(),
	}, nil
}

// buildCycleOrder prepends retries (in their accumulated order) to every
// other waitlist item in flow-index order, each visited at most once
// (§4.7.6 "Ordering: retry items are attempted first within a cycle").
func (o *Orchestrator) buildCycleOrder(retries []waitlist.Item) []waitlist.Item {
	seen := make(map[string]bool, len(retries))
	for _, it := range retries {
		seen[it.FlowIndex().String()] = true
	}
	out := make([]waitlist.Item, 0, o.waitlist.Len())
	out = append(out, retries...)
	for _, it := range o.waitlist.Items() {
		if !seen[it.FlowIndex().String()] {
			out = append(out, it)
		}
	}
	return out
}

func (o *Orchestrator) hasAnyNonCompleted() bool {
	for _, it := range o.waitlist.Items() {
		if o.board.ItemStatus(it.FlowIndex().String()) != blackboard.ItemCompleted {
			return true
		}
	}
	return false
}

func (o *Orchestrator) stuckFlowIndices() []string {
	var stuck []string
	for _, it := range o.waitlist.Items() {
		if o.board.ItemStatus(it.FlowIndex().String()) != blackboard.ItemCompleted {
			stuck = append(stuck, it.FlowIndex().String())
		}
	}
	return stuck
}

func (o *Orchestrator) finalConcepts() []*concept.Entry {
	var out []*concept.Entry
	for _, c := range o.concepts.All() {
		if c.IsFinalConcept {
			out = append(out, c)
		}
	}
	return out
}

func (o *Orchestrator) finalConceptsSummary() map[string]any {
	summary := make(map[string]any)
	for _, c := range o.finalConcepts() {
		summary[c.Name] = c.Reference.Size()
	}
	return summary
}

func (o *Orchestrator) emitProgress(cycle int) {
	total := o.waitlist.Len()
	completed := total - len(o.stuckFlowIndices())
	o.emit(events.ExecutionProgress, map[string]any{
		"completed": completed,
		"total":     total,
		"cycle":     cycle,
	})
}

func (o *Orchestrator) checkpointAtCycle(ctx context.Context, cycle int) {
	if o.checkpointer == nil {
		return
	}
	_ = o.checkpointer.Save(ctx, CheckpointInput{
		RunID:     o.runID,
		Cycle:     cycle,
		Timestamp: o.clock(),
		Concepts:  o.concepts,
		Board:     o.board,
		Tracker:   o.tracker,
		Workspace: o.workspace,
	})
}
