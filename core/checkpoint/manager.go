package checkpoint

import (
	"context"
	"fmt"

	"github.com/flowstate/orchestrator/core/blackboard"
	"github.com/flowstate/orchestrator/core/concept"
	"github.com/flowstate/orchestrator/core/orchestrator"
	"github.com/flowstate/orchestrator/core/tracker"
	"github.com/flowstate/orchestrator/core/workspace"
)

// Manager writes Snapshots to a Store at the end of every cycle and, when
// configured to resume or fork, reconciles a previously loaded Snapshot back
// into a freshly constructed run (§4.8). It satisfies both
// orchestrator.Checkpointer and orchestrator.Reconciler, so callers wire the
// same Manager value into both Config fields.
type Manager struct {
	store Store
	mode  Mode

	// loadRunID, when non-empty, is the run whose latest Snapshot Reconcile
	// loads. Left empty for a fresh run with no checkpoint to resume from.
	//
	// Resume vs fork (§4.8.3) is decided entirely by the caller's choice of
	// Config.RunID alongside loadRunID: pass the same run_id to continue its
	// checkpoint log (resume), or a new run_id to branch off it (fork) —
	// Save always appends under whatever run_id the orchestrator reports.
	loadRunID string
	// validate, when true (the default), requires every ground concept
	// recorded in the loaded checkpoint to exist in the incoming ConceptRepo
	// (§4.8.4). Concepts named by inference entries are already resolved
	// against the ConceptRepo by inference.NewRepo and are not rechecked here.
	validate bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithMode overrides the default reconciliation mode. Resume defaults to
// PATCH, fork defaults to OVERWRITE (§4.8.2); call this to deviate.
func WithMode(mode Mode) Option {
	return func(m *Manager) { m.mode = mode }
}

// WithoutValidation disables the §4.8.4 compatibility check. Intended for
// tests exercising reconciliation in isolation.
func WithoutValidation() Option {
	return func(m *Manager) { m.validate = false }
}

// NewManager constructs a Manager that checkpoints to store and does not
// load any prior run (a plain new run).
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{store: store, mode: ModePatch, validate: true}
	for _, o := range opts {
		o(m)
	}
	return m
}

// NewResumeManager constructs a Manager that, on construction, loads runID's
// latest Snapshot and reconciles it under PATCH semantics by default
// (§4.8.3 "Resume": the new run_id equals the loaded run_id).
func NewResumeManager(store Store, runID string, opts ...Option) *Manager {
	m := &Manager{store: store, mode: ModePatch, validate: true, loadRunID: runID}
	for _, o := range opts {
		o(m)
	}
	return m
}

// NewForkManager constructs a Manager that loads runID's latest Snapshot but
// treats it as cycle 0 of a new run (§4.8.3 "Fork"), defaulting to OVERWRITE
// semantics.
func NewForkManager(store Store, runID string, opts ...Option) *Manager {
	m := &Manager{store: store, mode: ModeOverwrite, validate: true, loadRunID: runID}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Save implements orchestrator.Checkpointer.
func (m *Manager) Save(ctx context.Context, input orchestrator.CheckpointInput) error {
	snap := buildSnapshot(input)
	return m.store.Save(ctx, snap)
}

func buildSnapshot(input orchestrator.CheckpointInput) Snapshot {
	boardSnap := input.Board.Snapshot()

	concepts := make([]ConceptRecord, 0, len(input.Concepts.All()))
	for _, c := range input.Concepts.All() {
		status := boardSnap.ConceptStatus[c.Name]
		concepts = append(concepts, conceptRecordFromEntry(c, status))
	}

	items := make([]ItemRecord, 0, len(boardSnap.ItemStatus))
	for flowIndex, status := range boardSnap.ItemStatus {
		items = append(items, ItemRecord{
			FlowIndex:      flowIndex,
			Status:         status,
			ExecutionCount: boardSnap.ItemCount[flowIndex],
			Result:         boardSnap.ItemResult[flowIndex],
		})
	}

	var ws map[string]any
	if input.Workspace != nil {
		ws = input.Workspace.Snapshot()
	}

	trackerSnap := input.Tracker.Snapshot()
	inferenceCount := 0
	for _, a := range trackerSnap.ExecutionHistory {
		if a.Cycle == input.Cycle {
			inferenceCount++
		}
	}

	return Snapshot{
		RunID:          input.RunID,
		Cycle:          input.Cycle,
		Timestamp:      input.Timestamp,
		InferenceCount: inferenceCount,
		Concepts:       concepts,
		Items:          items,
		Tracker:        trackerSnap,
		Workspace:      ws,
	}
}

// Reconcile implements orchestrator.Reconciler. It is a no-op when the
// Manager has no loadRunID (a plain new run with nothing to resume).
func (m *Manager) Reconcile(board *blackboard.Blackboard, concepts *concept.Repo, trk *tracker.Tracker, ws *workspace.Workspace) error {
	if m.loadRunID == "" {
		return nil
	}
	snap, ok, err := m.store.Latest(context.Background(), m.loadRunID)
	if err != nil {
		return fmt.Errorf("checkpoint: load run %q: %w", m.loadRunID, err)
	}
	if !ok {
		return fmt.Errorf("checkpoint: no checkpoint found for run %q", m.loadRunID)
	}
	if m.validate {
		if err := validateSnapshot(snap, concepts); err != nil {
			return err
		}
	}
	reconcileConcepts(snap, board, concepts, m.mode)
	reconcileItems(snap, board)
	trk.Restore(snap.Tracker)
	if ws != nil && snap.Workspace != nil {
		ws.Restore(snap.Workspace)
	}
	return nil
}

// validateSnapshot implements the load-time half of §4.8.4: every ground
// concept the checkpoint recorded must exist in the incoming ConceptRepo.
// Non-ground concepts the new repo dropped are simply not reconciled; the
// concepts inference entries reference are checked by inference.NewRepo.
func validateSnapshot(snap Snapshot, concepts *concept.Repo) error {
	for _, rec := range snap.Concepts {
		if rec.IsGroundConcept && concepts.Get(rec.Name) == nil {
			return fmt.Errorf("checkpoint: ground concept %q from checkpoint missing in repo", rec.Name)
		}
	}
	return nil
}

// reconcileConcepts applies §4.8.2's per-concept merge rules.
func reconcileConcepts(snap Snapshot, board *blackboard.Blackboard, concepts *concept.Repo, mode Mode) {
	for _, rec := range snap.Concepts {
		target := concepts.Get(rec.Name)
		if target == nil {
			continue // concept missing in repo: skipped under every mode
		}
		sigMatches := rec.signature().equal(referenceSignatureOf(target))

		load := false
		switch mode {
		case ModeOverwrite:
			load = true
		case ModeFillGaps:
			load = target.Reference.Empty()
		default: // ModePatch
			load = sigMatches
		}
		if !load {
			continue
		}
		target.Reference = rec.toReference()
		if rec.Status == blackboard.ConceptComplete {
			board.SetConceptComplete(rec.Name)
		} else {
			board.SetConceptPending(rec.Name)
		}
	}
}

func referenceSignatureOf(e *concept.Entry) signature {
	return referenceSignature(e.Type, e.Reference)
}

// reconcileItems loads item statuses, execution counts, and results
// unconditionally (§4.8.2: "Item statuses... are loaded unconditionally
// under all modes"), dropping any flow index absent from the incoming
// waitlist rather than erroring.
func reconcileItems(snap Snapshot, board *blackboard.Blackboard) {
	for _, rec := range snap.Items {
		if board.ItemStatus(rec.FlowIndex) == "" {
			continue // flow index not in the incoming waitlist
		}
		board.SetItemStatus(rec.FlowIndex, rec.Status)
		board.SetItemResult(rec.FlowIndex, rec.Result)
		for board.ExecutionCount(rec.FlowIndex) < rec.ExecutionCount {
			board.IncrementExecutionCount(rec.FlowIndex)
		}
	}
}
