// Package tracker implements the ProcessTracker: the orchestrator's
// append-only history of dispatch attempts, alongside the running counters
// and completion order a checkpoint snapshot carries forward.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowstate/orchestrator/core/dispatch"
	"github.com/flowstate/orchestrator/core/inference"
)

// MaxHistoryEntries bounds how many attempts Snapshot retains in
// ExecutionHistory, keeping checkpoint documents from growing unbounded over
// a long-running run. Counters and completion order are never truncated.
const MaxHistoryEntries = 500

type (
	// Attempt is a single immutable record of one dispatch: which item ran,
	// in which cycle, under which sequence kind, and what it returned.
	//
	// Store implementations assign ID when persisting the attempt. IDs are
	// opaque, monotonically ordered within a run, and suitable for
	// cursor-based pagination.
	Attempt struct {
		ID                 string
		RunID              string
		Cycle              int
		FlowIndex          string
		SequenceKind       inference.Sequence
		Status             dispatch.Status
		ConceptToInferName string
		Timestamp          time.Time
	}

	// Page is a forward page of attempts, oldest first.
	Page struct {
		Attempts   []*Attempt
		NextCursor string
	}

	// Store is an append-only attempt log. Implementations must provide
	// stable ordering within a run; cursor values are store-owned and
	// opaque to callers.
	Store interface {
		// Append persists the attempt, assigning its ID.
		Append(ctx context.Context, a *Attempt) error
		// List returns the next forward page of attempts for runID. cursor
		// is empty to start from the beginning; limit must be > 0.
		List(ctx context.Context, runID string, cursor string, limit int) (Page, error)
	}

	// Snapshot is the checkpointable state of a Tracker (§4.8.1's
	// "ProcessTracker snapshot").
	Snapshot struct {
		CycleCount           int
		TotalExecutions      int
		SuccessfulExecutions int
		RetryCount           int
		CompletionOrder      []string
		ExecutionHistory     []*Attempt
	}

	// Tracker accumulates run-level counters and completion order while
	// delegating individual attempt persistence to a Store.
	Tracker struct {
		mu    sync.Mutex
		store Store
		runID string

		cycleCount           int
		totalExecutions      int
		successfulExecutions int
		retryCount           int
		completionOrder      []string

		// history is an in-memory, size-bounded mirror of recently recorded
		// attempts, used only to populate Snapshot.ExecutionHistory without
		// a round trip through Store.
		history []*Attempt
	}
)

// NewTracker constructs a Tracker for runID that appends attempts to store.
func NewTracker(store Store, runID string) *Tracker {
	return &Tracker{store: store, runID: runID}
}

// RecordCycleStart increments the cycle counter. Call once per scheduler
// cycle, before dispatching any item.
func (t *Tracker) RecordCycleStart() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cycleCount++
}

// CycleCount returns the number of cycles started so far.
func (t *Tracker) CycleCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cycleCount
}

// RecordAttempt appends a ProcessTracker record for one dispatch outcome
// (§4.7.4 "In every case, append a ProcessTracker record") and updates the
// run's counters: total_executions always increments; successful_executions
// increments on StatusCompleted; retry_count increments on
// StatusPendingRetry; completion_order gains flowIndex only on
// StatusCompleted.
func (t *Tracker) RecordAttempt(ctx context.Context, cycle int, flowIndex string, kind inference.Sequence, status dispatch.Status, conceptToInferName string) error {
	attempt := &Attempt{
		RunID:              t.runID,
		Cycle:              cycle,
		FlowIndex:          flowIndex,
		SequenceKind:       kind,
		Status:             status,
		ConceptToInferName: conceptToInferName,
		Timestamp:          time.Now(),
	}
	if err := t.store.Append(ctx, attempt); err != nil {
		return fmt.Errorf("tracker: append attempt: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalExecutions++
	switch status {
	case dispatch.StatusCompleted:
		t.successfulExecutions++
		t.completionOrder = append(t.completionOrder, flowIndex)
	case dispatch.StatusPendingRetry:
		t.retryCount++
	}
	t.history = append(t.history, attempt)
	if len(t.history) > MaxHistoryEntries {
		t.history = t.history[len(t.history)-MaxHistoryEntries:]
	}
	return nil
}

// Snapshot returns a deep-copyable view of the tracker's checkpointable
// state, with ExecutionHistory bounded to MaxHistoryEntries.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		CycleCount:           t.cycleCount,
		TotalExecutions:      t.totalExecutions,
		SuccessfulExecutions: t.successfulExecutions,
		RetryCount:           t.retryCount,
		CompletionOrder:      append([]string(nil), t.completionOrder...),
		ExecutionHistory:     append([]*Attempt(nil), t.history...),
	}
}

// Restore replaces the tracker's counters and history from a loaded
// checkpoint snapshot. Used when resuming or forking a run (§4.8.3).
func (t *Tracker) Restore(snap Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cycleCount = snap.CycleCount
	t.totalExecutions = snap.TotalExecutions
	t.successfulExecutions = snap.SuccessfulExecutions
	t.retryCount = snap.RetryCount
	t.completionOrder = append([]string(nil), snap.CompletionOrder...)
	t.history = append([]*Attempt(nil), snap.ExecutionHistory...)
}
