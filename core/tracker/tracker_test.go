package tracker_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowstate/orchestrator/core/dispatch"
	"github.com/flowstate/orchestrator/core/inference"
	"github.com/flowstate/orchestrator/core/tracker"
)

func TestRecordAttemptUpdatesCountersAndCompletionOrder(t *testing.T) {
	store := tracker.NewInMemStore()
	tr := tracker.NewTracker(store, "run-1")
	ctx := context.Background()

	tr.RecordCycleStart()
	require.NoError(t, tr.RecordAttempt(ctx, 1, "1", inference.SequenceSimple, dispatch.StatusCompleted, "a"))
	require.NoError(t, tr.RecordAttempt(ctx, 1, "2", inference.SequenceSimple, dispatch.StatusPendingRetry, "b"))
	require.NoError(t, tr.RecordAttempt(ctx, 2, "2", inference.SequenceSimple, dispatch.StatusCompleted, "b"))

	snap := tr.Snapshot()
	require.Equal(t, 1, snap.CycleCount)
	require.Equal(t, 3, snap.TotalExecutions)
	require.Equal(t, 2, snap.SuccessfulExecutions)
	require.Equal(t, 1, snap.RetryCount)
	require.Equal(t, []string{"1", "2"}, snap.CompletionOrder)
	require.Len(t, snap.ExecutionHistory, 3)
}

func TestSnapshotExecutionHistoryBoundedAtMaxEntries(t *testing.T) {
	store := tracker.NewInMemStore()
	tr := tracker.NewTracker(store, "run-1")
	ctx := context.Background()

	total := tracker.MaxHistoryEntries + 10
	for i := 0; i < total; i++ {
		require.NoError(t, tr.RecordAttempt(ctx, 1, "1", inference.SequenceSimple, dispatch.StatusCompleted, "a"))
	}

	snap := tr.Snapshot()
	require.Len(t, snap.ExecutionHistory, tracker.MaxHistoryEntries)
	require.Equal(t, total, snap.TotalExecutions)
	require.Equal(t, total, len(snap.CompletionOrder))
}

func TestRestoreReplacesCountersAndHistory(t *testing.T) {
	store := tracker.NewInMemStore()
	tr := tracker.NewTracker(store, "run-1")

	tr.Restore(tracker.Snapshot{
		CycleCount:           5,
		TotalExecutions:      10,
		SuccessfulExecutions: 8,
		RetryCount:           2,
		CompletionOrder:      []string{"1", "2"},
	})

	snap := tr.Snapshot()
	require.Equal(t, 5, snap.CycleCount)
	require.Equal(t, 10, snap.TotalExecutions)
	require.Equal(t, []string{"1", "2"}, snap.CompletionOrder)
}

func TestInMemStoreAppendAndPaginate(t *testing.T) {
	store := tracker.NewInMemStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, &tracker.Attempt{RunID: "run-1", FlowIndex: "1"}))
	}

	page, err := store.List(ctx, "run-1", "", 2)
	require.NoError(t, err)
	require.Len(t, page.Attempts, 2)
	require.NotEmpty(t, page.NextCursor)

	page2, err := store.List(ctx, "run-1", page.NextCursor, 10)
	require.NoError(t, err)
	require.Len(t, page2.Attempts, 3)
	require.Empty(t, page2.NextCursor)
}

func TestInMemStoreAppendRequiresRunID(t *testing.T) {
	store := tracker.NewInMemStore()
	err := store.Append(context.Background(), &tracker.Attempt{})
	require.Error(t, err)
}

func TestInMemStoreListRequiresPositiveLimit(t *testing.T) {
	store := tracker.NewInMemStore()
	_, err := store.List(context.Background(), "run-1", "", 0)
	require.Error(t, err)
}
