package inmemstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowstate/orchestrator/checkpoint/inmemstore"
	"github.com/flowstate/orchestrator/core/checkpoint"
)

func TestSaveAndLatestReturnsMostRecentAppend(t *testing.T) {
	store := inmemstore.New()
	ctx := context.Background()

	for cycle := 0; cycle < 3; cycle++ {
		require.NoError(t, store.Save(ctx, checkpoint.Snapshot{RunID: "run-1", Cycle: cycle}))
	}

	got, ok, err := store.Latest(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, got.Cycle)
}

func TestSaveRequiresRunID(t *testing.T) {
	store := inmemstore.New()
	err := store.Save(context.Background(), checkpoint.Snapshot{})
	require.Error(t, err)
}

func TestListCheckpointsReturnsAppendOrder(t *testing.T) {
	store := inmemstore.New()
	ctx := context.Background()
	for cycle := 0; cycle < 3; cycle++ {
		require.NoError(t, store.Save(ctx, checkpoint.Snapshot{RunID: "run-1", Cycle: cycle}))
	}

	snaps, err := store.ListCheckpoints(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	require.Equal(t, 0, snaps[0].Cycle)
	require.Equal(t, 2, snaps[2].Cycle)
}

func TestListRunsAggregatesAcrossRuns(t *testing.T) {
	store := inmemstore.New()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.Save(ctx, checkpoint.Snapshot{RunID: "run-1", Cycle: 0, InferenceCount: 2, Timestamp: now}))
	require.NoError(t, store.Save(ctx, checkpoint.Snapshot{RunID: "run-1", Cycle: 1, InferenceCount: 3, Timestamp: now.Add(time.Second)}))
	require.NoError(t, store.Save(ctx, checkpoint.Snapshot{RunID: "run-2", Cycle: 0, InferenceCount: 1, Timestamp: now}))

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	var run1 checkpoint.RunSummary
	for _, r := range runs {
		if r.RunID == "run-1" {
			run1 = r
		}
	}
	require.Equal(t, 1, run1.MaxCycle)
	require.Equal(t, 5, run1.ExecutionCount)
}
