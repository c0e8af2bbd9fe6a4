// Package inmemstore implements an in-memory checkpoint.Store. It is meant
// for tests and local development; nothing it holds survives a process
// restart.
package inmemstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/flowstate/orchestrator/core/checkpoint"
)

// Store holds, per run, the append-only list of checkpoint.Snapshots written
// so far. Latest returns the most recently appended one (§4.8.1).
type Store struct {
	mu   sync.Mutex
	runs map[string][]checkpoint.Snapshot
}

// New returns an empty Store.
func New() *Store {
	return &Store{runs: make(map[string][]checkpoint.Snapshot)}
}

// Save implements checkpoint.Store.
func (s *Store) Save(_ context.Context, snap checkpoint.Snapshot) error {
	if snap.RunID == "" {
		return fmt.Errorf("inmemstore: run_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[snap.RunID] = append(s.runs[snap.RunID], snap)
	return nil
}

// Latest implements checkpoint.Store.
func (s *Store) Latest(_ context.Context, runID string) (checkpoint.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.runs[runID]
	if len(list) == 0 {
		return checkpoint.Snapshot{}, false, nil
	}
	return list[len(list)-1], true, nil
}

// All returns every checkpoint recorded for runID, oldest first. Intended
// for CLI inspection (`list-checkpoints`) and tests asserting on the full
// history rather than just the latest snapshot.
func (s *Store) All(runID string) []checkpoint.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]checkpoint.Snapshot(nil), s.runs[runID]...)
}

// ListRuns implements checkpoint.Lister.
func (s *Store) ListRuns(_ context.Context) ([]checkpoint.RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summaries := make([]checkpoint.RunSummary, 0, len(s.runs))
	for runID, snaps := range s.runs {
		if len(snaps) == 0 {
			continue
		}
		summary := checkpoint.RunSummary{
			RunID:          runID,
			FirstTimestamp: snaps[0].Timestamp,
			LastTimestamp:  snaps[0].Timestamp,
		}
		for _, snap := range snaps {
			if snap.Timestamp.Before(summary.FirstTimestamp) {
				summary.FirstTimestamp = snap.Timestamp
			}
			if snap.Timestamp.After(summary.LastTimestamp) {
				summary.LastTimestamp = snap.Timestamp
			}
			if snap.Cycle > summary.MaxCycle {
				summary.MaxCycle = snap.Cycle
			}
			summary.ExecutionCount += snap.InferenceCount
		}
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastTimestamp.After(summaries[j].LastTimestamp)
	})
	return summaries, nil
}

// ListCheckpoints implements checkpoint.Lister.
func (s *Store) ListCheckpoints(_ context.Context, runID string) ([]checkpoint.Snapshot, error) {
	return s.All(runID), nil
}
