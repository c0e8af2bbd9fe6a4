package orchestrator

import (
	"context"
	"time"

	"github.com/flowstate/orchestrator/core/blackboard"
	"github.com/flowstate/orchestrator/core/concept"
	"github.com/flowstate/orchestrator/core/tracker"
	"github.com/flowstate/orchestrator/core/workspace"
)

// Checkpointer persists a snapshot of orchestrator state, typically at the
// end of a cycle (§4.8.1). The scheduler itself never interprets a
// checkpoint's storage format; core/checkpoint provides the concrete
// implementation this interface is satisfied by.
type Checkpointer interface {
	Save(ctx context.Context, input CheckpointInput) error
}

// CheckpointInput bundles everything a Checkpointer needs to serialize one
// snapshot. Concepts and Board are read, never mutated, by Save.
type CheckpointInput struct {
	RunID     string
	Cycle     int
	Timestamp time.Time
	Concepts  *concept.Repo
	Board     *blackboard.Blackboard
	Tracker   *tracker.Tracker
	Workspace *workspace.Workspace
}

// Reconciler applies a previously loaded checkpoint to a freshly constructed
// Blackboard/ConceptRepo/Tracker, per §4.8.2's PATCH/OVERWRITE/FILL_GAPS
// modes. It runs once, during New, after protected concepts are promoted and
// before the run starts.
type Reconciler interface {
	Reconcile(board *blackboard.Blackboard, concepts *concept.Repo, trk *tracker.Tracker, ws *workspace.Workspace) error
}
