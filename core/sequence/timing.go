package sequence

import (
	"context"

	"github.com/flowstate/orchestrator/core/blackboard"
	"github.com/flowstate/orchestrator/core/dispatch"
)

// Timing checks whether a named gating concept is complete on the
// Blackboard; it is a pure predicate that never mutates a concept reference
// or status (§4.3 "timing").
func Timing(ctx context.Context, req dispatch.Request) (dispatch.Outcome, error) {
	entry := req.Entry
	gate, _ := entry.WorkingInterpretation["after"].(string)
	if gate == "" && len(entry.ValueConcepts) > 0 {
		gate = entry.ValueConcepts[0].Name
	}
	ready := gate == "" || req.Board.ConceptStatus(gate) == blackboard.ConceptComplete
	return dispatch.Outcome{Status: dispatch.StatusCompleted, TimingReady: ready}, nil
}
