package sequence

import (
	"context"
	"fmt"

	"github.com/flowstate/orchestrator/core/dispatch"
	"github.com/flowstate/orchestrator/core/quantifier"
	"github.com/flowstate/orchestrator/core/tensor"
)

// Quantifying drives a per-iteration loop: each dispatch advances exactly one
// iteration, returning quantifying_complete=true only once every base
// element has been processed (§4.3 "quantifying", §4.4).
//
// Loop state lives in req.Workspace under the key "quantifier:"+entry.ID so
// it survives across the many dispatches one quantifying item requires.
func Quantifying(ctx context.Context, req dispatch.Request) (dispatch.Outcome, error) {
	entry := req.Entry
	if len(entry.ValueConcepts) == 0 {
		return dispatch.Outcome{}, fmt.Errorf("sequence: quantifying inference %s requires a to-loop value concept", entry.ID)
	}
	toLoop := entry.ValueConcepts[0].Reference
	key := "quantifier:" + entry.ID

	loop, ok := req.Workspace.Get(key)
	loopState, _ := loop.(*quantifier.Loop)
	if !ok || loopState == nil {
		loopState = quantifier.NewLoop(toLoop)
		req.Workspace.Set(key, loopState)
	}

	elem, idx, hasNext := loopState.NextBaseElement()
	if !hasNext {
		complete := loopState.AllProcessed()
		updated := map[string]tensor.Reference{}
		axisName := entry.ConceptToInfer.AxisName
		if axisName == "" {
			axisName = "_item"
		}
		updated[entry.ConceptToInfer.Name] = loopState.Concatenate(entry.ConceptToInfer.Name, axisName)
		return dispatch.Outcome{
			Status:              dispatch.StatusCompleted,
			UpdatedReferences:   updated,
			QuantifyingComplete: boolPtr(complete),
		}, nil
	}

	axisName := entry.ConceptToInfer.AxisName
	if axisName == "" {
		axisName = "base"
	}
	baseRef := tensor.Reference{Axes: []string{axisName}, Shape: []int{1}, Data: []tensor.Cell{elem}}
	loopState.RecordIteration(idx, map[string]tensor.Cell{entry.ConceptToInfer.Name: elem})

	// Even when this iteration happens to be the last base element, the
	// dispatch that produces it is not itself the completing dispatch: a
	// subsequent dispatch must observe NextBaseElement exhausted before the
	// loop reports quantifying_complete (§8.4 scenario C: N elements require
	// N non-completing dispatches plus one completing dispatch).
	updated := map[string]tensor.Reference{entry.ConceptToInfer.Name: baseRef}
	return dispatch.Outcome{
		Status:              dispatch.StatusCompleted,
		UpdatedReferences:   updated,
		QuantifyingComplete: boolPtr(false),
	}, nil
}

func boolPtr(b bool) *bool { return &b }
