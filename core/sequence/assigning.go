package sequence

import (
	"context"
	"fmt"

	"github.com/flowstate/orchestrator/core/assigner"
	"github.com/flowstate/orchestrator/core/dispatch"
	"github.com/flowstate/orchestrator/core/tensor"
)

// assignMarker selects specification (".") vs continuation ("+") (§4.6);
// named in working_interpretation["marker"].
type assignMarker string

const (
	markerSpecification assignMarker = "."
	markerContinuation  assignMarker = "+"
)

// Assigning copies or appends a source concept's Reference into the
// concept-to-infer's destination Reference (§4.3 "assigning", §4.6).
func Assigning(ctx context.Context, req dispatch.Request) (dispatch.Outcome, error) {
	entry := req.Entry
	if len(entry.ValueConcepts) == 0 {
		return dispatch.Outcome{}, fmt.Errorf("sequence: assigning inference %s requires at least one value concept", entry.ID)
	}

	destination := entry.ConceptToInfer.Reference
	marker, _ := entry.WorkingInterpretation["marker"].(string)

	var out tensor.Reference
	switch assignMarker(marker) {
	case markerContinuation:
		out = assigner.Continuation(destination, entry.ValueConcepts[0].Reference)
	default:
		sources := make([]tensor.Reference, len(entry.ValueConcepts))
		for i, vc := range entry.ValueConcepts {
			sources[i] = vc.Reference
		}
		out = assigner.Specification(destination, sources...)
	}
	return dispatch.Outcome{Status: dispatch.StatusCompleted, ProducedReference: &out}, nil
}
