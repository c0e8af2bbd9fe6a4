package sequence

import (
	"context"

	"github.com/flowstate/orchestrator/core/dispatch"
	"github.com/flowstate/orchestrator/core/grouper"
	"github.com/flowstate/orchestrator/core/tensor"
)

// groupingOp selects and_in vs or_across (§4.5); named in
// working_interpretation["operation"].
type groupingOp string

const (
	opAndIn    groupingOp = "and_in"
	opOrAcross groupingOp = "or_across"
)

// Grouping combines the entry's value concepts into one annotated/flattened
// relation via package grouper (§4.3 "grouping", §4.5).
func Grouping(ctx context.Context, req dispatch.Request) (dispatch.Outcome, error) {
	entry := req.Entry

	refs := make([]tensor.Reference, len(entry.ValueConcepts))
	labels := make([]string, len(entry.ValueConcepts))
	for i, vc := range entry.ValueConcepts {
		refs[i] = vc.Reference
		labels[i] = vc.Name
	}

	op, _ := entry.WorkingInterpretation["operation"].(string)
	byAxes := stringSlice(entry.WorkingInterpretation["by_axes"])
	createAxis, _ := entry.WorkingInterpretation["create_axis"].(string)

	var out tensor.Reference
	var err error
	switch groupingOp(op) {
	case opOrAcross:
		out, err = grouper.OrAcross(refs, byAxes, createAxis)
	default:
		out, err = grouper.AndIn(refs, labels, byAxes, createAxis)
	}
	if err != nil {
		return dispatch.Outcome{Status: dispatch.StatusFailed, Err: err}, nil
	}
	return dispatch.Outcome{Status: dispatch.StatusCompleted, ProducedReference: &out}, nil
}

func stringSlice(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
