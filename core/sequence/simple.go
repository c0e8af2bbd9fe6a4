// Package sequence implements the seven dispatch-contract arms (§4.3): each
// Kind is a small pure function bound to an inference_sequence tag through
// package dispatch's Registry.
package sequence

import (
	"context"
	"fmt"

	"github.com/flowstate/orchestrator/core/dispatch"
	"github.com/flowstate/orchestrator/core/tensor"
)

// Simple reads the entry's value concepts, produces one Reference, and
// reports completed on success (§4.3 "simple").
func Simple(ctx context.Context, req dispatch.Request) (dispatch.Outcome, error) {
	entry := req.Entry
	if entry.FunctionConcept == nil {
		return dispatch.Outcome{}, fmt.Errorf("sequence: simple inference %s requires a function_concept", entry.ID)
	}
	action := entry.FunctionConcept.Name
	if ref := entry.FunctionConcept.Reference; !ref.Empty() {
		if s, ok := ref.Data[0].String(); ok && s != "" {
			action = s
		}
	}

	params := make(map[string]any, len(entry.ValueConcepts))
	for _, vc := range entry.ValueConcepts {
		params[vc.Name] = flattenedValues(vc.Reference)
	}

	result, err := req.Body.Invoke(ctx, action, params)
	if err != nil {
		return dispatch.Outcome{Status: dispatch.StatusFailed, Err: err}, nil
	}

	produced := tensor.Wrap([]any{result}, nil)
	return dispatch.Outcome{Status: dispatch.StatusCompleted, ProducedReference: &produced}, nil
}
