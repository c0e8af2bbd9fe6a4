package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowstate/orchestrator/core/dispatch"
	"github.com/flowstate/orchestrator/core/tensor"
)

// ErrTransient marks a Body error as retryable; imperative sequences wrap
// their invocation error with it to request pending_retry instead of failed
// (§4.3 "imperative": "pending_retry on transient failure").
var ErrTransient = errors.New("sequence: transient failure")

// paradigm selects how working_interpretation's action name is resolved for
// an imperative variant (§9: "the sequence uses a paradigm... supplied via
// working_interpretation").
type paradigm string

const (
	paradigmDirect      paradigm = "direct"
	paradigmPython      paradigm = "python"
	paradigmIndirect    paradigm = "python_indirect"
	paradigmComposition paradigm = "in_composition"
)

// Imperative calls the body named by the function concept, same externally
// as Simple but with transient-failure retry support (§4.3 "imperative").
func Imperative(ctx context.Context, req dispatch.Request) (dispatch.Outcome, error) {
	return runImperative(ctx, req, paradigmDirect)
}

// ImperativePython runs the script-generate/execute paradigm named in the
// entry's working_interpretation (§4.3 "imperative_python").
func ImperativePython(ctx context.Context, req dispatch.Request) (dispatch.Outcome, error) {
	return runImperative(ctx, req, paradigmPython)
}

// ImperativePythonIndirect runs the indirect script paradigm (§4.3
// "imperative_python_indirect").
func ImperativePythonIndirect(ctx context.Context, req dispatch.Request) (dispatch.Outcome, error) {
	return runImperative(ctx, req, paradigmIndirect)
}

// ImperativeInComposition runs within a composed prompt-render paradigm
// (§4.3 "imperative_in_composition").
func ImperativeInComposition(ctx context.Context, req dispatch.Request) (dispatch.Outcome, error) {
	return runImperative(ctx, req, paradigmComposition)
}

func runImperative(ctx context.Context, req dispatch.Request, p paradigm) (dispatch.Outcome, error) {
	entry := req.Entry
	if entry.FunctionConcept == nil {
		return dispatch.Outcome{}, fmt.Errorf("sequence: imperative inference %s requires a function_concept", entry.ID)
	}

	action := entry.FunctionConcept.Name
	params := map[string]any{"paradigm": string(p)}
	for _, vc := range entry.ValueConcepts {
		params[vc.Name] = flattenedValues(vc.Reference)
	}
	for _, cc := range entry.ContextConcepts {
		params["context:"+cc.Name] = flattenedValues(cc.Reference)
	}

	result, err := req.Body.Invoke(ctx, action, params)
	if err != nil {
		if errors.Is(err, ErrTransient) {
			return dispatch.Outcome{Status: dispatch.StatusPendingRetry, Err: err}, nil
		}
		return dispatch.Outcome{Status: dispatch.StatusFailed, Err: err}, nil
	}

	produced := tensor.Wrap([]any{result}, nil)
	return dispatch.Outcome{Status: dispatch.StatusCompleted, ProducedReference: &produced}, nil
}
