package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowstate/orchestrator/core/dispatch"
	"github.com/flowstate/orchestrator/core/tensor"
)

// Judgement produces a boolean-valued Reference, same externally as
// Imperative (§4.3 "judgement").
func Judgement(ctx context.Context, req dispatch.Request) (dispatch.Outcome, error) {
	return runJudgement(ctx, req, paradigmDirect)
}

// JudgementPython runs the script paradigm variant (§4.3 "judgement_python").
func JudgementPython(ctx context.Context, req dispatch.Request) (dispatch.Outcome, error) {
	return runJudgement(ctx, req, paradigmPython)
}

// JudgementInComposition runs the composed-prompt variant (§4.3
// "judgement_in_composition").
func JudgementInComposition(ctx context.Context, req dispatch.Request) (dispatch.Outcome, error) {
	return runJudgement(ctx, req, paradigmComposition)
}

func runJudgement(ctx context.Context, req dispatch.Request, p paradigm) (dispatch.Outcome, error) {
	entry := req.Entry
	if entry.FunctionConcept == nil {
		return dispatch.Outcome{}, fmt.Errorf("sequence: judgement inference %s requires a function_concept", entry.ID)
	}

	params := map[string]any{"paradigm": string(p)}
	for _, vc := range entry.ValueConcepts {
		params[vc.Name] = flattenedValues(vc.Reference)
	}
	if condition, ok := entry.WorkingInterpretation["condition"].(string); ok {
		params["condition"] = condition
	}

	result, err := req.Body.Invoke(ctx, entry.FunctionConcept.Name, params)
	if err != nil {
		if errors.Is(err, ErrTransient) {
			return dispatch.Outcome{Status: dispatch.StatusPendingRetry, Err: err}, nil
		}
		return dispatch.Outcome{Status: dispatch.StatusFailed, Err: err}, nil
	}

	verdict, _ := result["verdict"].(bool)
	produced := tensor.Wrap([]any{verdict}, nil)
	return dispatch.Outcome{Status: dispatch.StatusCompleted, ProducedReference: &produced}, nil
}
