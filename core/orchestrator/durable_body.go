package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/flowstate/orchestrator/core/dispatch"
	"github.com/flowstate/orchestrator/core/engine"
)

const (
	durableBodyWorkflow = "orchestrator.body_invoke"
	durableBodyActivity = "orchestrator.body_invoke.activity"
)

// durableBody wraps a dispatch.Body so every Invoke call runs through an
// engine.Engine workflow/activity pair instead of directly in-process. The
// sequence kind itself stays in-process and deterministic; only the
// opaque, side-effecting Body call gets engine-backed durability.
type durableBody struct {
	eng   engine.Engine
	inner dispatch.Body
}

type bodyInvokeInput struct {
	Action string
	Params map[string]any
}

type bodyInvokeOutput struct {
	Result map[string]any
}

// newDurableBody registers the single workflow/activity pair every
// durableBody.Invoke call reuses, and returns a Body backed by it.
func newDurableBody(eng engine.Engine, inner dispatch.Body) (*durableBody, error) {
	ctx := context.Background()
	d := &durableBody{eng: eng, inner: inner}

	if err := eng.RegisterActivity(ctx, engine.ActivityDefinition{
		Name: durableBodyActivity,
		Handler: func(actx context.Context, input any) (any, error) {
			in, ok := input.(bodyInvokeInput)
			if !ok {
				return nil, fmt.Errorf("orchestrator: durable body activity: unexpected input type %T", input)
			}
			result, err := inner.Invoke(actx, in.Action, in.Params)
			if err != nil {
				return nil, err
			}
			return bodyInvokeOutput{Result: result}, nil
		},
	}); err != nil {
		return nil, err
	}

	if err := eng.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name: durableBodyWorkflow,
		Handler: func(wfCtx engine.WorkflowContext, input any) (any, error) {
			var out bodyInvokeOutput
			err := wfCtx.ExecuteActivity(wfCtx.Context(), engine.ActivityRequest{
				Name:  durableBodyActivity,
				Input: input,
			}, &out)
			return out, err
		},
	}); err != nil {
		return nil, err
	}

	return d, nil
}

// Invoke implements dispatch.Body by starting a workflow execution for this
// one action and waiting for it to complete.
func (d *durableBody) Invoke(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
	handle, err := d.eng.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:       uuid.NewString(),
		Workflow: durableBodyWorkflow,
		Input:    bodyInvokeInput{Action: action, Params: params},
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: start durable body invoke: %w", err)
	}
	var out bodyInvokeOutput
	if err := handle.Wait(ctx, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}
