package engine

import "context"

type workflowCtxKey struct{}

// WithWorkflowContext returns a child context carrying wf. Engine adapters
// use this when invoking an activity handler so the handler can recover the
// originating WorkflowContext if it needs to, e.g. to log with the same
// run ID.
func WithWorkflowContext(ctx context.Context, wf WorkflowContext) context.Context {
	return context.WithValue(ctx, workflowCtxKey{}, wf)
}

// WorkflowContextFromContext extracts a WorkflowContext from ctx, or nil if
// none was attached.
func WorkflowContextFromContext(ctx context.Context) WorkflowContext {
	if v := ctx.Value(workflowCtxKey{}); v != nil {
		if wf, ok := v.(WorkflowContext); ok {
			return wf
		}
	}
	return nil
}
