package main

import (
	"context"

	"github.com/flowstate/orchestrator/internal/telemetry"
)

// echoBody is the CLI's default dispatch.Body. Invoking an LLM or any other
// external tool is explicitly out of scope for the core orchestrator (the
// scheduler treats every inference as an opaque run(entry, state) -> result
// call); echoBody exists so `orchestrator run` can exercise a full repo file
// set end to end without wiring a real action executor. A caller embedding
// this CLI as a starting point replaces it with a Body that dispatches to
// real tools/models.
type echoBody struct {
	log telemetry.Logger
}

func newEchoBody(log telemetry.Logger) *echoBody {
	return &echoBody{log: log}
}

func (b *echoBody) Invoke(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
	b.log.Debug(ctx, "echo body invoked", "action", action, "params", params)
	return map[string]any{"action": action, "echoed": params}, nil
}
