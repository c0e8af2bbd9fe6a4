// Package dispatch defines the uniform contract every inference sequence
// kind is invoked through, and the Outcome record the scheduler observes from
// it (§4.3). Sequence kinds are registered as a tagged variant: one Kind per
// inference_sequence tag, each binding a single invoke function. The
// scheduler never introspects how a Kind computes its Outcome; it applies the
// post-dispatch rules in §4.7.4 uniformly.
package dispatch

import (
	"context"
	"fmt"

	"github.com/flowstate/orchestrator/core/blackboard"
	"github.com/flowstate/orchestrator/core/concept"
	"github.com/flowstate/orchestrator/core/inference"
	"github.com/flowstate/orchestrator/core/tensor"
	"github.com/flowstate/orchestrator/core/workspace"
)

// Status is the outcome's terminal classification.
type Status string

const (
	StatusCompleted    Status = "completed"
	StatusPendingRetry Status = "pending_retry"
	StatusFailed       Status = "failed"
)

// Outcome is what every sequence kind's invoke function returns (§4.3).
type Outcome struct {
	Status Status

	// ProducedReference, if non-nil, is attached to entry.ConceptToInfer on a
	// completed outcome.
	ProducedReference *tensor.Reference

	// UpdatedReferences are additional concepts written alongside the main
	// produced reference (e.g. quantifying per-iteration context).
	UpdatedReferences map[string]tensor.Reference

	// TimingReady is only meaningful for the timing kind.
	TimingReady bool

	// QuantifyingComplete is only meaningful for the quantifying kind; nil
	// means "not applicable."
	QuantifyingComplete *bool

	// Err carries the failure detail for StatusFailed/StatusPendingRetry.
	Err error

	// NeedsUserInput, when non-nil, preserves the source system's
	// user-interaction exception as an explicit outcome variant instead of an
	// unwinding error (§9): the scheduler checkpoints, pauses, and surfaces
	// the request rather than treating this as a failure.
	NeedsUserInput *UserInputRequest
}

// UserInputRequest describes a paused run awaiting an operator response
// (§7 error taxonomy, item 6).
type UserInputRequest struct {
	InteractionID   string
	InteractionType string
	Prompt          string
	Args            map[string]any
}

// Body is the external collaborator bag an invoke function may call into
// (LLM clients, tool executors, user-input sinks). The core never defines
// what Body contains beyond this interface; concrete bodies live outside
// package dispatch.
type Body interface {
	// Invoke runs whatever external action a working_interpretation names,
	// returning an opaque result payload or an error. Sequence kinds decode
	// working_interpretation themselves and pass the pieces Body needs.
	Invoke(ctx context.Context, action string, params map[string]any) (map[string]any, error)
}

// Request bundles everything an invoke function needs to compute an Outcome.
type Request struct {
	Entry     *inference.Entry
	Concepts  *concept.Repo
	Board     *blackboard.Blackboard
	Workspace *workspace.Workspace
	Body      Body
}

// InvokeFunc is the signature every sequence kind registers (§9: "a single
// invoke method returning the Outcome record").
type InvokeFunc func(ctx context.Context, req Request) (Outcome, error)

// Kind binds an inference_sequence tag to its invoke function.
type Kind struct {
	Tag    inference.Sequence
	Invoke InvokeFunc
}

// Registry is the immutable tag → Kind table the scheduler consults at
// dispatch time (§9: "an immutable SequenceKind table maps tag → step
// pipeline").
type Registry struct {
	kinds map[inference.Sequence]Kind
}

// NewRegistry builds a Registry from the supplied Kinds. Duplicate tags are a
// fatal construction error.
func NewRegistry(kinds ...Kind) (*Registry, error) {
	r := &Registry{kinds: make(map[inference.Sequence]Kind, len(kinds))}
	for _, k := range kinds {
		if _, exists := r.kinds[k.Tag]; exists {
			return nil, fmt.Errorf("dispatch: duplicate sequence kind %q", k.Tag)
		}
		r.kinds[k.Tag] = k
	}
	return r, nil
}

// ErrUnknownSequenceKind is returned by Lookup when no Kind is registered for
// a tag (§7 error taxonomy, item 1: "unknown sequence kind").
var ErrUnknownSequenceKind = fmt.Errorf("dispatch: unknown sequence kind")

// Lookup resolves an inference_sequence tag to its registered Kind.
func (r *Registry) Lookup(tag inference.Sequence) (Kind, error) {
	k, ok := r.kinds[tag]
	if !ok {
		return Kind{}, fmt.Errorf("%w: %q", ErrUnknownSequenceKind, tag)
	}
	return k, nil
}
