// Package engine defines the durable-execution abstractions used to run a
// single inference dispatch (one sequence-kind invocation for one flow
// index) on a pluggable backend. It provides a narrow interface so adapters
// (Temporal, an in-process engine, or a custom backend) can be swapped
// without touching the orchestrator's scheduling loop.
//
// The orchestrator's cycle loop (§4.7) remains single-threaded and
// authoritative; an Engine only changes how one dispatch's invoke call is
// executed, so that it can durably replay after a process crash instead of
// being re-run from scratch. Running without an Engine configured is the
// default and exercises the sequence kinds directly, in-process.
package engine

import (
	"context"
	"time"

	"github.com/flowstate/orchestrator/internal/telemetry"
)

type (
	// Engine abstracts workflow registration and execution so adapters
	// (Temporal, in-memory, or custom) can be swapped without the
	// orchestrator depending on a specific backend.
	Engine interface {
		// RegisterWorkflow registers a workflow definition with the engine.
		// Called once during orchestrator construction, before any dispatch
		// is durably executed. Returns an error if the name is already
		// registered or registration otherwise fails.
		RegisterWorkflow(ctx context.Context, def WorkflowDefinition) error

		// RegisterActivity registers an activity definition with the
		// engine. Activities are the short-lived, side-effecting unit of
		// work a workflow schedules — here, a single sequence-kind invoke
		// call. Must be called before any workflow using it starts.
		RegisterActivity(ctx context.Context, def ActivityDefinition) error

		// StartWorkflow starts a new workflow execution and returns a
		// handle for waiting on or signaling it. req.ID must be unique for
		// the engine instance.
		StartWorkflow(ctx context.Context, req WorkflowStartRequest) (WorkflowHandle, error)
	}

	// WorkflowDefinition binds a workflow handler to a logical name and
	// default task queue.
	WorkflowDefinition struct {
		Name      string
		TaskQueue string
		Handler   WorkflowFunc
	}

	// WorkflowFunc is a durable workflow entry point. It must be
	// deterministic: given the same input and the same sequence of
	// activity results, it must produce the same sequence of activity
	// calls, so that an engine that supports replay can resume it after a
	// crash without skipping or repeating side effects.
	WorkflowFunc func(ctx WorkflowContext, input any) (any, error)

	// WorkflowContext exposes engine operations to a running workflow.
	// Implementations must ensure any replay is deterministic: methods
	// that touch the engine (ExecuteActivity, SignalChannel, Now) must
	// replay to the same result given the same history.
	WorkflowContext interface {
		// Context returns a Go context scoped to the workflow execution,
		// for cancellation propagation into non-engine calls.
		Context() context.Context
		// WorkflowID returns the caller-supplied identifier for this
		// execution.
		WorkflowID() string
		// RunID returns the engine-assigned run identifier.
		RunID() string

		// ExecuteActivity schedules an activity and blocks until it
		// completes, decoding its result into result.
		ExecuteActivity(ctx context.Context, req ActivityRequest, result any) error
		// ExecuteActivityAsync schedules an activity without blocking,
		// returning a Future that resolves once it completes.
		ExecuteActivityAsync(ctx context.Context, req ActivityRequest) (Future, error)

		// SignalChannel returns the channel workflow code can block on or
		// poll to react to an externally delivered signal (for example a
		// user's breakpoint-clear or resume action, §4.9).
		SignalChannel(name string) SignalChannel

		Logger() telemetry.Logger
		Metrics() telemetry.Metrics
		Tracer() telemetry.Tracer

		// Now returns the current time in a replay-safe manner.
		Now() time.Time
	}

	// Future represents a pending activity result.
	Future interface {
		// Get blocks until the activity completes and decodes its result
		// into result. Safe to call more than once; later calls return the
		// same result/error.
		Get(ctx context.Context, result any) error
		// IsReady reports whether Get will return without blocking.
		IsReady() bool
	}

	// ActivityDefinition registers an activity handler.
	ActivityDefinition struct {
		Name    string
		Handler ActivityFunc
		Options ActivityOptions
	}

	// ActivityFunc performs one unit of non-deterministic work — here, one
	// sequence kind's Invoke call. Unlike a WorkflowFunc it may perform
	// arbitrary I/O.
	ActivityFunc func(ctx context.Context, input any) (any, error)

	// ActivityOptions configures retry/timeout behavior for an activity.
	ActivityOptions struct {
		// Queue overrides the default activity queue; empty inherits the
		// workflow's task queue.
		Queue       string
		RetryPolicy RetryPolicy
		// Timeout bounds the total activity execution time, including
		// retries. Zero means no timeout.
		Timeout time.Duration
	}

	// WorkflowStartRequest describes how to launch a workflow execution.
	WorkflowStartRequest struct {
		// ID must be unique within the engine scope; the orchestrator
		// generates a fresh UUID for each Invoke.
		ID          string
		Workflow    string
		TaskQueue   string
		Input       any
		RetryPolicy RetryPolicy
	}

	// ActivityRequest contains what's needed to schedule an activity from
	// a workflow.
	ActivityRequest struct {
		Name        string
		Input       any
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowHandle lets a caller wait on, signal, or cancel a running
	// workflow. Returned by Engine.StartWorkflow.
	WorkflowHandle interface {
		Wait(ctx context.Context, result any) error
		Signal(ctx context.Context, name string, payload any) error
		Cancel(ctx context.Context) error
	}

	// RetryPolicy defines retry semantics shared by workflows and
	// activities. Zero-valued fields mean the engine uses its defaults.
	RetryPolicy struct {
		MaxAttempts        int
		InitialInterval    time.Duration
		BackoffCoefficient float64
	}

	// SignalChannel exposes signal delivery in an engine-agnostic way.
	SignalChannel interface {
		Receive(ctx context.Context, dest any) error
		ReceiveAsync(dest any) bool
	}
)
