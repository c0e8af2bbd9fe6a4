// Package events defines the orchestrator's observability contract: the
// fixed set of lifecycle and log tags it emits (§4.9) and the in-process
// bus that fans them out to registered sinks.
package events

import "time"

// Tag identifies the kind of event carried by an Event. The core recognizes
// exactly this set; sinks and remote proxies should treat unknown tags (from
// a newer build) as opaque and forward them unchanged rather than rejecting
// them.
type Tag string

const (
	RunStarted         Tag = "run:started"
	CycleStarted       Tag = "cycle:started"
	InferenceStarted   Tag = "inference:started"
	InferenceCompleted Tag = "inference:completed"
	InferenceFailed    Tag = "inference:failed"
	ExecutionProgress  Tag = "execution:progress"
	BreakpointHit      Tag = "breakpoint:hit"
	RunCompleted       Tag = "run:completed"
	RunFailed          Tag = "run:failed"
	LogEntry           Tag = "log:entry"
)

// lifecycle reports whether a tag must never be dropped under back-pressure.
// Everything except log:entry is a lifecycle event (§5).
func (t Tag) lifecycle() bool { return t != LogEntry }

// Event is a single observability record. Payload holds the tag-specific
// fields documented in §4.9 (e.g. run:started carries "run_id", "plan_id",
// "at"); the core never interprets Payload itself, only sinks do.
type Event struct {
	Tag       Tag
	Payload   map[string]any
	Timestamp time.Time
}

// New constructs an Event stamped with the given time. Callers pass the
// orchestrator's own clock so event timestamps stay consistent with
// checkpoint and blackboard timestamps in tests.
func New(tag Tag, at time.Time, payload map[string]any) Event {
	return Event{Tag: tag, Payload: payload, Timestamp: at}
}
