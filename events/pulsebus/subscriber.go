package pulsebus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/flowstate/orchestrator/core/events"
)

type (
	// Options configures the Pulse-backed subscriber.
	Options struct {
		// Client publishes envelopes onto Pulse streams. Required.
		Client Client
		// StreamID derives the target stream name from a run ID. Defaults to
		// "run/<run_id>".
		StreamID func(runID string) string
		// MarshalEnvelope allows overriding envelope serialization (primarily for tests).
		MarshalEnvelope func(Envelope) ([]byte, error)
	}

	// Envelope wraps an orchestrator event for transmission over a Pulse
	// stream. Cycle and FlowIndex are populated when the originating event
	// payload carries them, letting consumers correlate events without
	// decoding the full payload.
	Envelope struct {
		Type      string         `json:"type"`
		RunID     string         `json:"run_id"`
		Cycle     int            `json:"cycle,omitempty"`
		FlowIndex string         `json:"flow_index,omitempty"`
		Timestamp time.Time      `json:"timestamp"`
		Payload   map[string]any `json:"payload,omitempty"`
	}

	// Subscriber is an events.Subscriber that relays every event verbatim to
	// a Pulse stream named after the run that produced it. Because most
	// event tags (cycle:started, inference:*, ...) do not themselves carry a
	// run ID (§4.9), the subscriber remembers the run ID observed on the
	// most recent run:started event and uses it to route subsequent events
	// until the run terminates.
	Subscriber struct {
		client          Client
		streamID        func(runID string) string
		marshalEnvelope func(Envelope) ([]byte, error)

		mu         sync.Mutex
		currentRun string
	}
)

// NewSubscriber constructs a Subscriber that forwards events to Pulse
// streams. opts.Client is required.
func NewSubscriber(opts Options) (*Subscriber, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("pulsebus: client is required")
	}
	streamID := opts.StreamID
	if streamID == nil {
		streamID = defaultStreamID
	}
	marshal := opts.MarshalEnvelope
	if marshal == nil {
		marshal = defaultMarshal
	}
	return &Subscriber{client: opts.Client, streamID: streamID, marshalEnvelope: marshal}, nil
}

// HandleEvent implements events.Subscriber. It tracks the active run ID from
// run:started, builds an Envelope, and appends it to that run's stream.
func (s *Subscriber) HandleEvent(ctx context.Context, event events.Event) error {
	runID := s.runIDFor(event)

	env := Envelope{
		Type:      string(event.Tag),
		RunID:     runID,
		Timestamp: event.Timestamp,
		Payload:   event.Payload,
	}
	if c, ok := intFromPayload(event.Payload, "cycle"); ok {
		env.Cycle = c
	}
	if fi, ok := event.Payload["flow_index"].(string); ok {
		env.FlowIndex = fi
	}

	payload, err := s.marshalEnvelope(env)
	if err != nil {
		return fmt.Errorf("pulsebus: marshal envelope: %w", err)
	}
	stream, err := s.client.Stream(s.streamID(runID))
	if err != nil {
		return err
	}
	_, err = stream.Add(ctx, env.Type, payload)
	return err
}

// runIDFor resolves the run ID to route event under, updating (and clearing)
// the remembered current run as lifecycle boundaries are crossed.
func (s *Subscriber) runIDFor(event events.Event) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.Tag == events.RunStarted {
		if runID, ok := event.Payload["run_id"].(string); ok {
			s.currentRun = runID
		}
	}
	runID := s.currentRun
	if runID == "" {
		if v, ok := event.Payload["run_id"].(string); ok {
			runID = v
		}
	}
	if event.Tag == events.RunCompleted || event.Tag == events.RunFailed {
		s.currentRun = ""
	}
	return runID
}

func intFromPayload(payload map[string]any, key string) (int, bool) {
	switch v := payload[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func defaultStreamID(runID string) string { return fmt.Sprintf("run/%s", runID) }

func defaultMarshal(env Envelope) ([]byte, error) { return json.Marshal(env) }
