package main

import (
	"context"

	"github.com/flowstate/orchestrator/core/events"
	"github.com/flowstate/orchestrator/internal/telemetry"
)

// newStderrBus wires a single subscriber that logs every lifecycle event
// through log (structured, not fmt.Println), matching §4.9's event
// contract. The CLI's HTTP/SSE surface (internal/httpapi) registers its own
// subscriber on the same kind of bus when running as a service.
func newStderrBus(log telemetry.Logger) events.Bus {
	bus := events.NewBus()
	_, _ = bus.Register(events.SubscriberFunc(func(ctx context.Context, event events.Event) error {
		log.Info(ctx, "orchestrator event", "tag", event.Tag, "payload", event.Payload)
		return nil
	}))
	return bus
}

// newEmitter wraps bus in a Sink, decoupling event production (the
// orchestrator's main loop) from delivery (§5).
func newEmitter(bus events.Bus) *events.Sink {
	return events.NewSink(bus, 0)
}
