package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/flowstate/orchestrator/core/events"
)

// keepaliveInterval is how often stream writes a ": keepalive" comment line
// to keep an idle SSE connection (and any intermediate proxy) from timing
// out (§6.3).
const keepaliveInterval = 15 * time.Second

// stream implements `GET .../stream`: an SSE feed of every event the run's
// Bus publishes, framed as `data: <json>\n\n` per §6.3, preceded by a
// synthetic "connected" event carrying a full state snapshot so a client
// that just opened the connection does not need a separate status fetch.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	frames := make(chan []byte, 64)
	sub, err := run.Bus.Register(events.SubscriberFunc(func(ctx context.Context, event events.Event) error {
		payload, err := json.Marshal(event)
		if err != nil {
			return nil
		}
		select {
		case frames <- payload:
		default:
			// Slow reader: drop rather than block the publishing goroutine
			// (the orchestrator's own Sink, per its back-pressure policy).
		}
		return nil
	}))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer sub.Close()

	if err := writeSSEEvent(w, "connected", connectedSnapshot(run)); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case payload := <-frames:
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	return err
}

// connectedSnapshot builds the full state snapshot the initial "connected"
// event carries, so a freshly opened stream does not need a separate status
// round trip.
func connectedSnapshot(run *Run) map[string]any {
	result, err, done := run.Finished()
	body := map[string]any{
		"run_id":      run.ID,
		"status":      runStatus(result, err, done),
		"breakpoints": run.Orch.Breakpoints(),
		"cycles":      run.Orch.Tracker().CycleCount(),
	}
	statuses := make(map[string]any, len(run.Inferences.All()))
	board := run.Orch.Board()
	for _, entry := range run.Inferences.All() {
		flowIndex := entry.FlowInfo.FlowIndex.String()
		statuses[flowIndex] = board.ItemStatus(flowIndex)
	}
	body["node_statuses"] = statuses
	return body
}
