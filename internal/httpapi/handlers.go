package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/flowstate/orchestrator/core/blackboard"
	"github.com/flowstate/orchestrator/core/inference"
	"github.com/flowstate/orchestrator/core/orchestrator"
	"github.com/flowstate/orchestrator/core/tensor"
	"github.com/flowstate/orchestrator/internal/repofile"
	"github.com/flowstate/orchestrator/internal/telemetry"
)

// Handler implements the §6.3 minimum endpoint set over a Registry.
type Handler struct {
	registry *Registry
	log      telemetry.Logger
}

// NewHandler wraps registry in an http.Handler instrumented with otelhttp,
// matching every other network-facing entry point's tracing wiring
// (SPEC_FULL.md §A.2).
func NewHandler(registry *Registry, log telemetry.Logger) http.Handler {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	h := &Handler{registry: registry, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/runs/{run_id}", h.getRun)
	mux.HandleFunc("GET /api/runs/{run_id}/node-statuses", h.nodeStatuses)
	mux.HandleFunc("GET /api/runs/{run_id}/stream", h.stream)
	mux.HandleFunc("POST /api/runs/{run_id}/continue", h.continueRun)
	mux.HandleFunc("POST /api/runs/{run_id}/pause", h.pauseRun)
	mux.HandleFunc("POST /api/runs/{run_id}/stop", h.stopRun)
	mux.HandleFunc("POST /api/runs/{run_id}/step", h.stepRun)
	mux.HandleFunc("POST /api/runs/{run_id}/breakpoints", h.setBreakpoint)
	mux.HandleFunc("DELETE /api/runs/{run_id}/breakpoints/{flow_index}", h.clearBreakpoint)
	mux.HandleFunc("DELETE /api/runs/{run_id}/breakpoints", h.clearAllBreakpoints)
	mux.HandleFunc("GET /api/runs/{run_id}/reference/{concept_name}", h.reference)
	mux.HandleFunc("GET /api/runs/{run_id}/references", h.references)
	mux.HandleFunc("GET /api/runs/{run_id}/concept-statuses", h.conceptStatuses)
	mux.HandleFunc("POST /api/runs/{run_id}/override/{concept_name}", h.override)
	mux.HandleFunc("GET /api/runs/{run_id}/logs", h.logs)

	return otelhttp.NewHandler(mux, "orchestrator.httpapi")
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) (*Run, bool) {
	id := r.PathValue("run_id")
	run, ok := h.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("run %q not found", id))
		return nil, false
	}
	return run, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// runStatus classifies a run's current lifecycle state for the status
// endpoint (§6.3's "status + progress + breakpoint set").
func runStatus(result *orchestrator.Result, err error, done bool) string {
	if !done {
		return "running"
	}
	if err != nil {
		return "failed"
	}
	switch {
	case result.PausedFor != nil:
		return "paused"
	case result.Stopped:
		return "stopped"
	case result.Deadlocked:
		return "deadlocked"
	default:
		return "completed"
	}
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}
	result, err, done := run.Finished()
	body := map[string]any{
		"run_id":      run.ID,
		"status":      runStatus(result, err, done),
		"breakpoints": run.Orch.Breakpoints(),
		"cycles":      run.Orch.Tracker().CycleCount(),
	}
	if done && result != nil {
		body["stuck_flow_indices"] = result.StuckFlowIndices
		if result.PausedFor != nil {
			body["paused_for"] = result.PausedFor
			body["paused_flow_index"] = result.PausedFlowIndex
		}
	}
	if err != nil {
		body["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) nodeStatuses(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}
	board := run.Orch.Board()
	statuses := make(map[string]blackboard.ItemStatus, len(run.Inferences.All()))
	for _, entry := range run.Inferences.All() {
		flowIndex := entry.FlowInfo.FlowIndex.String()
		statuses[flowIndex] = board.ItemStatus(flowIndex)
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (h *Handler) conceptStatuses(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}
	board := run.Orch.Board()
	statuses := make(map[string]blackboard.ConceptStatus, len(run.Concepts.All()))
	for _, c := range run.Concepts.All() {
		statuses[c.Name] = board.ConceptStatus(c.Name)
	}
	writeJSON(w, http.StatusOK, statuses)
}

// referenceJSON renders a tensor.Reference as the plain JSON shape a client
// can read without importing the core module.
func referenceJSON(ref tensor.Reference) map[string]any {
	data := make([]any, len(ref.Data))
	for i, cell := range ref.Data {
		data[i] = cell.Any()
	}
	return map[string]any{"axes": ref.Axes, "shape": ref.Shape, "data": data}
}

func (h *Handler) reference(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}
	name := r.PathValue("concept_name")
	c := run.Concepts.Get(name)
	if c == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("concept %q not found", name))
		return
	}
	writeJSON(w, http.StatusOK, referenceJSON(c.Reference))
}

func (h *Handler) references(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}
	out := make(map[string]any, len(run.Concepts.All()))
	for _, c := range run.Concepts.All() {
		out[c.Name] = referenceJSON(c.Reference)
	}
	writeJSON(w, http.StatusOK, out)
}

type overrideRequest struct {
	NewValue        any  `json:"new_value"`
	RerunDependents bool `json:"rerun_dependents"`
}

// override implements `POST .../override/{concept_name}`: writes a new
// Reference directly to the Blackboard/ConceptRepo the way a completed
// dispatch would, then optionally resets every transitive dependent back to
// pending so the next cycle re-derives them (§4.7.5's quantifying reset
// protocol, generalized to an operator-driven edit instead of a loop
// iteration boundary). Meaningful only while the run is paused or stopped —
// mutating concept state while the scheduling loop is actively dispatching
// is the same hazard a live debugger accepts when editing a suspended
// process's memory.
func (h *Handler) override(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}
	name := r.PathValue("concept_name")
	c := run.Concepts.Get(name)
	if c == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("concept %q not found", name))
		return
	}
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	flat, err := repofile.FlattenLiteral(req.NewValue)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	c.Reference = tensor.Wrap(flat, c.Reference.Axes)

	board := run.Orch.Board()
	board.SetConceptComplete(name)
	if req.RerunDependents {
		resetDependents(run.Inferences.All(), board, name)
	}
	writeJSON(w, http.StatusOK, referenceJSON(c.Reference))
}

// resetDependents walks every inference that consumes changed (as a value,
// context, or function concept), transitioning its produced concept and
// waitlist item back to pending, and recurses onto each newly-pending
// concept so a chain of downstream inferences re-derives in full.
func resetDependents(entries []*inference.Entry, board *blackboard.Blackboard, changed string) {
	seen := map[string]bool{changed: true}
	queue := []string{changed}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, entry := range entries {
			if !dependsOn(entry, name) {
				continue
			}
			target := entry.ConceptToInfer.Name
			flowIndex := entry.FlowInfo.FlowIndex.String()
			board.SetConceptPending(target)
			board.SetItemStatus(flowIndex, blackboard.ItemPending)
			if !seen[target] {
				seen[target] = true
				queue = append(queue, target)
			}
		}
	}
}

func dependsOn(entry *inference.Entry, name string) bool {
	if entry.FunctionConcept != nil && entry.FunctionConcept.Name == name {
		return true
	}
	for _, v := range entry.ValueConcepts {
		if v.Name == name {
			return true
		}
	}
	for _, c := range entry.ContextConcepts {
		if c.Name == name {
			return true
		}
	}
	return false
}

func (h *Handler) setBreakpoint(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}
	var req struct {
		FlowIndex string `json:"flow_index"`
		Enabled   bool   `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Enabled {
		run.Orch.SetBreakpoint(req.FlowIndex)
	} else {
		run.Orch.ClearBreakpoint(req.FlowIndex)
	}
	writeJSON(w, http.StatusOK, map[string]any{"breakpoints": run.Orch.Breakpoints()})
}

func (h *Handler) clearBreakpoint(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}
	run.Orch.ClearBreakpoint(r.PathValue("flow_index"))
	writeJSON(w, http.StatusOK, map[string]any{"breakpoints": run.Orch.Breakpoints()})
}

func (h *Handler) clearAllBreakpoints(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}
	run.Orch.ClearAllBreakpoints()
	writeJSON(w, http.StatusOK, map[string]any{"breakpoints": run.Orch.Breakpoints()})
}

// pauseRun and stopRun both cancel the run's context: core/orchestrator
// exposes a single stop primitive (a per-cycle ctx.Err() check), so "pause"
// and "stop" differ only in client intent, not mechanism. A paused run is
// resumed with /continue exactly like a stopped one.
func (h *Handler) pauseRun(w http.ResponseWriter, r *http.Request) {
	h.stopRun(w, r)
}

func (h *Handler) stopRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}
	run.Stop()
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID, "status": "stopping"})
}

func (h *Handler) continueRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}
	// The relaunched run must outlive this single HTTP request, so it is
	// started against context.Background() rather than r.Context().
	next, err := h.registry.Continue(context.Background(), run.ID, run.startCfg.MaxCycles)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": next.ID, "status": "running"})
}

// stepRun continues the run for exactly one more cycle by capping the
// relaunched Orchestrator's MaxCycles to 1; the cycle-budget-exhaustion path
// already in core/orchestrator's Run loop does the rest.
func (h *Handler) stepRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}
	next, err := h.registry.Continue(context.Background(), run.ID, 1)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	result, err := next.Wait(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": next.ID, "status": runStatus(result, nil, true)})
}

func (h *Handler) logs(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	flowIndex := r.URL.Query().Get("flow_index")

	history := run.Orch.Tracker().Snapshot().ExecutionHistory
	var filtered []any
	for i := len(history) - 1; i >= 0 && len(filtered) < limit; i-- {
		a := history[i]
		if flowIndex != "" && a.FlowIndex != flowIndex {
			continue
		}
		filtered = append(filtered, a)
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": filtered})
}
