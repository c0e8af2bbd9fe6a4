package orchestrator_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowstate/orchestrator/core/checkpoint"
	"github.com/flowstate/orchestrator/checkpoint/inmemstore"
	"github.com/flowstate/orchestrator/core/concept"
	"github.com/flowstate/orchestrator/core/dispatch"
	"github.com/flowstate/orchestrator/core/engine/inmem"
	"github.com/flowstate/orchestrator/core/inference"
	"github.com/flowstate/orchestrator/core/orchestrator"
	"github.com/flowstate/orchestrator/core/sequence"
	"github.com/flowstate/orchestrator/core/tensor"
)

// fakeBody echoes back the action name and params it was invoked with, and
// lets individual tests script per-action failures for the retry scenario.
type fakeBody struct {
	calls    map[string]int
	failOnce map[string]bool
}

func newFakeBody() *fakeBody {
	return &fakeBody{calls: make(map[string]int), failOnce: make(map[string]bool)}
}

func (b *fakeBody) Invoke(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
	b.calls[action]++
	if b.failOnce[action] && b.calls[action] == 1 {
		return nil, fmt.Errorf("transient failure in %s", action)
	}
	return map[string]any{"action": action}, nil
}

// failingSimple wraps sequence.Simple so the first invocation of a given
// flow index reports pending_retry instead of aborting the run outright
// (scenario D: retry then success).
func failingSimple(ctx context.Context, req dispatch.Request) (dispatch.Outcome, error) {
	action := req.Entry.FunctionConcept.Name
	_, err := req.Body.Invoke(ctx, action, nil)
	if err != nil {
		return dispatch.Outcome{Status: dispatch.StatusPendingRetry, Err: err}, nil
	}
	produced := tensor.Wrap([]any{"ok"}, nil)
	return dispatch.Outcome{Status: dispatch.StatusCompleted, ProducedReference: &produced}, nil
}

func newRegistry(t *testing.T, extra ...dispatch.Kind) *dispatch.Registry {
	t.Helper()
	kinds := []dispatch.Kind{
		{Tag: inference.SequenceSimple, Invoke: sequence.Simple},
		{Tag: inference.SequenceTiming, Invoke: sequence.Timing},
		{Tag: inference.SequenceQuantifying, Invoke: sequence.Quantifying},
	}
	kinds = append(kinds, extra...)
	reg, err := dispatch.NewRegistry(kinds...)
	require.NoError(t, err)
	return reg
}

func groundConcept(name string, value any) *concept.Entry {
	return &concept.Entry{
		Name:            name,
		Type:            concept.TypeObject,
		IsGroundConcept: true,
		Reference:       tensor.Wrap([]any{value}, nil),
	}
}

func functionConcept(name string) *concept.Entry {
	return &concept.Entry{Name: name, Type: concept.TypeFunction}
}

// Scenario A: a two-step sequential pipeline completes in two cycles.
func TestSequentialPipelineCompletesAcrossTwoCycles(t *testing.T) {
	fnA := functionConcept("step_a_fn")
	fnB := functionConcept("step_b_fn")
	input := groundConcept("input", "seed")
	stepA := &concept.Entry{Name: "step_a", Type: concept.TypeObject, IsFinalConcept: true}
	stepB := &concept.Entry{Name: "step_b", Type: concept.TypeObject, IsFinalConcept: true}

	concepts, err := concept.NewRepo([]*concept.Entry{fnA, fnB, input, stepA, stepB})
	require.NoError(t, err)

	entries, err := inference.NewRepo([]inference.Raw{
		{ID: "a", Sequence: inference.SequenceSimple, ConceptToInfer: "step_a", FunctionConcept: "step_a_fn", ValueConcepts: []string{"input"}, FlowIndex: "1"},
		{ID: "b", Sequence: inference.SequenceSimple, ConceptToInfer: "step_b", FunctionConcept: "step_b_fn", ValueConcepts: []string{"step_a"}, FlowIndex: "2"},
	}, concepts)
	require.NoError(t, err)

	body := newFakeBody()
	o, err := orchestrator.New(orchestrator.Config{
		Concepts:   concepts,
		Inferences: entries,
		Registry:   newRegistry(t),
		Body:       body,
	})
	require.NoError(t, err)

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.False(t, result.Deadlocked)
	require.Empty(t, result.StuckFlowIndices)
	require.Equal(t, 2, result.Cycles)
	require.Equal(t, 1, body.calls["step_a_fn"])
	require.Equal(t, 1, body.calls["step_b_fn"])
}

// Scenario B: a timing item resolves purely from the gate concept it reads,
// and never mutates any concept, while an unrelated simple step dispatches
// normally alongside it.
func TestTimingItemResolvesWithoutTouchingAnyConcept(t *testing.T) {
	gate := groundConcept("ready_flag", true)
	fn := functionConcept("gated_fn")
	input := groundConcept("input", "seed")
	gated := &concept.Entry{Name: "gated_result", Type: concept.TypeObject, IsFinalConcept: true}
	timingOut := &concept.Entry{Name: "gate_item", Type: concept.TypeTiming}

	concepts, err := concept.NewRepo([]*concept.Entry{gate, fn, input, gated, timingOut})
	require.NoError(t, err)

	entries, err := inference.NewRepo([]inference.Raw{
		{ID: "gate", Sequence: inference.SequenceTiming, ConceptToInfer: "gate_item", ValueConcepts: []string{"ready_flag"}, FlowIndex: "1"},
		{ID: "step", Sequence: inference.SequenceSimple, ConceptToInfer: "gated_result", FunctionConcept: "gated_fn", ValueConcepts: []string{"input"}, FlowIndex: "2"},
	}, concepts)
	require.NoError(t, err)

	body := newFakeBody()
	o, err := orchestrator.New(orchestrator.Config{
		Concepts:   concepts,
		Inferences: entries,
		Registry:   newRegistry(t),
		Body:       body,
	})
	require.NoError(t, err)

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.False(t, result.Deadlocked)
	require.Equal(t, 1, body.calls["gated_fn"])
	require.NotEqual(t, "complete", string(o.Board().ConceptStatus("gate_item")))
}

// Scenario C: a quantifying loop over three base elements requires three
// non-completing dispatches plus one completing dispatch (four total).
func TestQuantifyingLoopOverThreeElementsTakesFourDispatches(t *testing.T) {
	toLoop := groundConcept("items", nil)
	toLoop.Reference = tensor.Wrap([]any{"a", "b", "c"}, []string{"base"})
	perItem := &concept.Entry{Name: "per_item", Type: concept.TypeQuantifying, IsFinalConcept: true}

	concepts, err := concept.NewRepo([]*concept.Entry{toLoop, perItem})
	require.NoError(t, err)

	entries, err := inference.NewRepo([]inference.Raw{
		{ID: "loop", Sequence: inference.SequenceQuantifying, ConceptToInfer: "per_item", ValueConcepts: []string{"items"}, FlowIndex: "1", StartWithoutFunction: true},
	}, concepts)
	require.NoError(t, err)

	o, err := orchestrator.New(orchestrator.Config{
		Concepts:   concepts,
		Inferences: entries,
		Registry:   newRegistry(t),
		Body:       newFakeBody(),
		MaxCycles:  10,
	})
	require.NoError(t, err)

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.False(t, result.Deadlocked)
	require.Equal(t, 4, result.Cycles)
}

// Scenario D: a step that fails transiently once, then succeeds, reports
// retry_count == 1, successful_executions == 1, total_executions == 2.
func TestRetryThenSuccessUpdatesTrackerCounters(t *testing.T) {
	fn := functionConcept("flaky_fn")
	input := groundConcept("input", "seed")
	out := &concept.Entry{Name: "flaky_out", Type: concept.TypeObject, IsFinalConcept: true}

	concepts, err := concept.NewRepo([]*concept.Entry{fn, input, out})
	require.NoError(t, err)

	entries, err := inference.NewRepo([]inference.Raw{
		{ID: "flaky", Sequence: "flaky", ConceptToInfer: "flaky_out", FunctionConcept: "flaky_fn", ValueConcepts: []string{"input"}, FlowIndex: "1"},
	}, concepts)
	require.NoError(t, err)

	body := newFakeBody()
	body.failOnce["flaky_fn"] = true

	o, err := orchestrator.New(orchestrator.Config{
		Concepts:   concepts,
		Inferences: entries,
		Registry:   newRegistry(t, dispatch.Kind{Tag: "flaky", Invoke: failingSimple}),
		Body:       body,
	})
	require.NoError(t, err)

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.False(t, result.Deadlocked)

	snap := o.Tracker().Snapshot()
	require.Equal(t, 1, snap.RetryCount)
	require.Equal(t, 1, snap.SuccessfulExecutions)
	require.Equal(t, 2, snap.TotalExecutions)
}

// Scenario E: two items whose value concepts depend on each other can never
// become ready; the loop reports deadlock instead of spinning to the cycle
// cap.
func TestMutualDependencyDeadlocks(t *testing.T) {
	fnX := functionConcept("x_fn")
	fnY := functionConcept("y_fn")
	x := &concept.Entry{Name: "x", Type: concept.TypeObject}
	y := &concept.Entry{Name: "y", Type: concept.TypeObject}

	concepts, err := concept.NewRepo([]*concept.Entry{fnX, fnY, x, y})
	require.NoError(t, err)

	entries, err := inference.NewRepo([]inference.Raw{
		{ID: "x", Sequence: inference.SequenceSimple, ConceptToInfer: "x", FunctionConcept: "x_fn", ValueConcepts: []string{"y"}, FlowIndex: "1"},
		{ID: "y", Sequence: inference.SequenceSimple, ConceptToInfer: "y", FunctionConcept: "y_fn", ValueConcepts: []string{"x"}, FlowIndex: "2"},
	}, concepts)
	require.NoError(t, err)

	o, err := orchestrator.New(orchestrator.Config{
		Concepts:   concepts,
		Inferences: entries,
		Registry:   newRegistry(t),
		Body:       newFakeBody(),
		MaxCycles:  5,
	})
	require.NoError(t, err)

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Deadlocked)
	require.ElementsMatch(t, []string{"1", "2"}, result.StuckFlowIndices)
	require.Equal(t, 1, result.Cycles)
}

// Boundary case (§8.3): an empty waitlist completes immediately with no
// cycles spent.
func TestEmptyWaitlistCompletesImmediately(t *testing.T) {
	concepts, err := concept.NewRepo(nil)
	require.NoError(t, err)
	entries, err := inference.NewRepo(nil, concepts)
	require.NoError(t, err)

	o, err := orchestrator.New(orchestrator.Config{
		Concepts:   concepts,
		Inferences: entries,
		Registry:   newRegistry(t),
		Body:       newFakeBody(),
	})
	require.NoError(t, err)

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.False(t, result.Deadlocked)
	require.Equal(t, 0, result.Cycles)
}

// Boundary case (§8.3): a run consisting solely of ground concepts, with no
// inference entries referencing them, needs no dispatch at all.
func TestAllGroundConceptsOnlyRequiresNoDispatch(t *testing.T) {
	concepts, err := concept.NewRepo([]*concept.Entry{groundConcept("a", 1), groundConcept("b", 2)})
	require.NoError(t, err)
	entries, err := inference.NewRepo(nil, concepts)
	require.NoError(t, err)

	o, err := orchestrator.New(orchestrator.Config{
		Concepts:   concepts,
		Inferences: entries,
		Registry:   newRegistry(t),
		Body:       newFakeBody(),
	})
	require.NoError(t, err)

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.False(t, result.Deadlocked)
}

// Boundary case (§8.3): max_cycles=1 against a two-step pipeline stops after
// one cycle with partial results, not an error.
func TestMaxCyclesOneReturnsPartialResults(t *testing.T) {
	fnA := functionConcept("step_a_fn")
	fnB := functionConcept("step_b_fn")
	input := groundConcept("input", "seed")
	stepA := &concept.Entry{Name: "step_a", Type: concept.TypeObject}
	stepB := &concept.Entry{Name: "step_b", Type: concept.TypeObject, IsFinalConcept: true}

	concepts, err := concept.NewRepo([]*concept.Entry{fnA, fnB, input, stepA, stepB})
	require.NoError(t, err)

	entries, err := inference.NewRepo([]inference.Raw{
		{ID: "a", Sequence: inference.SequenceSimple, ConceptToInfer: "step_a", FunctionConcept: "step_a_fn", ValueConcepts: []string{"input"}, FlowIndex: "1"},
		{ID: "b", Sequence: inference.SequenceSimple, ConceptToInfer: "step_b", FunctionConcept: "step_b_fn", ValueConcepts: []string{"step_a"}, FlowIndex: "2"},
	}, concepts)
	require.NoError(t, err)

	o, err := orchestrator.New(orchestrator.Config{
		Concepts:   concepts,
		Inferences: entries,
		Registry:   newRegistry(t),
		Body:       newFakeBody(),
		MaxCycles:  1,
	})
	require.NoError(t, err)

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.False(t, result.Deadlocked)
	require.Equal(t, 1, result.Cycles)
	require.Contains(t, result.StuckFlowIndices, "2")
}

// Unknown sequence kinds are rejected at construction, never at dispatch
// time (§7 error taxonomy item 1).
func TestNewRejectsUnknownSequenceKind(t *testing.T) {
	input := groundConcept("input", "seed")
	out := &concept.Entry{Name: "out", Type: concept.TypeObject}
	concepts, err := concept.NewRepo([]*concept.Entry{input, out})
	require.NoError(t, err)

	entries, err := inference.NewRepo([]inference.Raw{
		{ID: "bad", Sequence: "not_a_real_kind", ConceptToInfer: "out", ValueConcepts: []string{"input"}, FlowIndex: "1"},
	}, concepts)
	require.NoError(t, err)

	_, err = orchestrator.New(orchestrator.Config{
		Concepts:   concepts,
		Inferences: entries,
		Registry:   newRegistry(t),
		Body:       newFakeBody(),
	})
	require.Error(t, err)
}

func TestMain_usesDeterministicClockForEventTimestamps(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	input := groundConcept("input", "seed")
	fn := functionConcept("only_fn")
	out := &concept.Entry{Name: "out", Type: concept.TypeObject, IsFinalConcept: true}
	concepts, err := concept.NewRepo([]*concept.Entry{input, fn, out})
	require.NoError(t, err)

	entries, err := inference.NewRepo([]inference.Raw{
		{ID: "only", Sequence: inference.SequenceSimple, ConceptToInfer: "out", FunctionConcept: "only_fn", ValueConcepts: []string{"input"}, FlowIndex: "1"},
	}, concepts)
	require.NoError(t, err)

	o, err := orchestrator.New(orchestrator.Config{
		Concepts:   concepts,
		Inferences: entries,
		Registry:   newRegistry(t),
		Body:       newFakeBody(),
		Clock:      func() time.Time { return fixed },
	})
	require.NoError(t, err)
	_, err = o.Run(context.Background())
	require.NoError(t, err)
}

// Scenario F: checkpoint at cycle 1 of the two-step pipeline (step_a done,
// step_b not yet dispatched), then fork into a new run under OVERWRITE with
// a modified step_b. step_a's data carries over from the checkpoint without
// recomputation; step_b recomputes under the new logic; the original run's
// checkpoint log is untouched.
func TestForkFromCheckpointCarriesOverUnaffectedStepAndRecomputesChanged(t *testing.T) {
	store := inmemstore.New()

	origFnA := functionConcept("step_a_fn")
	origFnB := functionConcept("step_b_fn")
	origInput := groundConcept("input", "seed")
	origStepA := &concept.Entry{Name: "step_a", Type: concept.TypeObject}
	origStepB := &concept.Entry{Name: "step_b", Type: concept.TypeObject, IsFinalConcept: true}
	origConcepts, err := concept.NewRepo([]*concept.Entry{origFnA, origFnB, origInput, origStepA, origStepB})
	require.NoError(t, err)
	origEntries, err := inference.NewRepo([]inference.Raw{
		{ID: "a", Sequence: inference.SequenceSimple, ConceptToInfer: "step_a", FunctionConcept: "step_a_fn", ValueConcepts: []string{"input"}, FlowIndex: "1"},
		{ID: "b", Sequence: inference.SequenceSimple, ConceptToInfer: "step_b", FunctionConcept: "step_b_fn", ValueConcepts: []string{"step_a"}, FlowIndex: "2"},
	}, origConcepts)
	require.NoError(t, err)

	origBody := newFakeBody()
	origOrch, err := orchestrator.New(orchestrator.Config{
		Concepts:     origConcepts,
		Inferences:   origEntries,
		Registry:     newRegistry(t),
		Body:         origBody,
		RunID:        "run-orig",
		MaxCycles:    1, // stop right after step_a completes
		Checkpointer: checkpoint.NewManager(store),
	})
	require.NoError(t, err)
	origResult, err := origOrch.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, origResult.Cycles)
	require.Contains(t, origResult.StuckFlowIndices, "2")
	require.Equal(t, 1, origBody.calls["step_a_fn"])
	require.Equal(t, 0, origBody.calls["step_b_fn"])

	// Fork: step_b's logic changes to a new function concept.
	forkFnA := functionConcept("step_a_fn")
	forkFnB := functionConcept("step_b_fn_v2")
	forkInput := groundConcept("input", "seed")
	forkStepA := &concept.Entry{Name: "step_a", Type: concept.TypeObject}
	forkStepB := &concept.Entry{Name: "step_b", Type: concept.TypeObject, IsFinalConcept: true}
	forkConcepts, err := concept.NewRepo([]*concept.Entry{forkFnA, forkFnB, forkInput, forkStepA, forkStepB})
	require.NoError(t, err)
	forkEntries, err := inference.NewRepo([]inference.Raw{
		{ID: "a", Sequence: inference.SequenceSimple, ConceptToInfer: "step_a", FunctionConcept: "step_a_fn", ValueConcepts: []string{"input"}, FlowIndex: "1"},
		{ID: "b", Sequence: inference.SequenceSimple, ConceptToInfer: "step_b", FunctionConcept: "step_b_fn_v2", ValueConcepts: []string{"step_a"}, FlowIndex: "2"},
	}, forkConcepts)
	require.NoError(t, err)

	forkBody := newFakeBody()
	forkOrch, err := orchestrator.New(orchestrator.Config{
		Concepts:     forkConcepts,
		Inferences:   forkEntries,
		Registry:     newRegistry(t),
		Body:         forkBody,
		RunID:        "run-fork",
		Checkpointer: checkpoint.NewManager(store),
		Reconcile:    checkpoint.NewForkManager(store, "run-orig"),
	})
	require.NoError(t, err)
	forkResult, err := forkOrch.Run(context.Background())
	require.NoError(t, err)
	require.False(t, forkResult.Deadlocked)
	require.Equal(t, "run-fork", forkResult.RunID)

	// step_a's result carried over from the checkpoint: never recomputed.
	require.Equal(t, 0, forkBody.calls["step_a_fn"])
	// step_b recomputed under the new logic.
	require.Equal(t, 1, forkBody.calls["step_b_fn_v2"])

	// The original run's checkpoint log is unaffected by the fork.
	origLatest, ok, err := store.Latest(context.Background(), "run-orig")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, origLatest.Cycle)
}

// Scenario G: wiring Config.Engine routes every Body.Invoke call through a
// workflow/activity pair instead of calling the body directly, without
// changing the pipeline's observable outcome.
func TestEngineConfiguredRunsBodyInvokeThroughWorkflow(t *testing.T) {
	fnA := functionConcept("step_a_fn")
	fnB := functionConcept("step_b_fn")
	input := groundConcept("input", "seed")
	stepA := &concept.Entry{Name: "step_a", Type: concept.TypeObject, IsFinalConcept: true}
	stepB := &concept.Entry{Name: "step_b", Type: concept.TypeObject, IsFinalConcept: true}

	concepts, err := concept.NewRepo([]*concept.Entry{fnA, fnB, input, stepA, stepB})
	require.NoError(t, err)

	entries, err := inference.NewRepo([]inference.Raw{
		{ID: "a", Sequence: inference.SequenceSimple, ConceptToInfer: "step_a", FunctionConcept: "step_a_fn", ValueConcepts: []string{"input"}, FlowIndex: "1"},
		{ID: "b", Sequence: inference.SequenceSimple, ConceptToInfer: "step_b", FunctionConcept: "step_b_fn", ValueConcepts: []string{"step_a"}, FlowIndex: "2"},
	}, concepts)
	require.NoError(t, err)

	body := newFakeBody()
	o, err := orchestrator.New(orchestrator.Config{
		Concepts:   concepts,
		Inferences: entries,
		Registry:   newRegistry(t),
		Body:       body,
		Engine:     inmem.New(),
	})
	require.NoError(t, err)

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.False(t, result.Deadlocked)
	require.Equal(t, 1, body.calls["step_a_fn"])
	require.Equal(t, 1, body.calls["step_b_fn"])
}
