package orchestrator

import (
	"context"

	"github.com/flowstate/orchestrator/core/blackboard"
	"github.com/flowstate/orchestrator/core/dispatch"
	"github.com/flowstate/orchestrator/core/events"
	"github.com/flowstate/orchestrator/core/inference"
	"github.com/flowstate/orchestrator/core/waitlist"
)

// dispatchOne implements §4.7.3 (dispatch) and §4.7.4 (post-dispatch rules)
// for a single ready waitlist item. It records a ProcessTracker attempt for
// every outcome Invoke returns; a kind lookup or Invoke error is returned
// without recording one.
func (o *Orchestrator) dispatchOne(ctx context.Context, item waitlist.Item, cycle int) (dispatch.Outcome, error) {
	entry := item.Entry
	flowIndex := item.FlowIndex().String()

	kind, err := o.registry.Lookup(entry.Sequence)
	if err != nil {
		return dispatch.Outcome{}, err
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.dispatch")
	defer span.End()

	o.board.SetItemStatus(flowIndex, blackboard.ItemInProgress)
	o.board.IncrementExecutionCount(flowIndex)
	o.log.Debug(ctx, "dispatching item", "flow_index", flowIndex, "sequence", entry.Sequence)
	o.emit(events.InferenceStarted, map[string]any{
		"flow_index":       flowIndex,
		"concept_to_infer": entry.ConceptToInfer.Name,
		"sequence":         string(entry.Sequence),
	})

	outcome, err := kind.Invoke(ctx, dispatch.Request{
		Entry:     entry,
		Concepts:  o.concepts,
		Board:     o.board,
		Workspace: o.workspace,
		Body:      o.body,
	})
	if err != nil {
		span.RecordError(err)
		return dispatch.Outcome{}, err
	}

	if outcome.NeedsUserInput != nil {
		if recErr := o.tracker.RecordAttempt(ctx, cycle, flowIndex, entry.Sequence, dispatch.StatusPendingRetry, entry.ConceptToInfer.Name); recErr != nil {
			return dispatch.Outcome{}, recErr
		}
		return outcome, nil
	}

	switch entry.Sequence {
	case inference.SequenceTiming:
		o.applyTimingOutcome(flowIndex, outcome)
	case inference.SequenceQuantifying:
		o.applyQuantifyingOutcome(item, outcome)
	default:
		o.applyStandardOutcome(entry, flowIndex, outcome)
	}

	o.emitOutcomeEvent(flowIndex, entry.ConceptToInfer.Name, outcome)
	o.recordOutcomeMetrics(entry.Sequence, outcome)

	if err := o.tracker.RecordAttempt(ctx, cycle, flowIndex, entry.Sequence, outcome.Status, entry.ConceptToInfer.Name); err != nil {
		return dispatch.Outcome{}, err
	}
	return outcome, nil
}

func (o *Orchestrator) recordOutcomeMetrics(kind inference.Sequence, outcome dispatch.Outcome) {
	switch outcome.Status {
	case dispatch.StatusCompleted:
		o.metrics.IncCounter("orchestrator.dispatches.completed", 1, "sequence", string(kind))
	case dispatch.StatusPendingRetry:
		o.metrics.IncCounter("orchestrator.dispatches.retried", 1, "sequence", string(kind))
	case dispatch.StatusFailed:
		o.metrics.IncCounter("orchestrator.dispatches.failed", 1, "sequence", string(kind))
	}
}

// applyTimingOutcome implements §4.7.4's timing branch: the item's status is
// gated purely on TimingReady; no concept is ever touched.
func (o *Orchestrator) applyTimingOutcome(flowIndex string, outcome dispatch.Outcome) {
	if outcome.TimingReady {
		o.board.SetItemStatus(flowIndex, blackboard.ItemCompleted)
		return
	}
	o.board.SetItemStatus(flowIndex, blackboard.ItemPending)
}

// applyQuantifyingOutcome implements §4.7.4's quantifying branch and §4.7.5's
// support-reset protocol. If the loop is not yet complete, every supporting
// item is reset *before* the updated references for this cycle are written,
// so the reset does not clobber the iteration this dispatch just produced.
func (o *Orchestrator) applyQuantifyingOutcome(item waitlist.Item, outcome dispatch.Outcome) {
	flowIndex := item.FlowIndex().String()
	complete := outcome.QuantifyingComplete != nil && *outcome.QuantifyingComplete

	if !complete {
		resetSupporting(o.waitlist, o.board, item.FlowIndex())
	}

	for name, ref := range outcome.UpdatedReferences {
		c := o.concepts.Get(name)
		if c == nil {
			continue
		}
		ref := ref
		c.Reference = ref
		o.board.SetConceptComplete(name)
	}

	if complete {
		o.board.SetItemStatus(flowIndex, blackboard.ItemCompleted)
	} else {
		o.board.SetItemStatus(flowIndex, blackboard.ItemPending)
	}
}

// applyStandardOutcome implements §4.7.4's default branch, used by every
// sequence kind other than timing and quantifying.
func (o *Orchestrator) applyStandardOutcome(entry *inference.Entry, flowIndex string, outcome dispatch.Outcome) {
	switch outcome.Status {
	case dispatch.StatusCompleted:
		if outcome.ProducedReference != nil {
			entry.ConceptToInfer.Reference = *outcome.ProducedReference
			o.board.SetConceptComplete(entry.ConceptToInfer.Name)
		}
		for name, ref := range outcome.UpdatedReferences {
			c := o.concepts.Get(name)
			if c == nil {
				continue
			}
			ref := ref
			c.Reference = ref
			o.board.SetConceptComplete(name)
		}
		o.board.SetItemStatus(flowIndex, blackboard.ItemCompleted)
	case dispatch.StatusPendingRetry:
		o.board.SetItemStatus(flowIndex, blackboard.ItemPending)
	case dispatch.StatusFailed:
		o.board.SetItemStatus(flowIndex, blackboard.ItemFailed)
	}
}

func (o *Orchestrator) emitOutcomeEvent(flowIndex, conceptName string, outcome dispatch.Outcome) {
	switch outcome.Status {
	case dispatch.StatusCompleted:
		o.emit(events.InferenceCompleted, map[string]any{
			"flow_index":       flowIndex,
			"concept_to_infer": conceptName,
		})
	case dispatch.StatusFailed:
		errMsg := ""
		if outcome.Err != nil {
			errMsg = outcome.Err.Error()
		}
		o.emit(events.InferenceFailed, map[string]any{
			"flow_index":       flowIndex,
			"concept_to_infer": conceptName,
			"error":            errMsg,
		})
	}
}
