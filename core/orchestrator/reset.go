package orchestrator

import (
	"github.com/flowstate/orchestrator/core/blackboard"
	"github.com/flowstate/orchestrator/core/flowindex"
	"github.com/flowstate/orchestrator/core/tensor"
	"github.com/flowstate/orchestrator/core/waitlist"
)

// resetSupporting implements §4.7.5: when a quantifying item does not
// complete, every strict descendant of its flow index returns to pending so
// the next cycle re-runs it to produce the next iteration's inputs. Ground
// concepts are never reset.
func resetSupporting(wl *waitlist.Waitlist, board *blackboard.Blackboard, parent flowindex.Index) {
	for _, item := range wl.Supporting(parent) {
		flowIndex := item.FlowIndex().String()
		board.SetItemStatus(flowIndex, blackboard.ItemPending)

		c := item.Entry.ConceptToInfer
		if c.IsGroundConcept {
			continue
		}
		board.SetConceptPending(c.Name)
		c.Reference = tensor.Reference{}
	}
}
