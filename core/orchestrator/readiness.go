package orchestrator

import (
	"github.com/flowstate/orchestrator/core/blackboard"
	"github.com/flowstate/orchestrator/core/inference"
)

// isReady implements the §4.7.2 readiness predicate. Context concepts are
// never consulted here; they are read advisorily by sequence kinds when
// present.
func isReady(entry *inference.Entry, board *blackboard.Blackboard, flowIndex string) bool {
	if board.ItemStatus(flowIndex) != blackboard.ItemPending {
		return false
	}
	execCount := board.ExecutionCount(flowIndex)
	return functionReady(entry, board, execCount) && valueReady(entry, board, execCount)
}

func functionReady(entry *inference.Entry, board *blackboard.Blackboard, execCount int) bool {
	if entry.FunctionConcept == nil {
		return true
	}
	if entry.StartWithoutFunction {
		return true
	}
	if entry.StartWithoutFunctionOnlyOnce && execCount == 0 {
		return true
	}
	return board.ConceptStatus(entry.FunctionConcept.Name) == blackboard.ConceptComplete
}

func valueReady(entry *inference.Entry, board *blackboard.Blackboard, execCount int) bool {
	if entry.StartWithoutValue {
		return true
	}
	if entry.StartWithoutValueOnlyOnce && execCount == 0 {
		return true
	}
	for _, v := range entry.ValueConcepts {
		if board.ConceptStatus(v.Name) != blackboard.ConceptComplete {
			return false
		}
	}
	return true
}
