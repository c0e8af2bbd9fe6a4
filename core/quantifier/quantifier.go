// Package quantifier implements the loop substrate used by the quantifying
// sequence kind (§4.4). It is a pure module: all state lives in the
// *Loop value the caller owns (typically stashed in the orchestrator
// workspace under a key derived from the quantifying inference's ID), so the scheduler's
// single-threaded cooperative model is the only synchronization this
// package needs.
package quantifier

import "github.com/flowstate/orchestrator/core/tensor"

// Loop tracks one quantifying controller's progress over a to-loop
// collection. Base elements are processed in the collection's flattened
// iteration order (column-major over its axes, duplicates preserved,
// skip-sentinels filtered — §4.4).
type Loop struct {
	baseElements []tensor.Cell
	nextIndex    int
	history      []iteration
}

type iteration struct {
	baseIndex int
	values    map[string]tensor.Cell
}

// NewLoop builds a Loop over toLoop's flattened, skip-filtered elements.
func NewLoop(toLoop tensor.Reference) *Loop {
	return &Loop{baseElements: toLoop.Flatten()}
}

// NextBaseElement returns the next unprocessed element and its loop index, or
// ok=false if every element has already been associated with an iteration.
func (l *Loop) NextBaseElement() (elem tensor.Cell, index int, ok bool) {
	if l.nextIndex >= len(l.baseElements) {
		return tensor.Cell{}, 0, false
	}
	elem = l.baseElements[l.nextIndex]
	index = l.nextIndex
	l.nextIndex++
	return elem, index, true
}

// RecordIteration stores the in-loop concept values produced while
// processing the base element at baseIndex.
func (l *Loop) RecordIteration(baseIndex int, values map[string]tensor.Cell) {
	l.history = append(l.history, iteration{baseIndex: baseIndex, values: values})
}

// CarryBack retrieves the value a named in-loop concept held k iterations
// before the current one (k=1 is the immediately preceding iteration). ok is
// false if no such iteration has been recorded yet.
func (l *Loop) CarryBack(name string, k int) (tensor.Cell, bool) {
	target := len(l.history) - 1 - k
	if target < 0 || target >= len(l.history) {
		return tensor.Cell{}, false
	}
	v, ok := l.history[target].values[name]
	return v, ok
}

// Concatenate aligns every recorded iteration's value for the named concept
// into a single Reference along axisName, ordered by base index.
func (l *Loop) Concatenate(name, axisName string) tensor.Reference {
	cells := make([]tensor.Cell, 0, len(l.history))
	for _, it := range l.history {
		if v, ok := it.values[name]; ok {
			cells = append(cells, v)
		}
	}
	return tensor.Reference{Axes: []string{axisName}, Shape: []int{len(cells)}, Data: cells}
}

// AllProcessed reports whether every element of the to-loop collection has
// been associated with a completed iteration.
func (l *Loop) AllProcessed() bool {
	return len(l.history) >= len(l.baseElements)
}

// Len returns the number of base elements in the to-loop collection.
func (l *Loop) Len() int { return len(l.baseElements) }
