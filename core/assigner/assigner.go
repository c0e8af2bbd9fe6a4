// Package assigner implements the assigning sequence kind's two markers,
// specification and continuation (§4.6).
package assigner

import "github.com/flowstate/orchestrator/core/tensor"

// Specification implements the "." marker: the result is the first non-empty
// Reference in priority order (source candidates first, destination last),
// or an empty Reference if all are empty.
func Specification(destination tensor.Reference, sources ...tensor.Reference) tensor.Reference {
	for _, s := range sources {
		if !s.Empty() {
			return s
		}
	}
	if !destination.Empty() {
		return destination
	}
	return tensor.Reference{}
}

// Continuation implements the "+" marker: destination data concatenated with
// source data, both coerced to a flat list.
func Continuation(destination, source tensor.Reference) tensor.Reference {
	axis := "_item"
	if len(destination.Axes) > 0 {
		axis = destination.Axes[0]
	} else if len(source.Axes) > 0 {
		axis = source.Axes[0]
	}
	return tensor.ConcatAlong(axis, destination, source)
}
