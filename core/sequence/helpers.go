package sequence

import "github.com/flowstate/orchestrator/core/tensor"

// flattenedValues unwraps a Reference's flattened, skip-filtered cells into
// plain Go values, for handing to a Body invocation.
func flattenedValues(ref tensor.Reference) []any {
	cells := ref.Flatten()
	out := make([]any, len(cells))
	for i, c := range cells {
		out[i] = c.Any()
	}
	return out
}
