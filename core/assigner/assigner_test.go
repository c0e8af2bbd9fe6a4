package assigner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstate/orchestrator/core/assigner"
	"github.com/flowstate/orchestrator/core/tensor"
)

func TestSpecificationPrefersFirstNonEmptySource(t *testing.T) {
	dest := tensor.Wrap([]any{"dest"}, nil)
	empty := tensor.Reference{}
	src := tensor.Wrap([]any{"src"}, nil)

	out := assigner.Specification(dest, empty, src)
	s, _ := out.Data[0].String()
	assert.Equal(t, "src", s)
}

func TestSpecificationFallsBackToDestination(t *testing.T) {
	dest := tensor.Wrap([]any{"dest"}, nil)
	out := assigner.Specification(dest, tensor.Reference{}, tensor.Reference{})
	s, _ := out.Data[0].String()
	assert.Equal(t, "dest", s)
}

func TestSpecificationAllEmptyYieldsEmpty(t *testing.T) {
	out := assigner.Specification(tensor.Reference{}, tensor.Reference{})
	assert.True(t, out.Empty())
}

func TestContinuationConcatenatesDestinationThenSource(t *testing.T) {
	dest := tensor.Wrap([]any{1.0, 2.0}, nil)
	src := tensor.Wrap([]any{3.0}, nil)

	out := assigner.Continuation(dest, src)
	require.Equal(t, 3, out.Size())
	v0, _ := out.Data[0].Scalar()
	v2, _ := out.Data[2].Scalar()
	assert.Equal(t, 1.0, v0)
	assert.Equal(t, 3.0, v2)
}
