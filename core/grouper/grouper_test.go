package grouper_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstate/orchestrator/core/grouper"
	"github.com/flowstate/orchestrator/core/tensor"
)

func TestAndInWrapsUnderNoneAxisByDefault(t *testing.T) {
	a := tensor.Wrap([]any{1.0, 2.0}, []string{"x"})
	b := tensor.Wrap([]any{10.0, 20.0}, []string{"x"})

	out, err := grouper.AndIn([]tensor.Reference{a, b}, []string{"first", "second"}, nil, "")
	require.NoError(t, err)
	assert.Equal(t, grouper.NoneAxis, out.Axes[0])
	assert.Equal(t, 1, out.Shape[0])

	rec, ok := out.Data[0].Record()
	require.True(t, ok)
	assert.Equal(t, 1.0, rec["first"])
	assert.Equal(t, 10.0, rec["second"])
}

func TestAndInUsesCreateAxisWhenGiven(t *testing.T) {
	a := tensor.Wrap([]any{1.0}, []string{"x"})
	out, err := grouper.AndIn([]tensor.Reference{a}, []string{"first"}, nil, "iter")
	require.NoError(t, err)
	assert.Equal(t, "iter", out.Axes[0])
}

func TestOrAcrossStackModePreservesSkip(t *testing.T) {
	a, _ := tensor.WrapShaped([]tensor.Cell{tensor.NewScalar(1), tensor.SkipCell}, []string{"x"}, []int{2})
	b, _ := tensor.WrapShaped([]tensor.Cell{tensor.NewScalar(3), tensor.NewScalar(4)}, []string{"x"}, []int{2})

	out, err := grouper.OrAcross([]tensor.Reference{a, b}, nil, "iter")
	require.NoError(t, err)
	assert.Equal(t, []string{"iter", "x"}, out.Axes)
	assert.Equal(t, 4, out.Size())
	assert.True(t, out.Data[1].IsSkip())
}

func TestOrAcrossCollapseModeFiltersSkip(t *testing.T) {
	a, _ := tensor.WrapShaped([]tensor.Cell{tensor.NewScalar(1), tensor.SkipCell}, []string{"x"}, []int{2})
	b, _ := tensor.WrapShaped([]tensor.Cell{tensor.NewScalar(3)}, []string{"x"}, []int{1})

	out, err := grouper.OrAcross([]tensor.Reference{a, b}, []string{"x"}, "")
	require.NoError(t, err)
	assert.Equal(t, grouper.NoneAxis, out.Axes[0])
	assert.Equal(t, 2, out.Size())
}
