package quantifier_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstate/orchestrator/core/quantifier"
	"github.com/flowstate/orchestrator/core/tensor"
)

func threeElementLoop(t *testing.T) tensor.Reference {
	t.Helper()
	ref, err := tensor.WrapShaped(
		[]tensor.Cell{tensor.NewString("A"), tensor.NewString("B"), tensor.NewString("C")},
		[]string{"base"}, []int{3})
	require.NoError(t, err)
	return ref
}

func TestNextBaseElementAdvancesInOrder(t *testing.T) {
	loop := quantifier.NewLoop(threeElementLoop(t))

	elem, idx, ok := loop.NextBaseElement()
	require.True(t, ok)
	s, _ := elem.String()
	assert.Equal(t, "A", s)
	assert.Equal(t, 0, idx)

	elem, idx, ok = loop.NextBaseElement()
	require.True(t, ok)
	s, _ = elem.String()
	assert.Equal(t, "B", s)
	assert.Equal(t, 1, idx)
}

func TestNextBaseElementExhausted(t *testing.T) {
	loop := quantifier.NewLoop(threeElementLoop(t))
	for i := 0; i < 3; i++ {
		_, _, ok := loop.NextBaseElement()
		require.True(t, ok)
	}
	_, _, ok := loop.NextBaseElement()
	assert.False(t, ok)
}

func TestRecordIterationAndAllProcessed(t *testing.T) {
	loop := quantifier.NewLoop(threeElementLoop(t))
	assert.False(t, loop.AllProcessed())

	for i := 0; i < 3; i++ {
		_, idx, _ := loop.NextBaseElement()
		loop.RecordIteration(idx, map[string]tensor.Cell{"digit": tensor.NewScalar(float64(idx))})
	}
	assert.True(t, loop.AllProcessed())
}

func TestCarryBackLooksBackKIterations(t *testing.T) {
	loop := quantifier.NewLoop(threeElementLoop(t))
	for i := 0; i < 3; i++ {
		_, idx, _ := loop.NextBaseElement()
		loop.RecordIteration(idx, map[string]tensor.Cell{"digit": tensor.NewScalar(float64(idx))})
	}

	v, ok := loop.CarryBack("digit", 1)
	require.True(t, ok)
	f, _ := v.Scalar()
	assert.Equal(t, 1.0, f)

	_, ok = loop.CarryBack("digit", 10)
	assert.False(t, ok)
}

func TestConcatenateOrdersByBaseIndex(t *testing.T) {
	loop := quantifier.NewLoop(threeElementLoop(t))
	for i := 0; i < 3; i++ {
		_, idx, _ := loop.NextBaseElement()
		loop.RecordIteration(idx, map[string]tensor.Cell{"digit": tensor.NewScalar(float64(idx) * 10)})
	}

	out := loop.Concatenate("digit", "base")
	require.Equal(t, 3, out.Size())
	v0, _ := out.Data[0].Scalar()
	v2, _ := out.Data[2].Scalar()
	assert.Equal(t, 0.0, v0)
	assert.Equal(t, 20.0, v2)
}

func TestLoopOfLengthZero(t *testing.T) {
	empty, err := tensor.WrapShaped(nil, []string{"base"}, []int{0})
	require.NoError(t, err)
	loop := quantifier.NewLoop(empty)
	assert.True(t, loop.AllProcessed())
	assert.Equal(t, 0, loop.Len())
}
