package flowindex_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstate/orchestrator/core/flowindex"
)

func TestParseAndString(t *testing.T) {
	idx, err := flowindex.Parse("1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", idx.String())
}

func TestParseRejectsEmptyAndNonNumeric(t *testing.T) {
	_, err := flowindex.Parse("")
	assert.Error(t, err)

	_, err = flowindex.Parse("1.a.2")
	assert.Error(t, err)

	_, err = flowindex.Parse("1.-1")
	assert.Error(t, err)
}

func TestCompareOrdering(t *testing.T) {
	order := []string{"1", "1.1", "1.1.2", "1.2", "2"}
	indices := make([]flowindex.Index, len(order))
	for i, s := range order {
		indices[i] = flowindex.MustParse(s)
	}
	shuffled := []flowindex.Index{indices[4], indices[0], indices[3], indices[1], indices[2]}
	sort.Slice(shuffled, func(i, j int) bool { return shuffled[i].Less(shuffled[j]) })
	for i, idx := range shuffled {
		assert.Equal(t, order[i], idx.String())
	}
}

func TestIsDescendantOf(t *testing.T) {
	parent := flowindex.MustParse("1.2")
	assert.True(t, flowindex.MustParse("1.2.1").IsDescendantOf(parent))
	assert.True(t, flowindex.MustParse("1.2.1.3").IsDescendantOf(parent))
	assert.False(t, flowindex.MustParse("1.2").IsDescendantOf(parent))
	assert.False(t, flowindex.MustParse("1.3").IsDescendantOf(parent))
	assert.False(t, flowindex.MustParse("1").IsDescendantOf(parent))
}

func TestIsZero(t *testing.T) {
	var idx flowindex.Index
	assert.True(t, idx.IsZero())
	assert.False(t, flowindex.MustParse("1").IsZero())
}
