package workspace_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowstate/orchestrator/core/workspace"
)

func TestGetSetDelete(t *testing.T) {
	w := workspace.New()
	_, ok := w.Get("missing")
	assert.False(t, ok)

	w.Set("loop:base_index", 3)
	v, ok := w.Get("loop:base_index")
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	w.Delete("loop:base_index")
	_, ok = w.Get("loop:base_index")
	assert.False(t, ok)
}

func TestSnapshotAndRestoreAreIndependentCopies(t *testing.T) {
	w := workspace.New()
	w.Set("a", 1)

	snap := w.Snapshot()
	w.Set("a", 2)
	assert.Equal(t, 1, snap["a"])

	w2 := workspace.New()
	w2.Restore(snap)
	v, _ := w2.Get("a")
	assert.Equal(t, 1, v)
}
