// Package checkpoint implements the snapshot/reconcile subsystem (§4.8): it
// records a Snapshot at the end of a scheduler cycle and, on resume or fork,
// merges a previously recorded Snapshot back into a freshly constructed
// Blackboard/ConceptRepo/Tracker under one of three reconciliation modes.
package checkpoint

import (
	"time"

	"github.com/flowstate/orchestrator/core/blackboard"
	"github.com/flowstate/orchestrator/core/concept"
	"github.com/flowstate/orchestrator/core/tensor"
	"github.com/flowstate/orchestrator/core/tracker"
)

// Mode governs how a loaded Snapshot's concept data merges with the incoming
// ConceptRepo (§4.8.2).
type Mode string

const (
	// ModePatch is the default resume mode: checkpoint data is loaded only
	// where the repo's signature matches; a mismatch keeps the repo's data.
	ModePatch Mode = "PATCH"
	// ModeOverwrite is the default fork mode: checkpoint data always wins,
	// signature mismatch notwithstanding.
	ModeOverwrite Mode = "OVERWRITE"
	// ModeFillGaps only loads checkpoint data into concepts the repo left
	// empty; it never clobbers data the repo already supplied.
	ModeFillGaps Mode = "FILL_GAPS"
)

// ConceptRecord is one concept's checkpointed state (§4.8.1).
type ConceptRecord struct {
	Name            string
	Type            concept.Type
	Status          blackboard.ConceptStatus
	ReferenceData   []any
	ReferenceAxes   []string
	ReferenceShape  []int
	IsGroundConcept bool
	IsFinalConcept  bool
}

// signature is the (type, axes, shape) fingerprint §4.8.2 compares.
type signature struct {
	Type  concept.Type
	Axes  []string
	Shape []int
}

func (r ConceptRecord) signature() signature {
	return signature{Type: r.Type, Axes: r.ReferenceAxes, Shape: r.ReferenceShape}
}

func referenceSignature(t concept.Type, ref tensor.Reference) signature {
	sig := ref.Signature()
	return signature{Type: t, Axes: sig.Axes, Shape: sig.Shape}
}

func (s signature) equal(other signature) bool {
	if s.Type != other.Type {
		return false
	}
	return tensor.Signature{Axes: s.Axes, Shape: s.Shape}.Equal(tensor.Signature{Axes: other.Axes, Shape: other.Shape})
}

// ItemRecord is one waitlist item's checkpointed state (§4.8.1).
type ItemRecord struct {
	FlowIndex      string
	Status         blackboard.ItemStatus
	ExecutionCount int
	Result         string
}

// Snapshot is everything one checkpoint write persists (§4.8.1).
type Snapshot struct {
	RunID          string
	Cycle          int
	InferenceCount int
	Timestamp      time.Time

	Concepts  []ConceptRecord
	Items     []ItemRecord
	Tracker   tracker.Snapshot
	Workspace map[string]any
}

// conceptRecordFromEntry captures one concept entry's current Reference and
// status into a checkpointable record.
func conceptRecordFromEntry(e *concept.Entry, status blackboard.ConceptStatus) ConceptRecord {
	data := make([]any, 0, len(e.Reference.Data))
	for _, cell := range e.Reference.Data {
		data = append(data, cell.Any())
	}
	return ConceptRecord{
		Name:            e.Name,
		Type:            e.Type,
		Status:          status,
		ReferenceData:   data,
		ReferenceAxes:   append([]string(nil), e.Reference.Axes...),
		ReferenceShape:  append([]int(nil), e.Reference.Shape...),
		IsGroundConcept: e.IsGroundConcept,
		IsFinalConcept:  e.IsFinalConcept,
	}
}

// toReference rebuilds a tensor.Reference from the record's flat data, shape,
// and axes. An empty record (no data) yields the zero Reference.
func (r ConceptRecord) toReference() tensor.Reference {
	if len(r.ReferenceData) == 0 {
		return tensor.Reference{}
	}
	cells := make([]tensor.Cell, len(r.ReferenceData))
	for i, v := range r.ReferenceData {
		cells[i] = tensor.CellFromAny(v)
	}
	ref, err := tensor.WrapShaped(cells, r.ReferenceAxes, r.ReferenceShape)
	if err != nil {
		return tensor.Wrap(r.ReferenceData, r.ReferenceAxes)
	}
	return ref
}
