// Package tensor implements Reference, the axis-named rectangular tensor used
// as the opaque payload type for every concept in the repository. The
// scheduler never interprets a Reference's contents; it only reads Axes/Shape
// for checkpoint signature comparison (see the checkpoint package) and hands
// the Data slice to sequence-kind implementations verbatim.
package tensor

import "fmt"

type (
	// Reference is a flat, row-major encoding of an axis-named rectangular
	// tensor. Data has exactly Size() entries; Axes and Shape have the same
	// length and are aligned index-for-index.
	Reference struct {
		// Axes names each dimension, outermost first.
		Axes []string
		// Shape gives the size of each dimension in the same order as Axes.
		Shape []int
		// Data holds Size() cells in row-major order.
		Data []Cell
	}

	// Cell is a single tensor element. The zero value is not valid; use
	// NewScalar, NewString, NewRecord, or SkipCell.
	Cell struct {
		kind   cellKind
		scalar float64
		str    string
		record map[string]any
	}

	cellKind int
)

const (
	kindSkip cellKind = iota
	kindScalar
	kindString
	kindRecord
)

// SkipCell is the typed sentinel for an empty tensor slot. It replaces the
// original implementation's magic string "@#SKIP#@"; callers must use
// Cell.IsSkip rather than comparing against any string value.
var SkipCell = Cell{kind: kindSkip}

// NewScalar wraps a numeric value.
func NewScalar(v float64) Cell { return Cell{kind: kindScalar, scalar: v} }

// NewString wraps a string value.
func NewString(v string) Cell { return Cell{kind: kindString, str: v} }

// NewRecord wraps a labeled record, as produced by grouper.AndIn.
func NewRecord(v map[string]any) Cell { return Cell{kind: kindRecord, record: v} }

// IsSkip reports whether the cell holds the skip sentinel.
func (c Cell) IsSkip() bool { return c.kind == kindSkip }

// Scalar returns the numeric value and whether the cell holds one.
func (c Cell) Scalar() (float64, bool) { return c.scalar, c.kind == kindScalar }

// String returns the string value and whether the cell holds one.
func (c Cell) String() (string, bool) { return c.str, c.kind == kindString }

// Record returns the record value and whether the cell holds one.
func (c Cell) Record() (map[string]any, bool) { return c.record, c.kind == kindRecord }

// Any unwraps the cell to a plain Go value suitable for JSON encoding
// (nil for a skip cell).
func (c Cell) Any() any {
	switch c.kind {
	case kindScalar:
		return c.scalar
	case kindString:
		return c.str
	case kindRecord:
		return c.record
	default:
		return nil
	}
}

// CellFromAny wraps a decoded JSON value (float64, string, map[string]any, or
// nil) into a Cell.
func CellFromAny(v any) Cell {
	switch t := v.(type) {
	case nil:
		return SkipCell
	case float64:
		return NewScalar(t)
	case int:
		return NewScalar(float64(t))
	case bool:
		if t {
			return NewScalar(1)
		}
		return NewScalar(0)
	case string:
		return NewString(t)
	case map[string]any:
		return NewRecord(t)
	default:
		return NewString(fmt.Sprintf("%v", t))
	}
}

// Size returns the number of cells implied by Shape.
func (r Reference) Size() int {
	n := 1
	for _, s := range r.Shape {
		n *= s
	}
	if len(r.Shape) == 0 {
		return 0
	}
	return n
}

// Empty reports whether the Reference carries no data. Per §3, a concept's
// completeness hinges on its Reference being non-empty.
func (r Reference) Empty() bool {
	return len(r.Data) == 0
}

// Signature is the (type-independent) shape fingerprint compared during
// checkpoint reconciliation (§4.8.2): axes and shape, taken as empty when the
// Reference itself is empty.
type Signature struct {
	Axes  []string
	Shape []int
}

// Signature computes the Reference's checkpoint-reconciliation signature.
func (r Reference) Signature() Signature {
	if r.Empty() {
		return Signature{}
	}
	axes := append([]string(nil), r.Axes...)
	shape := append([]int(nil), r.Shape...)
	return Signature{Axes: axes, Shape: shape}
}

// Equal compares two signatures for checkpoint reconciliation.
func (s Signature) Equal(other Signature) bool {
	if len(s.Axes) != len(other.Axes) || len(s.Shape) != len(other.Shape) {
		return false
	}
	for i := range s.Axes {
		if s.Axes[i] != other.Axes[i] {
			return false
		}
	}
	for i := range s.Shape {
		if s.Shape[i] != other.Shape[i] {
			return false
		}
	}
	return true
}

// Wrap builds a Reference from a flat list of decoded JSON values, wrapping a
// bare scalar in a single-element list when axes are omitted (per
// ConceptRepo.add_reference, §4.1).
func Wrap(data []any, axes []string) Reference {
	if len(axes) == 0 {
		axes = []string{"_item"}
	}
	cells := make([]Cell, len(data))
	for i, v := range data {
		cells[i] = CellFromAny(v)
	}
	shape := []int{len(cells)}
	if len(axes) > 1 {
		// Multi-axis wrap requires the caller to have pre-flattened data in
		// row-major order and to supply Shape via WrapShaped.
		shape = []int{len(cells)}
		axes = axes[:1]
	}
	return Reference{Axes: axes, Shape: shape, Data: cells}
}

// WrapShaped builds a Reference with explicit axes and shape, validating that
// Size() matches len(data).
func WrapShaped(data []Cell, axes []string, shape []int) (Reference, error) {
	r := Reference{Axes: axes, Shape: shape, Data: data}
	if len(axes) != len(shape) {
		return Reference{}, fmt.Errorf("tensor: axes/shape length mismatch: %d axes, %d shape entries", len(axes), len(shape))
	}
	if want := r.Size(); want != len(data) {
		return Reference{}, fmt.Errorf("tensor: shape implies %d cells, got %d", want, len(data))
	}
	return r, nil
}
