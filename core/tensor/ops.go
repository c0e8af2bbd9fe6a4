package tensor

// index enumerates a multi-dimensional coordinate in row-major order: the
// last axis varies fastest. offset/coord helpers below keep SliceAxis,
// CrossProduct, and Flatten consistent with each other.

func strides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}

func coordAt(shape []int, flat int) []int {
	s := strides(shape)
	coord := make([]int, len(shape))
	for i, stride := range s {
		coord[i] = (flat / stride) % maxInt(shape[i], 1)
	}
	return coord
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// SliceAxis projects the Reference onto a subset of its axes, dropping the
// rest. When multiple original coordinates collapse onto the same kept
// coordinate the first one encountered wins; this mirrors the Python
// implementation's slice(*axes), which keeps the first occurrence.
func (r Reference) SliceAxis(keep ...string) Reference {
	keepSet := make(map[string]bool, len(keep))
	for _, k := range keep {
		keepSet[k] = true
	}
	var keptAxes []string
	var keptShape []int
	keepIdx := make([]int, 0, len(keep))
	for i, a := range r.Axes {
		if keepSet[a] {
			keptAxes = append(keptAxes, a)
			keptShape = append(keptShape, r.Shape[i])
			keepIdx = append(keepIdx, i)
		}
	}
	size := 1
	for _, s := range keptShape {
		size *= s
	}
	if len(keptShape) == 0 {
		size = 0
	}
	out := make([]Cell, size)
	seen := make([]bool, size)
	outStrides := strides(keptShape)
	for flat := 0; flat < r.Size(); flat++ {
		coord := coordAt(r.Shape, flat)
		outFlat := 0
		for j, idx := range keepIdx {
			outFlat += coord[idx] * outStrides[j]
		}
		if !seen[outFlat] {
			out[outFlat] = r.Data[flat]
			seen[outFlat] = true
		}
	}
	for i := range out {
		if !seen[i] {
			out[i] = SkipCell
		}
	}
	return Reference{Axes: keptAxes, Shape: keptShape, Data: out}
}

// CrossProduct combines references over their union of axes: an axis shared
// by more than one reference must agree in size across all of them and is
// iterated once; axes unique to one reference are iterated independently.
// The result's axis order is the order axes are first encountered, scanning
// references left to right. Each resulting cell holds a Record mapping a
// positional key ("r0", "r1", ...) to that reference's cell at the shared
// coordinate.
func CrossProduct(refs ...Reference) (Reference, error) {
	if len(refs) == 0 {
		return Reference{}, nil
	}
	axisSize := map[string]int{}
	var axisOrder []string
	for _, r := range refs {
		for i, a := range r.Axes {
			if sz, ok := axisSize[a]; ok {
				if sz != r.Shape[i] {
					return Reference{}, errAxisMismatch(a, sz, r.Shape[i])
				}
				continue
			}
			axisSize[a] = r.Shape[i]
			axisOrder = append(axisOrder, a)
		}
	}
	shape := make([]int, len(axisOrder))
	for i, a := range axisOrder {
		shape[i] = axisSize[a]
	}
	size := 1
	for _, s := range shape {
		size *= s
	}
	out := make([]Cell, size)
	for flat := 0; flat < size; flat++ {
		coord := coordAt(shape, flat)
		coordByAxis := make(map[string]int, len(axisOrder))
		for i, a := range axisOrder {
			coordByAxis[a] = coord[i]
		}
		rec := make(map[string]any, len(refs))
		for ri, r := range refs {
			cell := lookup(r, coordByAxis)
			rec[refKey(ri)] = cell.Any()
		}
		out[flat] = NewRecord(rec)
	}
	return Reference{Axes: axisOrder, Shape: shape, Data: out}, nil
}

func refKey(i int) string {
	const letters = "0123456789"
	if i < 10 {
		return "r" + string(letters[i])
	}
	return "r" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	p := len(buf)
	for i > 0 {
		p--
		buf[p] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		p--
		buf[p] = '-'
	}
	return string(buf[p:])
}

func lookup(r Reference, coordByAxis map[string]int) Cell {
	coord := make([]int, len(r.Axes))
	for i, a := range r.Axes {
		coord[i] = coordByAxis[a]
	}
	s := strides(r.Shape)
	flat := 0
	for i, c := range coord {
		flat += c * s[i]
	}
	if flat < 0 || flat >= len(r.Data) {
		return SkipCell
	}
	return r.Data[flat]
}

type axisMismatchError struct {
	axis     string
	size1    int
	size2    int
}

func (e axisMismatchError) Error() string {
	return "tensor: shared axis " + e.axis + " has mismatched sizes"
}

func errAxisMismatch(axis string, s1, s2 int) error {
	return axisMismatchError{axis: axis, size1: s1, size2: s2}
}

// Map applies fn to every non-skip cell, preserving skip cells as-is.
func (r Reference) Map(fn func(Cell) Cell) Reference {
	out := make([]Cell, len(r.Data))
	for i, c := range r.Data {
		if c.IsSkip() {
			out[i] = c
			continue
		}
		out[i] = fn(c)
	}
	return Reference{Axes: r.Axes, Shape: r.Shape, Data: out}
}

// Flatten returns the Reference's cells in column-major iteration order
// (innermost/last axis varies slowest), filtering out skip sentinels. This is
// the ordering rule §4.4 specifies for quantifying-loop base-element
// iteration, and the one or_across uses when collapsing axes (§4.5).
func (r Reference) Flatten() []Cell {
	n := r.Size()
	if n == 0 {
		return nil
	}
	out := make([]Cell, 0, n)
	// Column-major: iterate the first axis fastest by reversing the
	// coordinate-to-flat-index mapping used elsewhere (which is row-major,
	// last axis fastest). We instead walk coordinates with the FIRST axis
	// fastest.
	shape := r.Shape
	total := n
	coord := make([]int, len(shape))
	for i := 0; i < total; i++ {
		flat := 0
		s := strides(shape)
		for j, c := range coord {
			flat += c * s[j]
		}
		if flat >= 0 && flat < len(r.Data) && !r.Data[flat].IsSkip() {
			out = append(out, r.Data[flat])
		}
		// increment coord, first axis fastest
		for j := 0; j < len(coord); j++ {
			coord[j]++
			if coord[j] < shape[j] {
				break
			}
			coord[j] = 0
		}
	}
	return out
}

// ConcatAlong builds a new 1-D Reference along axisName by concatenating the
// flattened, skip-filtered contents of each input in order (used by
// or_across when collapsing to a single axis, and by the quantifier to
// align per-iteration outputs on the base-element axis).
func ConcatAlong(axisName string, refs ...Reference) Reference {
	var data []Cell
	for _, r := range refs {
		data = append(data, r.Flatten()...)
	}
	return Reference{Axes: []string{axisName}, Shape: []int{len(data)}, Data: data}
}

// Stack wraps refs under a new leading axis of length len(refs), preserving
// each input's own axes as trailing axes (all inputs must share the same
// axes/shape). Used by or_across's "stack mode" (§4.5), which keeps tensor
// structure intact and does not filter skip sentinels.
func Stack(axisName string, refs ...Reference) (Reference, error) {
	if len(refs) == 0 {
		return Reference{Axes: []string{axisName}, Shape: []int{0}}, nil
	}
	base := refs[0].Signature()
	for _, r := range refs[1:] {
		if !r.Signature().Equal(base) {
			return Reference{}, errAxisMismatch("stack", 0, 0)
		}
	}
	axes := append([]string{axisName}, refs[0].Axes...)
	shape := append([]int{len(refs)}, refs[0].Shape...)
	var data []Cell
	for _, r := range refs {
		data = append(data, r.Data...)
	}
	return Reference{Axes: axes, Shape: shape, Data: data}, nil
}
