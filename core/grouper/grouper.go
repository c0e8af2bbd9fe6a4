// Package grouper implements the grouping sequence kind's pure substrate:
// and_in and or_across (§4.5).
package grouper

import "github.com/flowstate/orchestrator/core/tensor"

// NoneAxis is the sentinel axis name used to wrap a grouped collection when
// the caller supplies no create_axis (§4.5: "the whole collection is wrapped
// in a single sentinel axis").
const NoneAxis = "_none_axis"

// AndIn produces a Reference of labeled records: for each position along the
// preserved axes, it emits {label_i: value_i} for every input. Inputs are
// cross-producted first when their axes overlap; axes named in byAxes are
// collapsed out of the result. When createAxis is non-empty the result is
// shaped [createAxis] + preserved axes; otherwise the whole collection is
// wrapped under NoneAxis with length 1.
func AndIn(refs []tensor.Reference, labels []string, byAxes []string, createAxis string) (tensor.Reference, error) {
	combined, err := tensor.CrossProduct(refs...)
	if err != nil {
		return tensor.Reference{}, err
	}
	if len(byAxes) > 0 {
		combined = collapse(combined, byAxes)
	}
	labeled := combined.Map(func(c tensor.Cell) tensor.Cell {
		rec, ok := c.Record()
		if !ok {
			return c
		}
		out := make(map[string]any, len(labels))
		for i, label := range labels {
			if v, ok := rec[refKeyFor(i)]; ok {
				out[label] = v
			}
		}
		return tensor.NewRecord(out)
	})
	axis := createAxis
	if axis == "" {
		axis = NoneAxis
	}
	return wrapUnderAxis(labeled, axis), nil
}

// OrAcross concatenates inputs into a flat collection along createAxis (or
// NoneAxis). When byAxes is set, every axis of each input collapses into the
// concatenation (Flatten already walks every axis in column-major order) and
// skip sentinels are filtered (§4.5 "filtered out when an axis is being
// collapsed"); otherwise the tensor structure is kept intact via Stack
// ("stack mode"), preserving skip sentinels.
func OrAcross(refs []tensor.Reference, byAxes []string, createAxis string) (tensor.Reference, error) {
	axis := createAxis
	if axis == "" {
		axis = NoneAxis
	}
	if len(byAxes) > 0 {
		return tensor.ConcatAlong(axis, refs...), nil
	}
	return tensor.Stack(axis, refs...)
}

// collapse drops every axis named in axes from ref via SliceAxis, keeping
// the rest.
func collapse(ref tensor.Reference, axes []string) tensor.Reference {
	drop := make(map[string]bool, len(axes))
	for _, a := range axes {
		drop[a] = true
	}
	var keep []string
	for _, a := range ref.Axes {
		if !drop[a] {
			keep = append(keep, a)
		}
	}
	return ref.SliceAxis(keep...)
}

func wrapUnderAxis(ref tensor.Reference, axis string) tensor.Reference {
	return tensor.Reference{
		Axes:  append([]string{axis}, ref.Axes...),
		Shape: append([]int{1}, ref.Shape...),
		Data:  ref.Data,
	}
}

func refKeyFor(i int) string {
	const digits = "0123456789"
	if i < 10 {
		return "r" + string(digits[i])
	}
	return "r" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	p := len(buf)
	for i > 0 {
		p--
		buf[p] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[p:])
}
