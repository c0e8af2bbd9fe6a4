// Package flowindex parses and compares the dotted flow-index strings used to
// order the waitlist and to derive quantifying-loop descendant relationships
// (§3 WaitlistItem, §9 "Flow-index parsing").
package flowindex

import (
	"fmt"
	"strconv"
	"strings"
)

// Index is a flow index parsed once into a tuple of integers so ordering and
// descendant checks never fall back to string comparison.
type Index struct {
	raw  string
	path []int
}

// Parse converts a dotted numeric string like "1.1.2.3" into an Index.
// Returns an error if any segment is not a non-negative integer or the
// string is empty — a configuration error per §7.1.
func Parse(s string) (Index, error) {
	if s == "" {
		return Index{}, fmt.Errorf("flowindex: empty flow index")
	}
	parts := strings.Split(s, ".")
	path := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Index{}, fmt.Errorf("flowindex: invalid segment %q in %q", p, s)
		}
		path[i] = n
	}
	return Index{raw: s, path: path}, nil
}

// MustParse is Parse but panics on error; used only for literal test fixtures.
func MustParse(s string) Index {
	idx, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return idx
}

// String returns the original dotted representation.
func (i Index) String() string { return i.raw }

// Compare returns -1, 0, or 1 comparing i and other lexicographically over
// their integer path, per §3: "1" < "1.1" < "1.1.2" < "1.2" < "2". A shorter
// path that is a strict prefix of a longer one sorts first.
func (i Index) Compare(other Index) int {
	n := len(i.path)
	if len(other.path) < n {
		n = len(other.path)
	}
	for k := 0; k < n; k++ {
		if i.path[k] != other.path[k] {
			if i.path[k] < other.path[k] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(i.path) < len(other.path):
		return -1
	case len(i.path) > len(other.path):
		return 1
	default:
		return 0
	}
}

// Less reports i < other, for use with sort.Slice.
func (i Index) Less(other Index) bool { return i.Compare(other) < 0 }

// IsDescendantOf reports whether i is a strict descendant of parent, i.e.
// i's path begins with parent's full path followed by at least one more
// segment (§4.7.5: "flow_index begins with P + '.'").
func (i Index) IsDescendantOf(parent Index) bool {
	if len(i.path) <= len(parent.path) {
		return false
	}
	for k := range parent.path {
		if i.path[k] != parent.path[k] {
			return false
		}
	}
	return true
}

// IsZero reports whether the Index was never successfully parsed.
func (i Index) IsZero() bool { return i.raw == "" }
