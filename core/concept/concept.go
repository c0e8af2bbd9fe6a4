// Package concept implements ConceptRepo, the keyed store of typed data cells
// the rest of the scheduler reads and writes (§3 Concept, §4.1 ConceptRepo).
package concept

import (
	"errors"
	"fmt"

	"github.com/flowstate/orchestrator/core/tensor"
)

// Type is the closed set of concept type tags from §3/§6.1. The scheduler
// treats these as opaque; only sequence-kind implementations interpret them.
type Type string

const (
	TypeObject      Type = "{}"
	TypeFunction    Type = "::"
	TypeGrouping    Type = "&"
	TypeQuantifying Type = "*"
	TypeAssigning   Type = "$"
	TypeTiming      Type = "@"
	TypeQuery       Type = "?"
)

// Entry is a single concept record (§3 Concept).
type Entry struct {
	// ID is a stable identifier, independent of Name.
	ID string
	// Name is unique within a Repo.
	Name string
	// Type is one of the tags above.
	Type Type
	// Context is a free-form description of the concept's role.
	Context string
	// AxisName, when set, names the tensor axis this concept's reference is
	// indexed on when used as a loop base or grouping key.
	AxisName string
	// Reference is the concept's current tensor payload. Empty until seeded
	// or produced by an inference.
	Reference tensor.Reference
	// IsGroundConcept marks a concept whose value is supplied externally; it
	// is never reset by the quantifying-reset protocol (§4.7.5) and is
	// promoted to complete at orchestrator initialization (§4.7.1 step 3).
	IsGroundConcept bool
	// IsFinalConcept marks a concept reported in the orchestrator's final
	// output (§4.7.6 return value).
	IsFinalConcept bool
	// IsInvariant mirrors the JSON schema's is_invariant flag; the core does
	// not interpret it (forwarded verbatim for sequence-kind bodies that do).
	IsInvariant bool
}

// ErrDuplicateName is returned by NewRepo when two entries share a name.
var ErrDuplicateName = errors.New("concept: duplicate concept name")

// ErrNotFound is returned by AddReference when the named concept is absent.
var ErrNotFound = errors.New("concept: not found")

// Repo is the keyed store of concept entries (§4.1).
type Repo struct {
	byName map[string]*Entry
	order  []string
}

// NewRepo constructs a Repo from a list of entries. Duplicate names are a
// fatal construction error (§4.1, §7.1).
func NewRepo(entries []*Entry) (*Repo, error) {
	r := &Repo{byName: make(map[string]*Entry, len(entries))}
	for _, e := range entries {
		if _, exists := r.byName[e.Name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, e.Name)
		}
		r.byName[e.Name] = e
		r.order = append(r.order, e.Name)
	}
	return r, nil
}

// Get returns the named concept, or nil if it does not exist.
func (r *Repo) Get(name string) *Entry {
	return r.byName[name]
}

// All returns every concept entry in construction order.
func (r *Repo) All() []*Entry {
	out := make([]*Entry, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.byName[n])
	}
	return out
}

// AddReference attaches a Reference built from data to the named concept,
// list-wrapping a bare scalar when axes are omitted (§4.1).
func (r *Repo) AddReference(name string, data []any, axes []string) error {
	e := r.byName[name]
	if e == nil {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	e.Reference = tensor.Wrap(data, axes)
	return nil
}
