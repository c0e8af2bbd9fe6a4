// Package inference implements InferenceRepo, the keyed store of inference
// steps the scheduler dispatches (§3 InferenceEntry, §4.2 InferenceRepo).
package inference

import (
	"errors"
	"fmt"

	"github.com/flowstate/orchestrator/core/concept"
	"github.com/flowstate/orchestrator/core/flowindex"
)

// Sequence is the tag naming which dispatch-contract arm an entry uses
// (§4.3). The scheduler never switches on Sequence itself; it resolves the
// corresponding Kind from a registry (see package dispatch) and defers all
// sequence-specific behavior to it.
type Sequence string

const (
	SequenceSimple                   Sequence = "simple"
	SequenceImperative               Sequence = "imperative"
	SequenceImperativePython         Sequence = "imperative_python"
	SequenceImperativePythonIndirect Sequence = "imperative_python_indirect"
	SequenceImperativeInComposition  Sequence = "imperative_in_composition"
	SequenceJudgement                Sequence = "judgement"
	SequenceJudgementPython          Sequence = "judgement_python"
	SequenceJudgementInComposition   Sequence = "judgement_in_composition"
	SequenceGrouping                 Sequence = "grouping"
	SequenceQuantifying              Sequence = "quantifying"
	SequenceAssigning                Sequence = "assigning"
	SequenceTiming                   Sequence = "timing"
)

// FlowInfo carries the scheduling metadata attached to an inference (§3).
type FlowInfo struct {
	FlowIndex flowindex.Index
	// Support and Target are informational cross-references from the
	// authoring tool (§6.1 inferences.json); the core scheduler does not
	// consume them directly — descendant relationships are derived from
	// FlowIndex alone (§4.7.5).
	Support []string
	Target  []string
}

// Entry is a single inference record (§3 InferenceEntry).
type Entry struct {
	ID              string
	Sequence        Sequence
	ConceptToInfer  *concept.Entry
	FunctionConcept *concept.Entry
	ValueConcepts   []*concept.Entry
	ContextConcepts []*concept.Entry
	FlowInfo        FlowInfo

	StartWithoutValue            bool
	StartWithoutValueOnlyOnce    bool
	StartWithoutFunction         bool
	StartWithoutFunctionOnlyOnce bool

	// WorkingInterpretation is forwarded verbatim to the sequence kind's
	// invoke function; the scheduler never interprets it (§3, §9).
	WorkingInterpretation map[string]any
}

// ErrUnknownConcept is returned at construction when an entry references a
// concept name absent from the supplied ConceptRepo (§4.2, §7.1).
var ErrUnknownConcept = errors.New("inference: unknown concept")

// ErrDuplicateFlowIndex is returned at construction when two entries share a
// flow index.
var ErrDuplicateFlowIndex = errors.New("inference: duplicate flow index")

// Repo is the keyed store of inference entries (§4.2), indexed by flow index.
type Repo struct {
	byFlowIndex map[string]*Entry
	entries     []*Entry
}

// Raw is the wire-shape an inference is decoded into before concept name
// references are resolved against a concept.Repo (mirrors inferences.json,
// §6.1).
type Raw struct {
	ID              string
	Sequence        Sequence
	ConceptToInfer  string
	FunctionConcept string
	ValueConcepts   []string
	ContextConcepts []string
	FlowIndex       string
	Support         []string
	Target          []string

	StartWithoutValue            bool
	StartWithoutValueOnlyOnce    bool
	StartWithoutFunction         bool
	StartWithoutFunctionOnlyOnce bool

	WorkingInterpretation map[string]any
}

// NewRepo resolves raw inference records against a concept.Repo, failing
// fast on unknown concept names or malformed flow indices (§4.2, §7.1).
func NewRepo(raws []Raw, concepts *concept.Repo) (*Repo, error) {
	r := &Repo{byFlowIndex: make(map[string]*Entry, len(raws))}
	for _, raw := range raws {
		e, err := resolve(raw, concepts)
		if err != nil {
			return nil, err
		}
		key := e.FlowInfo.FlowIndex.String()
		if _, exists := r.byFlowIndex[key]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateFlowIndex, key)
		}
		r.byFlowIndex[key] = e
		r.entries = append(r.entries, e)
	}
	return r, nil
}

func resolve(raw Raw, concepts *concept.Repo) (*Entry, error) {
	idx, err := flowindex.Parse(raw.FlowIndex)
	if err != nil {
		return nil, err
	}
	toInfer := concepts.Get(raw.ConceptToInfer)
	if toInfer == nil {
		return nil, fmt.Errorf("%w: concept_to_infer %q (inference %s)", ErrUnknownConcept, raw.ConceptToInfer, raw.ID)
	}
	var fn *concept.Entry
	if raw.FunctionConcept != "" {
		fn = concepts.Get(raw.FunctionConcept)
		if fn == nil {
			return nil, fmt.Errorf("%w: function_concept %q (inference %s)", ErrUnknownConcept, raw.FunctionConcept, raw.ID)
		}
	}
	values, err := resolveAll(raw.ValueConcepts, concepts, raw.ID, "value_concepts")
	if err != nil {
		return nil, err
	}
	ctxs, err := resolveAll(raw.ContextConcepts, concepts, raw.ID, "context_concepts")
	if err != nil {
		return nil, err
	}
	return &Entry{
		ID:              raw.ID,
		Sequence:        raw.Sequence,
		ConceptToInfer:  toInfer,
		FunctionConcept: fn,
		ValueConcepts:   values,
		ContextConcepts: ctxs,
		FlowInfo: FlowInfo{
			FlowIndex: idx,
			Support:   raw.Support,
			Target:    raw.Target,
		},
		StartWithoutValue:            raw.StartWithoutValue,
		StartWithoutValueOnlyOnce:    raw.StartWithoutValueOnlyOnce,
		StartWithoutFunction:         raw.StartWithoutFunction,
		StartWithoutFunctionOnlyOnce: raw.StartWithoutFunctionOnlyOnce,
		WorkingInterpretation:        raw.WorkingInterpretation,
	}, nil
}

func resolveAll(names []string, concepts *concept.Repo, entryID, field string) ([]*concept.Entry, error) {
	out := make([]*concept.Entry, 0, len(names))
	for _, n := range names {
		e := concepts.Get(n)
		if e == nil {
			return nil, fmt.Errorf("%w: %s %q (inference %s)", ErrUnknownConcept, field, n, entryID)
		}
		out = append(out, e)
	}
	return out, nil
}

// GetByFlowIndex looks up an entry by its dotted flow-index string.
func (r *Repo) GetByFlowIndex(flowIndex string) *Entry {
	return r.byFlowIndex[flowIndex]
}

// All returns every inference entry in construction order.
func (r *Repo) All() []*Entry {
	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
