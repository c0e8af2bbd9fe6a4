// Package repofile loads the JSON repository file format (concepts.json,
// inferences.json, and an optional inputs.json) into a concept.Repo and an
// inference.Repo, the on-disk shape authoring tools produce.
package repofile

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/flowstate/orchestrator/core/concept"
	"github.com/flowstate/orchestrator/core/dispatch/schema"
	"github.com/flowstate/orchestrator/core/inference"
)

// conceptRecord mirrors one concepts.json entry.
type conceptRecord struct {
	ID                 string   `json:"id"`
	ConceptName        string   `json:"concept_name"`
	Type               string   `json:"type"`
	AxisName           string   `json:"axis_name"`
	Description        string   `json:"description"`
	ReferenceData      any      `json:"reference_data"`
	ReferenceAxisNames []string `json:"reference_axis_names"`
	IsGroundConcept    bool     `json:"is_ground_concept"`
	IsFinalConcept     bool     `json:"is_final_concept"`
	IsInvariant        bool     `json:"is_invariant"`
}

// inferenceRecord mirrors one inferences.json entry.
type inferenceRecord struct {
	ID              string         `json:"id"`
	InferenceSeq    string         `json:"inference_sequence"`
	ConceptToInfer  string         `json:"concept_to_infer"`
	FunctionConcept string         `json:"function_concept"`
	ValueConcepts   []string       `json:"value_concepts"`
	ContextConcepts []string       `json:"context_concepts"`
	FlowInfo        flowInfoRecord `json:"flow_info"`

	StartWithoutValue            bool `json:"start_without_value"`
	StartWithoutValueOnlyOnce    bool `json:"start_without_value_only_once"`
	StartWithoutFunction         bool `json:"start_without_function"`
	StartWithoutFunctionOnlyOnce bool `json:"start_without_function_only_once"`

	WorkingInterpretation map[string]any `json:"working_interpretation"`
}

type flowInfoRecord struct {
	FlowIndex string   `json:"flow_index"`
	Support   []string `json:"support"`
	Target    []string `json:"target"`
}

// inputRecord is one inputs.json value: either a bare literal or an
// object carrying data alongside explicit axis names.
type inputRecord struct {
	Data any      `json:"data"`
	Axes []string `json:"axes"`
}

// LoadConcepts decodes a concepts.json file into a *concept.Repo.
// ReferenceData, when present, is attached via concept.Repo.AddReference so
// a bare scalar is list-wrapped the same way a later inputs.json entry would
// be.
func LoadConcepts(path string) (*concept.Repo, error) {
	var records []conceptRecord
	if err := readJSON(path, &records); err != nil {
		return nil, fmt.Errorf("repofile: load concepts: %w", err)
	}

	entries := make([]*concept.Entry, 0, len(records))
	for _, rec := range records {
		id := rec.ID
		if id == "" {
			id = uuid.NewString()
		}
		entries = append(entries, &concept.Entry{
			ID:              id,
			Name:            rec.ConceptName,
			Type:            concept.Type(rec.Type),
			Context:         rec.Description,
			AxisName:        rec.AxisName,
			IsGroundConcept: rec.IsGroundConcept,
			IsFinalConcept:  rec.IsFinalConcept,
			IsInvariant:     rec.IsInvariant,
		})
	}

	repo, err := concept.NewRepo(entries)
	if err != nil {
		return nil, fmt.Errorf("repofile: build concept repo: %w", err)
	}

	for _, rec := range records {
		if rec.ReferenceData == nil {
			continue
		}
		data, err := FlattenLiteral(rec.ReferenceData)
		if err != nil {
			return nil, fmt.Errorf("repofile: concept %q reference_data: %w", rec.ConceptName, err)
		}
		if err := repo.AddReference(rec.ConceptName, data, rec.ReferenceAxisNames); err != nil {
			return nil, fmt.Errorf("repofile: concept %q: %w", rec.ConceptName, err)
		}
	}
	return repo, nil
}

// LoadInferences decodes an inferences.json file into an *inference.Repo,
// resolving every concept name reference against concepts. When schemas is
// non-nil, every entry's working_interpretation is validated against the
// schema registered for its sequence kind before the repo is returned (§9:
// "validate at construction time").
func LoadInferences(path string, concepts *concept.Repo, schemas *schema.Registry) (*inference.Repo, error) {
	var records []inferenceRecord
	if err := readJSON(path, &records); err != nil {
		return nil, fmt.Errorf("repofile: load inferences: %w", err)
	}

	raws := make([]inference.Raw, 0, len(records))
	for _, rec := range records {
		id := rec.ID
		if id == "" {
			id = uuid.NewString()
		}
		raws = append(raws, inference.Raw{
			ID:              id,
			Sequence:        inference.Sequence(rec.InferenceSeq),
			ConceptToInfer:  rec.ConceptToInfer,
			FunctionConcept: rec.FunctionConcept,
			ValueConcepts:   rec.ValueConcepts,
			ContextConcepts: rec.ContextConcepts,
			FlowIndex:       rec.FlowInfo.FlowIndex,
			Support:         rec.FlowInfo.Support,
			Target:          rec.FlowInfo.Target,

			StartWithoutValue:            rec.StartWithoutValue,
			StartWithoutValueOnlyOnce:    rec.StartWithoutValueOnlyOnce,
			StartWithoutFunction:         rec.StartWithoutFunction,
			StartWithoutFunctionOnlyOnce: rec.StartWithoutFunctionOnlyOnce,

			WorkingInterpretation: rec.WorkingInterpretation,
		})
	}

	repo, err := inference.NewRepo(raws, concepts)
	if err != nil {
		return nil, fmt.Errorf("repofile: build inference repo: %w", err)
	}
	if schemas != nil {
		if err := schema.ValidateAll(schemas, repo.All()); err != nil {
			return nil, fmt.Errorf("repofile: %w", err)
		}
	}
	return repo, nil
}

// schemaDoc is one schemas.json entry: a sequence kind tag paired with the
// JSON Schema document its working_interpretation must satisfy.
type schemaDoc struct {
	Sequence string `json:"inference_sequence"`
	Schema   any    `json:"schema"`
}

// LoadSchemas decodes an optional schemas.json file into a *schema.Registry.
// A missing or empty path yields a nil registry, which LoadInferences treats
// as "validate nothing" — not every repository file set opts into
// working_interpretation validation.
func LoadSchemas(path string) (*schema.Registry, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	var docs []schemaDoc
	if err := readJSON(path, &docs); err != nil {
		return nil, fmt.Errorf("repofile: load schemas: %w", err)
	}

	byTag := make(map[inference.Sequence]any, len(docs))
	for _, d := range docs {
		byTag[inference.Sequence(d.Sequence)] = d.Schema
	}
	registry, err := schema.NewRegistry(byTag)
	if err != nil {
		return nil, fmt.Errorf("repofile: build schema registry: %w", err)
	}
	return registry, nil
}

// LoadInputs decodes an optional inputs.json file and seeds concepts via
// concept.Repo.AddReference. A missing file is not an error: inputs.json is
// optional (§6.1).
func LoadInputs(path string, concepts *concept.Repo) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	raw := make(map[string]json.RawMessage)
	if err := readJSON(path, &raw); err != nil {
		return fmt.Errorf("repofile: load inputs: %w", err)
	}

	for name, msg := range raw {
		var wrapped inputRecord
		if err := json.Unmarshal(msg, &wrapped); err == nil && wrapped.Data != nil {
			data, err := FlattenLiteral(wrapped.Data)
			if err != nil {
				return fmt.Errorf("repofile: input %q: %w", name, err)
			}
			if err := concepts.AddReference(name, data, wrapped.Axes); err != nil {
				return fmt.Errorf("repofile: input %q: %w", name, err)
			}
			continue
		}

		var literal any
		if err := json.Unmarshal(msg, &literal); err != nil {
			return fmt.Errorf("repofile: input %q: %w", name, err)
		}
		data, err := FlattenLiteral(literal)
		if err != nil {
			return fmt.Errorf("repofile: input %q: %w", name, err)
		}
		if err := concepts.AddReference(name, data, nil); err != nil {
			return fmt.Errorf("repofile: input %q: %w", name, err)
		}
	}
	return nil
}

// FlattenLiteral turns a JSON-decoded nested-list literal into the flat
// []any tensor.Wrap expects. A bare scalar becomes a single-element slice.
// Exported so internal/httpapi's concept-override handler can build a
// Reference from a request body the same way a concepts.json/inputs.json
// literal is flattened.
func FlattenLiteral(v any) ([]any, error) {
	list, ok := v.([]any)
	if !ok {
		return []any{v}, nil
	}
	out := make([]any, 0, len(list))
	for _, item := range list {
		if nested, ok := item.([]any); ok {
			flat, err := FlattenLiteral(nested)
			if err != nil {
				return nil, err
			}
			out = append(out, flat...)
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func readJSON(path string, dest any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
