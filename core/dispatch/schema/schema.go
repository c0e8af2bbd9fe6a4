// Package schema validates an inference's working_interpretation map against
// a JSON Schema registered for its sequence kind. Validation runs at
// construction time, not at dispatch time, so a malformed working
// interpretation is a configuration error caught before the run starts (§9).
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/flowstate/orchestrator/core/inference"
)

// Registry maps a sequence kind tag to the compiled schema its
// working_interpretation must satisfy. A tag with no registered schema is
// left unvalidated; not every sequence kind requires one.
type Registry struct {
	schemas map[inference.Sequence]*jsonschema.Schema
}

// NewRegistry compiles one schema document per entry in docs. Each document
// must be a JSON Schema already decoded into a Go value (map[string]any or
// equivalent), matching the decoded-document shape jsonschema.Compiler
// expects.
func NewRegistry(docs map[inference.Sequence]any) (*Registry, error) {
	r := &Registry{schemas: make(map[inference.Sequence]*jsonschema.Schema, len(docs))}
	for tag, doc := range docs {
		c := jsonschema.NewCompiler()
		resourceName := string(tag) + ".json"
		if err := c.AddResource(resourceName, doc); err != nil {
			return nil, fmt.Errorf("schema: add resource for %q: %w", tag, err)
		}
		compiled, err := c.Compile(resourceName)
		if err != nil {
			return nil, fmt.Errorf("schema: compile for %q: %w", tag, err)
		}
		r.schemas[tag] = compiled
	}
	return r, nil
}

// Validate checks workingInterpretation against the schema registered for
// tag. A tag with no registered schema always validates.
func (r *Registry) Validate(tag inference.Sequence, workingInterpretation map[string]any) error {
	schema, ok := r.schemas[tag]
	if !ok {
		return nil
	}
	// jsonschema validates decoded JSON values; round-trip through
	// encoding/json so numeric types and nested maps match what the compiler
	// expects from json.Unmarshal.
	raw, err := json.Marshal(workingInterpretation)
	if err != nil {
		return fmt.Errorf("schema: marshal working_interpretation: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("schema: unmarshal working_interpretation: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("schema: working_interpretation for %q: %w", tag, err)
	}
	return nil
}

// ValidateAll validates every entry's working_interpretation, returning the
// first failure. Intended to run once during InferenceRepo construction.
func ValidateAll(reg *Registry, entries []*inference.Entry) error {
	for _, e := range entries {
		if err := reg.Validate(e.Sequence, e.WorkingInterpretation); err != nil {
			return fmt.Errorf("schema: inference %s: %w", e.ID, err)
		}
	}
	return nil
}
