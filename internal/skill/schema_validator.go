package skill

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaValidator validates call parameters against a skill's declared
// JSON-schema ahead of the skill's own Validate. Compiled schemas are cached
// by skill name since Metadata().Parameters is fixed for the catalog's
// lifetime.
type SchemaValidator struct {
	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

// NewSchemaValidator returns an empty validator; schemas are compiled
// lazily on first use.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{schemas: make(map[string]*jsonschema.Schema)}
}

// Validate checks params against meta.Parameters. A skill declaring no
// schema (empty Parameters) always passes — schema enforcement is additive,
// not a replacement for a skill with no declared shape.
func (v *SchemaValidator) Validate(meta Metadata, params map[string]any) (bool, string) {
	if len(meta.Parameters) == 0 {
		return true, ""
	}

	schema, err := v.compiled(meta)
	if err != nil {
		return false, fmt.Sprintf("schema error: %s", err)
	}

	// jsonschema validates against Go values produced by encoding/json, not
	// arbitrary map[string]any with non-JSON types, so round-trip through
	// JSON first.
	raw, err := json.Marshal(params)
	if err != nil {
		return false, fmt.Sprintf("schema error: %s", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false, fmt.Sprintf("schema error: %s", err)
	}

	if err := schema.Validate(doc); err != nil {
		return false, err.Error()
	}
	return true, ""
}

func (v *SchemaValidator) compiled(meta Metadata) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if schema, ok := v.schemas[meta.Name]; ok {
		return schema, nil
	}

	var doc any
	if err := json.Unmarshal(meta.Parameters, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema for %s: %w", meta.Name, err)
	}

	c := jsonschema.NewCompiler()
	resourceName := meta.Name + ".json"
	if err := c.AddResource(resourceName, doc); err != nil {
		return nil, fmt.Errorf("add schema resource for %s: %w", meta.Name, err)
	}
	schema, err := c.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", meta.Name, err)
	}

	v.schemas[meta.Name] = schema
	return schema, nil
}
