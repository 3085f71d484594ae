// Package schema wraps JSON-schema output constraints. A Descriptor is sent
// to the provider to constrain generation and used locally to validate the
// payload that comes back before any phase consumes it.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Descriptor is a named, compiled JSON schema.
type Descriptor struct {
	Name     string
	Raw      json.RawMessage
	compiled *jsonschema.Schema
}

// New compiles a schema descriptor. The name travels with the request so the
// provider can label the structured-output format.
func New(name string, raw json.RawMessage) (*Descriptor, error) {
	if name == "" {
		return nil, fmt.Errorf("schema name required")
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name+".json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to add schema %q: %w", name, err)
	}
	compiled, err := compiler.Compile(name + ".json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %q: %w", name, err)
	}
	return &Descriptor{Name: name, Raw: raw, compiled: compiled}, nil
}

// MustNew compiles a schema or panics. For package-level schema constants.
func MustNew(name string, raw string) *Descriptor {
	d, err := New(name, json.RawMessage(raw))
	if err != nil {
		panic(err)
	}
	return d
}

// Validate checks a JSON payload against the schema.
func (d *Descriptor) Validate(payload json.RawMessage) error {
	if d == nil || d.compiled == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}
	if err := d.compiled.Validate(v); err != nil {
		return fmt.Errorf("payload violates schema %q: %w", d.Name, err)
	}
	return nil
}
