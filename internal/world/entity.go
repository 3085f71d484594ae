// Package world defines the simulation state: characters and locations with a
// single well-defined extension map used by the orchestration core for chain
// state and usage counters. Core code never reads entity fields beyond the ID
// and the extension map.
package world

import "fmt"

// Kind discriminates entity types.
type Kind string

const (
	KindCharacter Kind = "character"
	KindLocation  Kind = "location"
)

// Entity is a character or location record. Ext holds orchestration
// bookkeeping: response chains keyed by chain type and usage counters.
// Everything in Ext must stay JSON-serializable for snapshotting.
type Entity struct {
	ID          string         `json:"id" yaml:"id"`
	Kind        Kind           `json:"kind" yaml:"kind"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Location    string         `json:"location,omitempty" yaml:"location,omitempty"`
	Traits      []string       `json:"traits,omitempty" yaml:"traits,omitempty"`
	Memories    []string       `json:"memories,omitempty" yaml:"memories,omitempty"`
	Ext         map[string]any `json:"ext,omitempty" yaml:"ext,omitempty"`
}

// EnsureExt returns the extension map, creating it on first use.
func (e *Entity) EnsureExt() map[string]any {
	if e.Ext == nil {
		e.Ext = make(map[string]any)
	}
	return e.Ext
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	cp := *e
	if e.Traits != nil {
		cp.Traits = append([]string(nil), e.Traits...)
	}
	if e.Memories != nil {
		cp.Memories = append([]string(nil), e.Memories...)
	}
	if e.Ext != nil {
		cp.Ext = deepCopyMap(e.Ext)
	}
	return &cp
}

func (e *Entity) String() string {
	return fmt.Sprintf("%s(%s)", e.Kind, e.ID)
}

// deepCopyMap copies a JSON-shaped map: nested maps, slices, and scalars.
func deepCopyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = deepCopyValue(v)
	}
	return dst
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
