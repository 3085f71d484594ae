package world

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// World is one complete simulation snapshot. The tick orchestrator is the
// only component that mutates the live instance; phases work on clones.
type World struct {
	Name     string    `json:"name" yaml:"name"`
	Tick     int       `json:"tick" yaml:"tick"`
	Premise  string    `json:"premise,omitempty" yaml:"premise,omitempty"`
	Entities []*Entity `json:"entities" yaml:"entities"`
}

// Clone returns a deep copy of the world.
func (w *World) Clone() *World {
	cp := &World{
		Name:    w.Name,
		Tick:    w.Tick,
		Premise: w.Premise,
	}
	if w.Entities != nil {
		cp.Entities = make([]*Entity, len(w.Entities))
		for i, e := range w.Entities {
			cp.Entities[i] = e.Clone()
		}
	}
	return cp
}

// Entity returns the entity with the given id, or nil.
func (w *World) Entity(id string) *Entity {
	for _, e := range w.Entities {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// Characters returns all character entities in declaration order.
func (w *World) Characters() []*Entity {
	return w.byKind(KindCharacter)
}

// Locations returns all location entities in declaration order.
func (w *World) Locations() []*Entity {
	return w.byKind(KindLocation)
}

func (w *World) byKind(kind Kind) []*Entity {
	var out []*Entity
	for _, e := range w.Entities {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Validate checks structural invariants: unique ids, known kinds, and
// character locations that resolve to location entities.
func (w *World) Validate() error {
	seen := make(map[string]bool, len(w.Entities))
	locations := make(map[string]bool)
	for _, e := range w.Entities {
		if e.ID == "" {
			return fmt.Errorf("entity with empty id")
		}
		if seen[e.ID] {
			return fmt.Errorf("duplicate entity id %q", e.ID)
		}
		seen[e.ID] = true
		switch e.Kind {
		case KindCharacter:
		case KindLocation:
			locations[e.ID] = true
		default:
			return fmt.Errorf("entity %q has unknown kind %q", e.ID, e.Kind)
		}
	}
	for _, e := range w.Characters() {
		if e.Location != "" && !locations[e.Location] {
			return fmt.Errorf("character %q placed in unknown location %q", e.ID, e.Location)
		}
	}
	return nil
}

// LoadSeed reads an initial world definition from a YAML file.
func LoadSeed(path string) (*World, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read world seed: %w", err)
	}
	var w World
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse world seed: %w", err)
	}
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("invalid world seed: %w", err)
	}
	return &w, nil
}
