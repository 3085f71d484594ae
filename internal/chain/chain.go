// Package chain manages per-entity bounded response chains: the rolling list
// of prior provider response ids that gives an entity short-term context.
// The manager is stateless; all chain state lives in the entity extension
// maps supplied at construction.
package chain

import (
	"strings"

	"fabula/internal/logging"
	"fabula/internal/world"
)

// Manager resolves entity keys to chains. Construct one per entity subset;
// it indexes entities by id once for O(1) lookup and holds no other state.
type Manager struct {
	byID map[string]*world.Entity
}

// NewManager indexes the given entities.
func NewManager(entities []*world.Entity) *Manager {
	byID := make(map[string]*world.Entity, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
	}
	return &Manager{byID: byID}
}

// ParseKey splits an entity key of the form "{chain-type}:{entity-id}" on the
// first separator. The entity id may itself contain separators.
func ParseKey(key string) (chainType, entityID string, ok bool) {
	i := strings.Index(key, ":")
	if i <= 0 || i == len(key)-1 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

// Previous returns the current chain head for the key, or false if the
// entity or its chain is absent. Safe to call with unknown keys.
func (m *Manager) Previous(key string) (string, bool) {
	chainType, entityID, ok := ParseKey(key)
	if !ok {
		return "", false
	}
	e, ok := m.byID[entityID]
	if !ok || e.Ext == nil {
		return "", false
	}
	ids := chainOf(e.Ext, chainType)
	if len(ids) == 0 {
		return "", false
	}
	return ids[len(ids)-1], true
}

// Confirm appends newID to the key's chain, bounded to depth entries.
// Returns the evicted oldest id when the append overflowed the bound, or ""
// otherwise. Depth 0 never touches chain storage. Unknown keys are a no-op.
func (m *Manager) Confirm(key, newID string, depth int) (evicted string) {
	if depth <= 0 || newID == "" {
		return ""
	}
	chainType, entityID, ok := ParseKey(key)
	if !ok {
		return ""
	}
	e, ok := m.byID[entityID]
	if !ok {
		logging.Get(logging.CategoryChain).Debugf("confirm for unknown entity %q ignored", entityID)
		return ""
	}

	ext := e.EnsureExt()
	ids := chainOf(ext, chainType)
	if len(ids) >= depth {
		evicted = ids[0]
		ids = ids[1:]
	}
	ids = append(ids, newID)
	ext[chainType] = ids
	return evicted
}

// chainOf reads a chain from the extension map, tolerating the []any shape
// that a JSON snapshot round trip produces.
func chainOf(ext map[string]any, chainType string) []string {
	switch v := ext[chainType].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
