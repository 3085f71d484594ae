package snapshot

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"fabula/internal/world"
)

func newStore(t *testing.T, keep int) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "data", "world.db"), keep)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleWorld(tick int) *world.World {
	return &world.World{
		Name: "demo",
		Tick: tick,
		Entities: []*world.Entity{
			{ID: "square", Kind: world.KindLocation, Name: "Square"},
			{ID: "alice", Kind: world.KindCharacter, Name: "Alice", Location: "square",
				Ext: map[string]any{
					"intention":    []string{"r1", "r2"},
					"total_tokens": 42,
				}},
		},
	}
}

func TestSaveAndLoadLatest(t *testing.T) {
	s := newStore(t, 0)

	require.NoError(t, s.Save(sampleWorld(1)))
	require.NoError(t, s.Save(sampleWorld(2)))

	w, err := s.LoadLatest()
	require.NoError(t, err)
	require.Equal(t, 2, w.Tick)
	require.Equal(t, "demo", w.Name)

	alice := w.Entity("alice")
	require.NotNil(t, alice)
	require.Equal(t, "square", alice.Location)
	// JSON round trip: chain comes back as []any of strings.
	chain, ok := alice.Ext["intention"].([]any)
	require.True(t, ok, "ext chain shape: %T", alice.Ext["intention"])
	require.Len(t, chain, 2)
	require.Equal(t, "r1", chain[0])
}

func TestLoadTickAndMissing(t *testing.T) {
	s := newStore(t, 0)
	require.NoError(t, s.Save(sampleWorld(5)))

	w, err := s.LoadTick(5)
	require.NoError(t, err)
	require.Equal(t, 5, w.Tick)

	_, err = s.LoadTick(99)
	require.True(t, errors.Is(err, ErrNoSnapshot))

	empty := newStore(t, 0)
	_, err = empty.LoadLatest()
	require.True(t, errors.Is(err, ErrNoSnapshot))
}

func TestHistoryPruning(t *testing.T) {
	s := newStore(t, 3)
	for tick := 1; tick <= 10; tick++ {
		require.NoError(t, s.Save(sampleWorld(tick)))
	}

	infos, err := s.History(0)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	require.Equal(t, 10, infos[0].Tick)
	require.Equal(t, 8, infos[2].Tick)

	// Pruned ticks are gone.
	_, err = s.LoadTick(1)
	require.True(t, errors.Is(err, ErrNoSnapshot))
}

func TestSaveReplacesSameTick(t *testing.T) {
	s := newStore(t, 0)
	w := sampleWorld(3)
	require.NoError(t, s.Save(w))

	w.Entity("alice").Location = ""
	w.Entities = w.Entities[:1]
	require.NoError(t, s.Save(w))

	got, err := s.LoadTick(3)
	require.NoError(t, err)
	require.Len(t, got.Entities, 1)
}
