// Package snapshot persists whole-world snapshots to SQLite. The orchestrator
// signals "safe to persist" by returning from a committed tick; callers save
// only at that point, so every stored row is a consistent world.
package snapshot

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"fabula/internal/logging"
	"fabula/internal/world"
)

// ErrNoSnapshot is returned when the store holds no worlds yet.
var ErrNoSnapshot = errors.New("no snapshot stored")

// Store is a SQLite-backed snapshot archive with bounded history.
type Store struct {
	db          *sql.DB
	mu          sync.Mutex
	keepHistory int
}

// Info describes one stored snapshot.
type Info struct {
	Tick    int
	SavedAt time.Time
}

// NewStore opens (or creates) the snapshot database.
func NewStore(path string, keepHistory int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.Get(logging.CategorySnapshot).Debugf("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.Get(logging.CategorySnapshot).Debugf("failed to set journal_mode=WAL: %v", err)
	}

	s := &Store{db: db, keepHistory: keepHistory}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	tick     INTEGER PRIMARY KEY,
	saved_at TEXT NOT NULL,
	world    TEXT NOT NULL
);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize snapshot schema: %w", err)
	}
	return nil
}

// Save stores the world under its tick number, replacing any earlier save of
// the same tick, then prunes history beyond the configured bound.
func (s *Store) Save(w *world.World) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("failed to encode world: %w", err)
	}

	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO snapshots (tick, saved_at, world) VALUES (?, ?, ?)",
		w.Tick, time.Now().UTC().Format(time.RFC3339), string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}

	if s.keepHistory > 0 {
		if _, err := s.db.Exec(
			"DELETE FROM snapshots WHERE tick <= (SELECT MAX(tick) FROM snapshots) - ?",
			s.keepHistory,
		); err != nil {
			logging.Get(logging.CategorySnapshot).Warnf("failed to prune history: %v", err)
		}
	}

	logging.Get(logging.CategorySnapshot).Debugf("saved world at tick %d (%d bytes)", w.Tick, len(data))
	return nil
}

// LoadLatest returns the most recent snapshot.
func (s *Store) LoadLatest() (*world.World, error) {
	return s.loadWhere("ORDER BY tick DESC LIMIT 1")
}

// LoadTick returns the snapshot stored for an exact tick.
func (s *Store) LoadTick(tick int) (*world.World, error) {
	return s.loadWhere(fmt.Sprintf("WHERE tick = %d", tick))
}

func (s *Store) loadWhere(clause string) (*world.World, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data string
	err := s.db.QueryRow("SELECT world FROM snapshots " + clause).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var w world.World
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &w, nil
}

// History lists stored snapshots, newest first.
func (s *Store) History(limit int) ([]Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query("SELECT tick, saved_at FROM snapshots ORDER BY tick DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var info Info
		var savedAt string
		if err := rows.Scan(&info.Tick, &savedAt); err != nil {
			return nil, err
		}
		info.SavedAt, _ = time.Parse(time.RFC3339, savedAt)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
