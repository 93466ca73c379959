// Package sqlitestore keeps ordered byte stores in a SQLite database. All
// stores of a System share one table keyed by (store, key); SQLite compares
// BLOBs with memcmp, which gives the unsigned byte order stores require.
package sqlitestore

import (
	"database/sql"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	_ "modernc.org/sqlite"

	"github.com/ChinmayNoob/histkv/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	store TEXT NOT NULL,
	k     BLOB NOT NULL,
	v     BLOB NOT NULL,
	PRIMARY KEY (store, k)
) WITHOUT ROWID;`

// System is a storage system backed by one SQLite database file.
type System struct {
	mu sync.RWMutex
	db *sql.DB
}

var _ store.StorageSystem = (*System)(nil)

// Open opens (or creates) the database at path. Use ":memory:" for a
// throwaway database.
func Open(path string) (*System, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, store.Wrap(fmt.Sprintf("open sqlite %q", path), err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, store.Wrap("set WAL mode", multierr.Append(err, db.Close()))
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, store.Wrap("create schema", multierr.Append(err, db.Close()))
	}
	return &System{db: db}, nil
}

func (s *System) OpenStore(name string) (store.Store, error) {
	return &Store{sys: s, name: name}, nil
}

func (s *System) RemoveStore(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("DELETE FROM kv WHERE store = ?", name)
	return store.Wrap("remove store", err)
}

func (s *System) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return store.Wrap("close", s.db.Close())
}
