// Package cachestore implements the pluggable IOResult cache named in
// spec.md §6 "Persisted state": an in-process LRU front over a durable
// SQLite-backed second tier.
package cachestore

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"
)

// Entry is the cached payload plus the bookkeeping the read pipeline needs
// to decide whether a hit is still fresh.
type Entry struct {
	Data         []byte
	ContentType  string
	LastModified time.Time
}

// Store is the two-tier cache keyed by
// "<layer-revision>/<tile-key>/<profile-horiz-signature>" (spec.md §6).
type Store struct {
	front *lru.Cache[string, Entry]

	mu   sync.Mutex
	db   *sql.DB
}

// Open returns a Store with an in-process LRU of the given capacity backed
// by a SQLite database at dbPath (":memory:" for an ephemeral cache).
func Open(frontCapacity int, dbPath string) (*Store, error) {
	front, err := lru.New[string, Entry](frontCapacity)
	if err != nil {
		return nil, fmt.Errorf("cachestore: creating LRU: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("cachestore: opening sqlite: %w", err)
	}
	const schema = `CREATE TABLE IF NOT EXISTS tiles (
		key TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		content_type TEXT NOT NULL,
		last_modified INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cachestore: creating schema: %w", err)
	}

	return &Store{front: front, db: db}, nil
}

// Get looks up key, consulting the in-process LRU before falling through to
// SQLite. A SQLite hit is promoted into the LRU.
func (s *Store) Get(key string) (Entry, bool) {
	if e, ok := s.front.Get(key); ok {
		return e, true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT data, content_type, last_modified FROM tiles WHERE key = ?`, key)
	var e Entry
	var lastModified int64
	if err := row.Scan(&e.Data, &e.ContentType, &lastModified); err != nil {
		return Entry{}, false
	}
	e.LastModified = time.Unix(lastModified, 0)
	s.front.Add(key, e)
	return e, true
}

// Put writes key's entry to both tiers.
func (s *Store) Put(key string, e Entry) error {
	s.front.Add(key, e)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO tiles (key, data, content_type, last_modified) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data, content_type = excluded.content_type, last_modified = excluded.last_modified`,
		key, e.Data, e.ContentType, e.LastModified.Unix(),
	)
	if err != nil {
		return fmt.Errorf("cachestore: writing %q: %w", key, err)
	}
	return nil
}

// Close releases the SQLite handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
