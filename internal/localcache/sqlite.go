package localcache

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ganot/promptsync/internal/sqlite"
)

// SQLiteStore persists cache entries in a local SQLite file so they survive
// process restarts.
type SQLiteStore struct {
	db  *sqlite.DB
	now func() time.Time
}

// NewSQLiteStore creates the cache table if needed and returns a Store on db.
func NewSQLiteStore(db *sqlite.DB) (*SQLiteStore, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS local_cache (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create local_cache table: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Get returns the value for key.
func (s *SQLiteStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM local_cache WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read cache key %q: %w", key, err)
	}
	return value, true, nil
}

// Set writes value under key, replacing any previous value.
func (s *SQLiteStore) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO local_cache (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write cache key %q: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (s *SQLiteStore) Remove(key string) error {
	if _, err := s.db.Exec(`DELETE FROM local_cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to remove cache key %q: %w", key, err)
	}
	return nil
}

// UpdatedAt returns when key was last written.
func (s *SQLiteStore) UpdatedAt(key string) (time.Time, bool, error) {
	var updatedAt time.Time
	err := s.db.QueryRow(`SELECT updated_at FROM local_cache WHERE key = ?`, key).Scan(&updatedAt)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read cache key %q: %w", key, err)
	}
	return updatedAt, true, nil
}
