// Package sqlite implements store.Slots on a SQLite database.
package sqlite

import (
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// Slots implements store.Slots using SQLite
type Slots struct {
	db *sql.DB
}

// New opens the database at path and initializes the schema
func New(path string) (*Slots, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// :memory: databases are per connection
	db.SetMaxOpenConns(1)

	s := &Slots{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// initSchema creates the slots table if it doesn't exist
func (s *Slots) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS slots (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			modified TEXT NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get returns the blob stored under key
func (s *Slots) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRow("SELECT value FROM slots WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Put replaces the blob under key in one statement
func (s *Slots) Put(key string, value []byte) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.Exec(
		`INSERT INTO slots (key, value, modified) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, modified = excluded.modified`,
		key, value, now,
	)
	return err
}

// Modified returns when key was last written, or the zero time if unset
func (s *Slots) Modified(key string) (time.Time, error) {
	var modifiedStr string
	err := s.db.QueryRow("SELECT modified FROM slots WHERE key = ?", key).Scan(&modifiedStr)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	t, _ := time.Parse(time.RFC3339Nano, modifiedStr)
	return t, nil
}

// Close closes the database connection
func (s *Slots) Close() error {
	return s.db.Close()
}
