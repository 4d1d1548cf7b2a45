package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is a Storage persisted in a SQLite database, so buckets survive
// process restarts.
type SQLite struct {
	db *sql.DB
}

type sqliteBucket struct {
	db   *sql.DB
	name string
}

// NewSQLite opens the cache database at path and initializes the schema.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS buckets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			created TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS entries (
			bucket_id INTEGER NOT NULL,
			key TEXT NOT NULL,
			method TEXT NOT NULL,
			url TEXT NOT NULL,
			status INTEGER NOT NULL,
			header TEXT NOT NULL,
			body BLOB NOT NULL,
			stored TEXT NOT NULL,
			PRIMARY KEY (bucket_id, key),
			FOREIGN KEY (bucket_id) REFERENCES buckets(id) ON DELETE CASCADE
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Open returns the named bucket, creating it if needed.
func (s *SQLite) Open(ctx context.Context, name string) (Bucket, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO buckets (name, created) VALUES (?, ?) ON CONFLICT(name) DO NOTHING",
		name, now,
	)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", name, err)
	}
	return &sqliteBucket{db: s.db, name: name}, nil
}

// Has reports whether the named bucket exists.
func (s *SQLite) Has(ctx context.Context, name string) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM buckets WHERE name = ?", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Keys returns bucket names in creation order.
func (s *SQLite) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM buckets ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Delete removes the named bucket and its entries in one transaction.
func (s *SQLite) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM buckets WHERE name = ?", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	// Entries are removed explicitly; foreign keys are off unless the pragma is set.
	if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE bucket_id = ?", id); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM buckets WHERE id = ?", id); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// Info summarizes every bucket.
func (s *SQLite) Info(ctx context.Context) ([]BucketInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.name, b.created, COUNT(e.key), COALESCE(SUM(LENGTH(e.body)), 0)
		FROM buckets b
		LEFT JOIN entries e ON e.bucket_id = b.id
		GROUP BY b.id
		ORDER BY b.id
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	infos := []BucketInfo{}
	for rows.Next() {
		var info BucketInfo
		var created string
		if err := rows.Scan(&info.Name, &created, &info.Entries, &info.Bytes); err != nil {
			return nil, err
		}
		info.Created, _ = time.Parse(time.RFC3339Nano, created)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (b *sqliteBucket) Name() string {
	return b.name
}

func (b *sqliteBucket) Match(ctx context.Context, key string) (*Entry, error) {
	var e Entry
	var header, stored string
	err := b.db.QueryRowContext(ctx, `
		SELECT e.key, e.method, e.url, e.status, e.header, e.body, e.stored
		FROM entries e
		JOIN buckets b ON b.id = e.bucket_id
		WHERE b.name = ? AND e.key = ?
	`, b.name, key).Scan(&e.Key, &e.Method, &e.URL, &e.Status, &header, &e.Body, &stored)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	e.Header = http.Header{}
	if err := json.Unmarshal([]byte(header), &e.Header); err != nil {
		return nil, fmt.Errorf("decode header for %s: %w", key, err)
	}
	e.StoredAt, _ = time.Parse(time.RFC3339Nano, stored)
	return &e, nil
}

func (b *sqliteBucket) Put(ctx context.Context, e *Entry) error {
	header, err := json.Marshal(e.Header)
	if err != nil {
		return fmt.Errorf("encode header for %s: %w", e.Key, err)
	}
	body := e.Body
	if body == nil {
		body = []byte{}
	}
	stored := e.StoredAt
	if stored.IsZero() {
		stored = time.Now().UTC()
	}

	res, err := b.db.ExecContext(ctx, `
		INSERT INTO entries (bucket_id, key, method, url, status, header, body, stored)
		SELECT id, ?, ?, ?, ?, ?, ?, ? FROM buckets WHERE name = ?
		ON CONFLICT(bucket_id, key) DO UPDATE SET
			method = excluded.method,
			url = excluded.url,
			status = excluded.status,
			header = excluded.header,
			body = excluded.body,
			stored = excluded.stored
	`, e.Key, e.Method, e.URL, e.Status, string(header), body, stored.Format(time.RFC3339Nano), b.name)
	if err != nil {
		return fmt.Errorf("put %s: %w", e.Key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("put %s in %s: %w", e.Key, b.name, ErrBucketNotFound)
	}
	return nil
}

func (b *sqliteBucket) Keys(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT e.key FROM entries e
		JOIN buckets b ON b.id = e.bucket_id
		WHERE b.name = ?
		ORDER BY e.rowid
	`, b.name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
