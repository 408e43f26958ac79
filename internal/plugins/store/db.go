package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	store      TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (store, key)
);
`

// ErrClosed is returned by operations on a closed DB
var ErrClosed = errors.New("store database is closed")

// Entry is one key/value pair of a store
type Entry struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Change describes a mutation, published as a store://change event
type Change struct {
	Store string          `json:"store"`
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value,omitempty"`
	// Deleted is set when the key was removed
	Deleted bool `json:"deleted,omitempty"`
}

// DB is a SQLite-backed collection of named key-value stores. Values are
// JSON documents. DB is safe for concurrent use.
type DB struct {
	db       *sql.DB
	path     string
	defaults map[string]map[string]json.RawMessage
	onChange func(Change)
	reserved map[string]struct{}

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the database at path
func Open(path string, defaults map[string]map[string]json.RawMessage) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store database: %w", err)
	}
	// single writer keeps SQLITE_BUSY out of the picture
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to store database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create store schema: %w", err)
	}

	s := &DB{
		db:       db,
		path:     path,
		defaults: defaults,
		reserved: make(map[string]struct{}),
	}

	if err := s.seedDefaults(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the database file path
func (s *DB) Path() string {
	return s.path
}

// OnChange registers a callback invoked after every mutation
func (s *DB) OnChange(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Reserve restricts store to in-process users: its mutations are not
// published and the plugin refuses to serve it
func (s *DB) Reserve(store string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserved[store] = struct{}{}
}

// Reserved reports whether store was reserved
func (s *DB) Reserved(store string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.reserved[store]
	return ok
}

// Set stores value under key. The value must be valid JSON.
func (s *DB) Set(ctx context.Context, store, key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("value for %s/%s is not valid JSON", store, key)
	}
	if err := s.exec(ctx,
		`INSERT INTO entries (store, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (store, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		store, key, string(value), time.Now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", store, key, err)
	}
	s.notify(Change{Store: store, Key: key, Value: value})
	return nil
}

// Get returns the value stored under key and whether it exists
func (s *DB) Get(ctx context.Context, store, key string) (json.RawMessage, bool, error) {
	if err := s.check(); err != nil {
		return nil, false, err
	}

	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM entries WHERE store = ? AND key = ?`, store, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s/%s: %w", store, key, err)
	}
	return json.RawMessage(value), true, nil
}

// Has reports whether key exists
func (s *DB) Has(ctx context.Context, store, key string) (bool, error) {
	_, ok, err := s.Get(ctx, store, key)
	return ok, err
}

// Delete removes key and reports whether it existed
func (s *DB) Delete(ctx context.Context, store, key string) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE store = ? AND key = ?`, store, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s/%s: %w", store, key, err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.notify(Change{Store: store, Key: key, Deleted: true})
	}
	return n > 0, nil
}

// Entries returns all entries of a store ordered by key
func (s *DB) Entries(ctx context.Context, store string) ([]Entry, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM entries WHERE store = ? ORDER BY key`, store)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", store, err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", store, err)
		}
		entries = append(entries, Entry{Key: key, Value: json.RawMessage(value)})
	}
	return entries, rows.Err()
}

// Keys returns the keys of a store ordered by key
func (s *DB) Keys(ctx context.Context, store string) ([]string, error) {
	entries, err := s.Entries(ctx, store)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys, nil
}

// Values returns the values of a store ordered by key
func (s *DB) Values(ctx context.Context, store string) ([]json.RawMessage, error) {
	entries, err := s.Entries(ctx, store)
	if err != nil {
		return nil, err
	}
	values := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		values[i] = e.Value
	}
	return values, nil
}

// Length returns the number of entries in a store
func (s *DB) Length(ctx context.Context, store string) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE store = ?`, store,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", store, err)
	}
	return n, nil
}

// Clear removes every entry of a store
func (s *DB) Clear(ctx context.Context, store string) error {
	if err := s.exec(ctx, `DELETE FROM entries WHERE store = ?`, store); err != nil {
		return fmt.Errorf("failed to clear %s: %w", store, err)
	}
	s.notify(Change{Store: store, Deleted: true})
	return nil
}

// Reset clears a store and restores its default entries
func (s *DB) Reset(ctx context.Context, store string) error {
	if err := s.Clear(ctx, store); err != nil {
		return err
	}
	for key, value := range s.defaults[store] {
		if err := s.Set(ctx, store, key, value); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database. It is safe to call more than once.
func (s *DB) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *DB) seedDefaults(ctx context.Context) error {
	for store, entries := range s.defaults {
		for key, value := range entries {
			if !json.Valid(value) {
				return fmt.Errorf("default for %s/%s is not valid JSON", store, key)
			}
			if err := s.exec(ctx,
				`INSERT OR IGNORE INTO entries (store, key, value, updated_at) VALUES (?, ?, ?, ?)`,
				store, key, string(value), time.Now().UnixMilli(),
			); err != nil {
				return fmt.Errorf("failed to seed %s/%s: %w", store, key, err)
			}
		}
	}
	return nil
}

func (s *DB) exec(ctx context.Context, query string, args ...any) error {
	if err := s.check(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *DB) check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *DB) notify(c Change) {
	s.mu.RLock()
	fn := s.onChange
	_, reserved := s.reserved[c.Store]
	s.mu.RUnlock()
	if reserved {
		return
	}
	if fn != nil {
		fn(c)
	}
}
