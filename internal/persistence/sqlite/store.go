// Package sqlite implements the Local backend on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"example.com/userstate/internal/persistence"
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// Store is a SQLite-backed persistence.Local.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

var _ persistence.Local = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open opens the database at path (":memory:" is accepted) and bootstraps the schema.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	s := &Store{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, persistence.IOFailure("open", err)
	}
	// One writer keeps ":memory:" databases on a single connection and avoids
	// SQLITE_BUSY on files.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, persistence.IOFailure("migrate", err)
	}

	s.db = db
	s.logger.Debug().Str("path", path).Msg("opened local state store")
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get implements persistence.Local.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, persistence.IOFailure("get", err)
	}
	return value, true, nil
}

// Set implements persistence.Local.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return persistence.IOFailure("set", err)
}

// Remove implements persistence.Local.
func (s *Store) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return persistence.IOFailure("remove", err)
}

// Clear implements persistence.Local.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv`)
	if err == nil {
		s.logger.Info().Msg("local state cleared")
	}
	return persistence.IOFailure("clear", err)
}

// ListKeys implements persistence.Local.
func (s *Store) ListKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, persistence.IOFailure("list", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, persistence.IOFailure("list", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence.IOFailure("list", err)
	}
	return keys, nil
}

// MultiGet implements persistence.Local.
func (s *Store) MultiGet(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	var errs error
	for _, key := range keys {
		value, ok, err := s.Get(ctx, key)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		if ok {
			out[key] = value
		}
	}
	return out, errs
}

// MultiSet implements persistence.Local. Each statement autocommits, so
// keys succeed or fail independently.
func (s *Store) MultiSet(ctx context.Context, entries map[string]string) error {
	var errs error
	for key, value := range entries {
		errs = errors.Join(errs, s.Set(ctx, key, value))
	}
	return errs
}

// MultiRemove implements persistence.Local.
func (s *Store) MultiRemove(ctx context.Context, keys ...string) error {
	var errs error
	for _, key := range keys {
		errs = errors.Join(errs, s.Remove(ctx, key))
	}
	return errs
}
