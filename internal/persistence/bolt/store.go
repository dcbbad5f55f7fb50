// Package bolt implements the Local backend on a single-file bbolt database.
package bolt

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"

	"example.com/userstate/internal/persistence"
)

var bucketState = []byte("state")

// Store is a bbolt-backed persistence.Local.
type Store struct {
	db      *bbolt.DB
	logger  zerolog.Logger
	timeout time.Duration
	noSync  bool
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

// WithLockTimeout bounds how long Open waits for the file lock.
func WithLockTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		s.timeout = timeout
	}
}

// WithNoSync disables fsync per transaction. Tests only.
func WithNoSync(noSync bool) Option {
	return func(s *Store) {
		s.noSync = noSync
	}
}

// Open opens (or creates) the database at path.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	s := &Store{logger: zerolog.Nop(), timeout: time.Second}
	for _, opt := range opts {
		opt(s)
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{
		Timeout: s.timeout,
		NoSync:  s.noSync,
	})
	if err != nil {
		return nil, persistence.IOFailure("open", err)
	}
	s.db = db

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketState)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, persistence.IOFailure("create bucket", err)
	}

	s.logger.Debug().Str("path", path).Msg("opened local state store")
	return s, nil
}

// Close closes the database file.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get implements persistence.Local.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, persistence.IOFailure("get", err)
	}
	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketState).Get([]byte(key))
		if raw == nil {
			return nil
		}
		// raw is only valid inside the transaction.
		value = string(raw)
		found = true
		return nil
	})
	if err != nil {
		return "", false, persistence.IOFailure("get", err)
	}
	return value, found, nil
}

// Set implements persistence.Local.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return persistence.IOFailure("set", err)
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketState).Put([]byte(key), []byte(value))
	})
	return persistence.IOFailure("set", err)
}

// Remove implements persistence.Local.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return persistence.IOFailure("remove", err)
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketState).Delete([]byte(key))
	})
	return persistence.IOFailure("remove", err)
}

// Clear implements persistence.Local by recreating the bucket.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return persistence.IOFailure("clear", err)
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketState); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket(bucketState)
		return err
	})
	if err == nil {
		s.logger.Info().Msg("local state cleared")
	}
	return persistence.IOFailure("clear", err)
}

// ListKeys implements persistence.Local. Keys come back in byte order.
func (s *Store) ListKeys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistence.IOFailure("list", err)
	}
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketState).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, persistence.IOFailure("list", err)
	}
	return keys, nil
}

// MultiGet implements persistence.Local in a single read transaction.
func (s *Store) MultiGet(ctx context.Context, keys ...string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistence.IOFailure("multi get", err)
	}
	out := make(map[string]string, len(keys))
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketState)
		for _, key := range keys {
			if raw := bucket.Get([]byte(key)); raw != nil {
				out[key] = string(raw)
			}
		}
		return nil
	})
	if err != nil {
		return nil, persistence.IOFailure("multi get", err)
	}
	return out, nil
}

// MultiSet implements persistence.Local with one transaction per key, so a
// failing key never rolls back the others.
func (s *Store) MultiSet(ctx context.Context, entries map[string]string) error {
	var errs error
	for key, value := range entries {
		errs = errors.Join(errs, s.Set(ctx, key, value))
	}
	return errs
}

// MultiRemove implements persistence.Local with one transaction per key.
func (s *Store) MultiRemove(ctx context.Context, keys ...string) error {
	var errs error
	for _, key := range keys {
		errs = errors.Join(errs, s.Remove(ctx, key))
	}
	return errs
}
