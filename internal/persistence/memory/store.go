// Package memory provides an in-process Local backend for tests and development.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"example.com/userstate/internal/persistence"
)

// Store keeps entries in a map. Failures can be injected per operation or per key.
type Store struct {
	mu      sync.RWMutex
	entries map[string]string
	failAll error
	failKey map[string]error
}

var _ persistence.Local = (*Store)(nil)

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]string),
		failKey: make(map[string]error),
	}
}

// FailWith makes every subsequent operation fail with err. Pass nil to recover.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll = err
}

// FailKey makes operations touching key fail with err. Pass nil to recover.
func (s *Store) FailKey(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failKey, key)
		return
	}
	s.failKey[key] = err
}

func (s *Store) check(op, key string) error {
	if s.failAll != nil {
		return persistence.IOFailure(op, s.failAll)
	}
	if err, ok := s.failKey[key]; ok {
		return persistence.IOFailure(op, err)
	}
	return nil
}

// Get implements persistence.Local.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, persistence.IOFailure("get", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("get", key); err != nil {
		return "", false, err
	}
	value, ok := s.entries[key]
	return value, ok, nil
}

// Set implements persistence.Local.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return persistence.IOFailure("set", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("set", key); err != nil {
		return err
	}
	s.entries[key] = value
	return nil
}

// Remove implements persistence.Local.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return persistence.IOFailure("remove", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("remove", key); err != nil {
		return err
	}
	delete(s.entries, key)
	return nil
}

// Clear implements persistence.Local.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return persistence.IOFailure("clear", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return persistence.IOFailure("clear", s.failAll)
	}
	s.entries = make(map[string]string)
	return nil
}

// ListKeys implements persistence.Local. Keys are returned sorted.
func (s *Store) ListKeys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistence.IOFailure("list", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failAll != nil {
		return nil, persistence.IOFailure("list", s.failAll)
	}
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// MultiGet implements persistence.Local. Missing keys are omitted.
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

// MultiSet implements persistence.Local. Each key is written independently.
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

// Close implements persistence.Local.
func (s *Store) Close() error {
	return nil
}
