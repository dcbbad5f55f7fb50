// Package persistence defines the local and remote backend contracts shared by
// the entity store, the navigation cache and the device flags.
//
// Local backends are device-local key/value surfaces that are always
// available. Remote backends are authoritative per-user record stores that are
// only reachable for durable identities. Implementations live in subpackages:
// bolt, sqlite and memory for Local; postgres and redis for Remote.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"
)

var (
	// ErrIOFailure wraps every local backend failure.
	ErrIOFailure = errors.New("local storage unavailable")
	// ErrRemoteFailure wraps every remote backend failure.
	ErrRemoteFailure = errors.New("remote storage unavailable")
	// ErrInvalidTable is returned for table names outside the allowed pattern.
	ErrInvalidTable = errors.New("invalid table name")
)

// Local is a durable device-local key/value store.
type Local interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	ListKeys(ctx context.Context) ([]string, error)
	MultiGet(ctx context.Context, keys ...string) (map[string]string, error)
	MultiSet(ctx context.Context, entries map[string]string) error
	MultiRemove(ctx context.Context, keys ...string) error
	Close() error
}

// Document is the wire form of an entity record in a remote table.
type Document struct {
	UserID      string
	Fields      json.RawMessage
	CompletedAt *time.Time
	UpdatedAt   *time.Time
}

// Remote is an authoritative per-user record store keyed by user id.
// Upsert replaces the whole document; there is no field-level merge.
type Remote interface {
	Fetch(ctx context.Context, table, userID string) (Document, bool, error)
	Upsert(ctx context.Context, table string, doc Document) error
}

// IOFailure wraps err so it matches ErrIOFailure.
func IOFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrIOFailure, err)
}

// RemoteFailure wraps err so it matches ErrRemoteFailure.
func RemoteFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrRemoteFailure, err)
}

var tablePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// ValidateTable guards table names that are interpolated into queries or keys.
func ValidateTable(table string) error {
	if !tablePattern.MatchString(table) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return nil
}

// Offline is a Remote that is never reachable. It backs REMOTE_DRIVER=none.
type Offline struct{}

var errOffline = errors.New("remote backend not configured")

// Fetch always fails with ErrRemoteFailure.
func (Offline) Fetch(context.Context, string, string) (Document, bool, error) {
	return Document{}, false, RemoteFailure("fetch", errOffline)
}

// Upsert always fails with ErrRemoteFailure.
func (Offline) Upsert(context.Context, string, Document) error {
	return RemoteFailure("upsert", errOffline)
}
