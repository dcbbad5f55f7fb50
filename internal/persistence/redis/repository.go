// Package redis implements the Remote backend on Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"example.com/userstate/internal/persistence"
)

const defaultPrefix = "userstate:"

// Config configures a Repository.
type Config struct {
	URL       string
	KeyPrefix string
	Timeout   time.Duration
}

// Repository stores each document as a JSON string under <prefix><table>:<userID>.
type Repository struct {
	client  goredis.UniversalClient
	prefix  string
	timeout time.Duration
}

var _ persistence.Remote = (*Repository)(nil)

type document struct {
	UserID      string          `json:"user_id"`
	Fields      json.RawMessage `json:"fields"`
	CompletedAt *time.Time      `json:"completed_at"`
	UpdatedAt   *time.Time      `json:"updated_at"`
}

// Dial parses cfg.URL, connects and pings the server.
func Dial(ctx context.Context, cfg Config) (*Repository, error) {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, persistence.RemoteFailure("ping", err)
	}
	return NewRepository(client, cfg), nil
}

// NewRepository wraps an existing client.
func NewRepository(client goredis.UniversalClient, cfg Config) *Repository {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Repository{client: client, prefix: prefix, timeout: cfg.Timeout}
}

func (r *Repository) key(table, userID string) string {
	return r.prefix + table + ":" + userID
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

// Fetch implements persistence.Remote.
func (r *Repository) Fetch(ctx context.Context, table, userID string) (persistence.Document, bool, error) {
	if err := persistence.ValidateTable(table); err != nil {
		return persistence.Document{}, false, persistence.RemoteFailure("fetch", err)
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	raw, err := r.client.Get(ctx, r.key(table, userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return persistence.Document{}, false, nil
	}
	if err != nil {
		return persistence.Document{}, false, persistence.RemoteFailure("fetch", err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return persistence.Document{}, false, persistence.RemoteFailure("fetch", err)
	}
	return persistence.Document{
		UserID:      doc.UserID,
		Fields:      doc.Fields,
		CompletedAt: doc.CompletedAt,
		UpdatedAt:   doc.UpdatedAt,
	}, true, nil
}

// Upsert implements persistence.Remote.
func (r *Repository) Upsert(ctx context.Context, table string, doc persistence.Document) error {
	if err := persistence.ValidateTable(table); err != nil {
		return persistence.RemoteFailure("upsert", err)
	}
	if doc.UserID == "" {
		return persistence.RemoteFailure("upsert", errors.New("user id is required"))
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	fields := doc.Fields
	if len(fields) == 0 {
		fields = json.RawMessage("{}")
	}
	payload, err := json.Marshal(document{
		UserID:      doc.UserID,
		Fields:      fields,
		CompletedAt: doc.CompletedAt,
		UpdatedAt:   doc.UpdatedAt,
	})
	if err != nil {
		return persistence.RemoteFailure("upsert", err)
	}

	// Zero expiration: documents are never evicted.
	if err := r.client.Set(ctx, r.key(table, doc.UserID), payload, 0).Err(); err != nil {
		return persistence.RemoteFailure("upsert", err)
	}
	return nil
}

// Close closes the underlying client.
func (r *Repository) Close() error {
	return r.client.Close()
}
