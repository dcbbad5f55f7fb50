// Package postgres implements the Remote backend on Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/userstate/internal/persistence"
)

// Repository provides Postgres-backed per-user documents. Each table has the
// shape created by db/postgres/migrations.
type Repository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

var _ persistence.Remote = (*Repository)(nil)

// NewRepository constructs a Repository. A zero timeout leaves deadlines to the caller.
func NewRepository(pool *pgxpool.Pool, timeout time.Duration) *Repository {
	return &Repository{pool: pool, timeout: timeout}
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

// Fetch returns the document stored for userID in table.
func (r *Repository) Fetch(ctx context.Context, table, userID string) (persistence.Document, bool, error) {
	if err := persistence.ValidateTable(table); err != nil {
		return persistence.Document{}, false, persistence.RemoteFailure("fetch", err)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT user_id, fields, completed_at, updated_at FROM %s WHERE user_id=$1`, pgx.Identifier{table}.Sanitize())

	var doc persistence.Document
	err := r.pool.QueryRow(ctx, query, userID).Scan(&doc.UserID, &doc.Fields, &doc.CompletedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return persistence.Document{}, false, nil
		}
		return persistence.Document{}, false, persistence.RemoteFailure("fetch", err)
	}
	return doc, true, nil
}

// Upsert inserts or replaces the document keyed by its user id.
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
		fields = []byte("{}")
	}

	stmt := fmt.Sprintf(`INSERT INTO %s (user_id, fields, completed_at, updated_at)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (user_id) DO UPDATE
        SET fields = EXCLUDED.fields, completed_at = EXCLUDED.completed_at, updated_at = EXCLUDED.updated_at`,
		pgx.Identifier{table}.Sanitize())

	if _, err := r.pool.Exec(ctx, stmt, doc.UserID, []byte(fields), doc.CompletedAt, doc.UpdatedAt); err != nil {
		return persistence.RemoteFailure("upsert", err)
	}
	return nil
}
