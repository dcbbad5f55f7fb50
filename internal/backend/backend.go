// Package backend opens the local and remote stores selected by configuration.
package backend

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"example.com/userstate/internal/config"
	"example.com/userstate/internal/persistence"
	"example.com/userstate/internal/persistence/bolt"
	"example.com/userstate/internal/persistence/memory"
	"example.com/userstate/internal/persistence/postgres"
	"example.com/userstate/internal/persistence/redis"
	"example.com/userstate/internal/persistence/sqlite"
)

// OpenLocal opens the device-local store named by cfg.LocalDriver.
func OpenLocal(ctx context.Context, cfg config.Config, logger zerolog.Logger) (persistence.Local, error) {
	logger = logger.With().Str("backend", cfg.LocalDriver).Logger()
	switch cfg.LocalDriver {
	case config.LocalBolt:
		return bolt.Open(cfg.LocalPath, bolt.WithLogger(logger))
	case config.LocalSQLite:
		return sqlite.Open(ctx, cfg.LocalPath, sqlite.WithLogger(logger))
	case config.LocalMemory:
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unsupported local driver %q", cfg.LocalDriver)
	}
}

// OpenRemote connects the authoritative store named by cfg.RemoteDriver. The
// returned close function is never nil. REMOTE_DRIVER=none yields
// persistence.Offline, so durable identities run on the fallback path.
func OpenRemote(ctx context.Context, cfg config.Config, logger zerolog.Logger) (persistence.Remote, func(), error) {
	noop := func() {}
	switch cfg.RemoteDriver {
	case config.RemotePostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, noop, fmt.Errorf("connect postgres: %w", err)
		}
		return postgres.NewRepository(pool, cfg.RemoteTimeout), pool.Close, nil
	case config.RemoteRedis:
		repo, err := redis.Dial(ctx, redis.Config{URL: cfg.RedisURL, Timeout: cfg.RemoteTimeout})
		if err != nil {
			return nil, noop, err
		}
		return repo, func() {
			if err := repo.Close(); err != nil {
				logger.Warn().Err(err).Msg("close redis")
			}
		}, nil
	case config.RemoteNone:
		logger.Warn().Msg("remote backend disabled, durable writes will fail")
		return persistence.Offline{}, noop, nil
	default:
		return nil, noop, fmt.Errorf("unsupported remote driver %q", cfg.RemoteDriver)
	}
}
