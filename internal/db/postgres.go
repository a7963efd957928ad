// Package db opens the optional Postgres pool used for price and alert
// history. Persistence is off when no DSN is configured.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var openPool = pgxpool.New

// Connect opens a pgx pool for dsn. An empty dsn disables persistence;
// the caller gets a nil pool and no error.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, nil
	}

	pool, err := openPool(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	log.Info().Msg("connected to postgres")
	return pool, nil
}
