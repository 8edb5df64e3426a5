// internal/database/db.go
package database

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neverhq/never-service/internal/lobby"
)

// Store is the Postgres-backed lobby.Store. All access goes through explicit
// transactions; nothing reaches for an ambient pool from deep call sites.
type Store struct {
	Pool *pgxpool.Pool
}

// Connect builds the pool from POSTGRES_USER / POSTGRES_PASSWORD / PG_HOST /
// PG_PORT / PG_DATABASE and verifies connectivity.
func Connect(ctx context.Context) (*Store, error) {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		os.Getenv("POSTGRES_USER"),
		os.Getenv("POSTGRES_PASSWORD"),
		os.Getenv("PG_HOST"),
		os.Getenv("PG_PORT"),
		os.Getenv("PG_DATABASE"),
	)

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return &Store{Pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.Pool.Close()
}

// InTx implements lobby.Store. BeginTxFunc commits on a nil return and rolls
// back otherwise; a failed rollback is swallowed so the original error
// always wins.
func (s *Store) InTx(ctx context.Context, fn func(tx lobby.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(&storeTx{tx: tx})
	})
}

// storeTx carries one pgx transaction through the lobby.Tx surface. The
// query methods live in the per-entity files of this package.
type storeTx struct {
	tx pgx.Tx
}

var _ lobby.Tx = (*storeTx)(nil)
