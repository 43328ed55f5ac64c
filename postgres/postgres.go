// Package postgres implements the ledgersaga store contract on PostgreSQL.
//
// Record transitions and account reservations are guarded conditional
// writes: a WHERE clause (or a row lock plus an in-transaction check)
// carries the guard, and a zero-row match reports no-op exactly like the
// in-memory store. PlaceBid is the one genuine multi-document transaction,
// run at RepeatableRead with deterministic lock ordering and retried on
// serialization conflict.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halcyonforge/ledgersaga"
)

// Store implements ledgersaga.Store on a pgx connection pool.
type Store struct {
	db    *pgxpool.Pool
	clock ledgersaga.Clock
}

var _ ledgersaga.Store = (*Store)(nil)

// NewStore connects to the database and verifies the connection. The store
// is opened once at process start and closed on the shutdown signal.
func NewStore(ctx context.Context, connString string, clock ledgersaga.Clock) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	if clock == nil {
		clock = ledgersaga.SystemClock{}
	}
	return &Store{db: pool, clock: clock}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.db.Close()
}

func (s *Store) now() time.Time {
	return s.clock.Now()
}

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id UUID PRIMARY KEY,
	domain INT NOT NULL,
	source JSONB NOT NULL,
	destination JSONB,
	amount BIGINT NOT NULL,
	quantity BIGINT NOT NULL DEFAULT 0,
	progress INT NOT NULL DEFAULT 0,
	cancel INT NOT NULL DEFAULT 0,
	revert INT NOT NULL DEFAULT 0,
	ts TIMESTAMPTZ NOT NULL,
	rewards JSONB,
	meta JSONB
);
CREATE INDEX IF NOT EXISTS records_sweep_idx ON records (domain, ts);

CREATE TABLE IF NOT EXISTS accounts (
	ref TEXT PRIMARY KEY,
	kind INT NOT NULL,
	owner TEXT NOT NULL,
	scope TEXT NOT NULL DEFAULT '',
	committed BIGINT NOT NULL DEFAULT 0,
	pending BIGINT NOT NULL DEFAULT 0,
	capacity BIGINT NOT NULL DEFAULT 0,
	regen_at TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
	regen_nonce UUID NOT NULL DEFAULT '00000000-0000-0000-0000-000000000000'
);

CREATE TABLE IF NOT EXISTS pending_entries (
	account_ref TEXT NOT NULL REFERENCES accounts(ref),
	transaction_id UUID NOT NULL,
	delta BIGINT NOT NULL,
	PRIMARY KEY (account_ref, transaction_id)
);

CREATE TABLE IF NOT EXISTS auctions (
	id TEXT PRIMARY KEY,
	item TEXT NOT NULL DEFAULT '',
	min_bid BIGINT NOT NULL DEFAULT 0,
	min_increment BIGINT NOT NULL DEFAULT 0,
	ends_at TIMESTAMPTZ,
	winning_wallet TEXT NOT NULL DEFAULT '',
	winning_bid BIGINT NOT NULL DEFAULT 0,
	history JSONB NOT NULL DEFAULT '[]'
);
`

// Migrate creates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
