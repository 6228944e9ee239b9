// Package postgres implements the store interfaces using PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"ciforge/internal/store"

	_ "github.com/lib/pq"
)

// Store provides PostgreSQL-backed implementations of every store
// interface (UserStore, APIKeyStore, JobStore, JobEventStore).
type Store struct {
	db *sql.DB
}

// New opens a connection pool to databaseURL and verifies it with a ping.
// It does not run migrations; call Migrate explicitly (typically gated
// behind a --migrate flag, mirroring the Controller's ownership of schema
// setup).
func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying *sql.DB, primarily so callers can run
// migrations against it.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping verifies the database connection is alive, used by the API's
// readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// pgTx adapts *sql.Tx to store.Tx (the interfaces already match; this
// wrapper exists so BeginTx can return the store.Tx interface type).
type pgTx struct {
	*sql.Tx
}

// BeginTx starts a new transaction for callers that need multiple writes
// to commit atomically.
func (s *Store) BeginTx(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return pgTx{tx}, nil
}
