// Package store is Talemon's State Store data access layer: the
// authoritative record of pages, snapshots, monitor events, and extracted
// info, plus the row-locking primitives the scheduler and worker rely on
// for lease discipline.
//
// It is built on database/sql with github.com/jackc/pgx/v5/stdlib
// registered as the "pgx" driver, so callers get *sql.DB ergonomics while
// the underlying connection speaks the Postgres wire protocol needed for
// FOR UPDATE SKIP LOCKED, partial indexes, and JSONB containment.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps a State Store database connection.
type Store struct {
	DB *sql.DB
}

// Open opens a Postgres connection pool at dsn using the pgx stdlib driver
// and applies connection pool limits. It does not apply the schema; call
// ApplySchema separately (tests typically do so against a scratch database).
func Open(dsn string, maxOpenConns, maxIdleConns int) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Store{DB: db}, nil
}

// New wraps an already-opened database connection, for callers that manage
// the pool themselves (tests, or a shared connection across components).
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// ApplySchema executes the embedded DDL. It is idempotent: every statement
// uses IF NOT EXISTS, so it is safe to call at startup against a database
// that already has the schema.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}
