// Package postgres implements capability.ReferenceStore over PostgreSQL:
// a pgxpool.Pool for connection lifecycle and transactional scopes (see
// pkg/uow), with a sqlx.DB layered on top of the same pool (via pgx's
// database/sql adapter) for struct-scanning convenience on read paths.
package postgres

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/destiny-evidence/reference-repository/pkg/capability"
	"github.com/destiny-evidence/reference-repository/pkg/sharederr"
	"github.com/destiny-evidence/reference-repository/pkg/uow"
)

// Store is the concrete capability.ReferenceStore implementation.
type Store struct {
	pool *pgxpool.Pool
	sqlx *sqlx.DB
}

// New wraps an already-connected pool. Call Close to release both the
// pool and the sqlx handle sharing it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
		sqlx: sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx"),
	}
}

// Connect builds a pool from dsn and wraps it.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, sharederr.DatabaseError("connect reference store pool", err)
	}
	return New(pool), nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// exec issues a write against the open TransactionalScope on ctx, if any,
// otherwise directly against the pool (for callers outside a scope, which
// is a programmer error for anything but idempotent single-statement
// calls).
func (s *Store) exec(ctx context.Context, sql string, args ...interface{}) error {
	if scope, ok := uow.FromContext(ctx); ok {
		_, err := scope.Tx().Exec(ctx, sql, args...)
		return err
	}
	_, err := s.pool.Exec(ctx, sql, args...)
	return err
}

func (s *Store) queryRow(ctx context.Context, query string, args ...interface{}) interface {
	Scan(dest ...interface{}) error
} {
	if scope, ok := uow.FromContext(ctx); ok {
		return scope.Tx().QueryRow(ctx, query, args...)
	}
	return s.pool.QueryRow(ctx, query, args...)
}

// sqlDB exposes the underlying *sql.DB for sqlx struct-scanning read
// paths that don't need to participate in a transactional scope.
func (s *Store) sqlDB() *sql.DB {
	return s.sqlx.DB
}

var _ capability.ReferenceStore = (*Store)(nil)
