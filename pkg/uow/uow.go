// Package uow implements the TransactionalScope/UnitOfWork pair (spec.md
// §5, §9) over a pgx connection pool: every ReferenceStore write issued
// with a scope's context commits or rolls back together.
package uow

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/destiny-evidence/reference-repository/pkg/capability"
	"github.com/destiny-evidence/reference-repository/pkg/sharederr"
)

type scopeKey struct{}

// Scope is the concrete TransactionalScope: a single pgx transaction plus
// the guard against reentrant Begin calls on the same context.
type Scope struct {
	tx         pgx.Tx
	committed  bool
	rolledBack bool
}

// Commit finalizes every write made through this scope.
func (s *Scope) Commit(ctx context.Context) error {
	if s.committed || s.rolledBack {
		return nil
	}
	if err := s.tx.Commit(ctx); err != nil {
		return sharederr.DatabaseError("commit transactional scope", err)
	}
	s.committed = true
	return nil
}

// Rollback discards every write made through this scope. Safe to call
// after a successful Commit (no-op).
func (s *Scope) Rollback(ctx context.Context) error {
	if s.committed || s.rolledBack {
		return nil
	}
	if err := s.tx.Rollback(ctx); err != nil {
		return sharederr.DatabaseError("rollback transactional scope", err)
	}
	s.rolledBack = true
	return nil
}

// Tx returns the underlying pgx transaction, for use by store
// implementations that need to issue queries scoped to it.
func (s *Scope) Tx() pgx.Tx {
	return s.tx
}

// UnitOfWork opens Scopes against a pgxpool.Pool.
type UnitOfWork struct {
	pool *pgxpool.Pool
}

// New constructs a UnitOfWork over the given pool.
func New(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

// Begin opens a new scope and stashes it on the returned context. Calling
// Begin again on a context that already carries an open scope is a
// programmer error (§7 UnitOfWorkError) — scopes do not nest, per §5's
// "every top-level service method runs inside a TransactionalScope".
func (u *UnitOfWork) Begin(ctx context.Context) (context.Context, capability.TransactionalScope, error) {
	if ctx.Value(scopeKey{}) != nil {
		return ctx, nil, sharederr.NewUnitOfWorkError("transactional scope already open on this context")
	}
	tx, err := u.pool.Begin(ctx)
	if err != nil {
		return ctx, nil, sharederr.DatabaseError("begin transactional scope", err)
	}
	s := &Scope{tx: tx}
	return context.WithValue(ctx, scopeKey{}, s), s, nil
}

// FromContext retrieves the Scope stashed by Begin, if one is open. Store
// implementations call this to issue queries against the open transaction
// rather than the bare pool; returns (nil, false) outside any scope, in
// which case callers issue directly against the pool (read-only paths).
func FromContext(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(*Scope)
	return s, ok
}
