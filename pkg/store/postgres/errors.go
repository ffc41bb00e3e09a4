package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/destiny-evidence/reference-repository/pkg/sharederr"
)

// postgresUniqueViolation is PostgreSQL's SQLSTATE for a unique constraint
// violation.
const postgresUniqueViolation = "23505"

// mapConstraintError translates a unique-constraint violation on table
// into sharederr's Duplicate kind (§7); any other error is wrapped as a
// plain database error.
func mapConstraintError(err error, table string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == postgresUniqueViolation {
		return sharederr.NewDuplicate(pgErr.ConstraintName, err)
	}
	return sharederr.DatabaseError("write to "+table, err)
}
