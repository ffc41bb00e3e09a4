package postgres

import (
	"database/sql"
	_ "embed"

	_ "github.com/lib/pq"

	"github.com/destiny-evidence/reference-repository/pkg/sharederr"
)

//go:embed schema.sql
var bootstrapSchema string

// Bootstrap applies the embedded schema to dsn via database/sql and lib/pq,
// kept deliberately separate from the pgx-native runtime pool used by
// Store. This is a one-shot idempotent bootstrap, not a versioned
// migration runner (schema migration stays out of core scope).
func Bootstrap(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return sharederr.DatabaseError("open bootstrap connection", err)
	}
	defer db.Close()

	return applySchema(db)
}

// applySchema runs the embedded schema against an already-open db, split
// out from Bootstrap so the schema-application step can be driven against
// a sqlmock-backed *sql.DB in tests without touching sql.Open.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(bootstrapSchema); err != nil {
		return sharederr.DatabaseError("apply bootstrap schema", err)
	}
	return nil
}
