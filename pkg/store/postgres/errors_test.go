package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/destiny-evidence/reference-repository/pkg/sharederr"
)

func TestMapConstraintErrorTranslatesUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: postgresUniqueViolation, ConstraintName: "linked_external_identifiers_type_value_key"}
	err := mapConstraintError(pgErr, "linked_external_identifiers")

	if sharederr.KindOf(err) != sharederr.KindDuplicate {
		t.Errorf("expected KindDuplicate, got %v", sharederr.KindOf(err))
	}
}

func TestMapConstraintErrorPassesThroughOtherFailures(t *testing.T) {
	err := mapConstraintError(errors.New("connection reset"), "references")
	if err == nil {
		t.Fatal("expected a wrapped error")
	}
}

func TestMapConstraintErrorNilIsNil(t *testing.T) {
	if mapConstraintError(nil, "references") != nil {
		t.Error("expected nil in, nil out")
	}
}
