package postgres

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestApplySchemaExecutesEmbeddedSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("unexpected error opening sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`.*`).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := applySchema(db); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestApplySchemaWrapsExecError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("unexpected error opening sqlmock: %v", err)
	}
	defer db.Close()

	cause := errors.New("relation already exists")
	mock.ExpectExec(`.*`).WillReturnError(cause)

	err = applySchema(db)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected wrapped cause in error, got %v", err)
	}
}
