package ingestion

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/destiny-evidence/reference-repository/pkg/capability"
	"github.com/destiny-evidence/reference-repository/pkg/domain/reference"
)

type stubACL struct {
	result interface{}
	err    error
}

func (s stubACL) ParseReferenceFileLine(line []byte) (interface{}, error) {
	return s.result, s.err
}

func (s stubACL) EncodeValidationEntry(referenceID *uuid.UUID, errMsg string) ([]byte, error) {
	return nil, nil
}

func TestIngestReferenceMintsIDAndStampsChildren(t *testing.T) {
	input := capability.ReferenceFileInput{
		Visibility: reference.VisibilityPublic,
		Identifiers: []reference.LinkedExternalIdentifier{
			{Type: reference.IdentifierDOI, Value: "10.1000/xyz"},
		},
	}
	svc := New(stubACL{result: input})

	got := svc.IngestReference([]byte(`{}`), 3)
	if len(got.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", got.Errors)
	}
	if got.Reference == nil {
		t.Fatal("expected a constructed reference")
	}
	if got.Reference.ID == uuid.Nil {
		t.Error("expected a minted reference id")
	}
	if got.Reference.Identifiers[0].ReferenceID != got.Reference.ID {
		t.Error("expected identifier to be stamped with the reference id")
	}
}

func TestIngestReferenceParseFailureCarriesLineOrdinal(t *testing.T) {
	svc := New(stubACL{err: errors.New("malformed json")})

	got := svc.IngestReference([]byte(`not json`), 7)
	if got.Reference != nil {
		t.Fatal("expected no reference on parse failure")
	}
	if len(got.Errors) != 1 || got.Errors[0].LineOrdinal != 7 {
		t.Fatalf("expected one error at line 7, got %+v", got.Errors)
	}
}

func TestIngestReferenceRejectsWrongShape(t *testing.T) {
	svc := New(stubACL{result: capability.LinkedRobotError{Message: "boom"}})

	got := svc.IngestReference([]byte(`{}`), 1)
	if got.Reference != nil {
		t.Fatal("expected no reference for a robot-error-shaped line")
	}
	if len(got.Errors) != 1 {
		t.Fatalf("expected one error, got %+v", got.Errors)
	}
}
