package acl

import (
	"testing"

	"github.com/google/uuid"

	"github.com/destiny-evidence/reference-repository/pkg/capability"
	"github.com/destiny-evidence/reference-repository/pkg/domain/reference"
)

func TestParseReferenceFileLineNewReference(t *testing.T) {
	line := []byte(`{"visibility":"public","identifiers":[{"type":"doi","value":"10.1234/abc"}]}`)
	got, err := New().ParseReferenceFileLine(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	input, ok := got.(capability.ReferenceFileInput)
	if !ok {
		t.Fatalf("expected ReferenceFileInput, got %T", got)
	}
	if len(input.Identifiers) != 1 || input.Identifiers[0].Value != "10.1234/abc" {
		t.Errorf("unexpected identifiers: %+v", input.Identifiers)
	}
	if input.Visibility != reference.VisibilityPublic {
		t.Errorf("expected public visibility, got %v", input.Visibility)
	}
}

func TestParseReferenceFileLineRobotEnhancement(t *testing.T) {
	refID := uuid.New()
	line := []byte(`{"reference_id":"` + refID.String() + `","content":{"content_type":"abstract","abstract":"hello"}}`)
	got, err := New().ParseReferenceFileLine(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	enh, ok := got.(reference.Enhancement)
	if !ok {
		t.Fatalf("expected Enhancement, got %T", got)
	}
	if enh.ReferenceID != refID {
		t.Errorf("expected reference id %v, got %v", refID, enh.ReferenceID)
	}
	abstract, ok := enh.Content.(reference.AbstractContent)
	if !ok || abstract.Abstract != "hello" {
		t.Errorf("expected abstract content, got %+v", enh.Content)
	}
}

func TestParseReferenceFileLineRobotError(t *testing.T) {
	refID := uuid.New()
	line := []byte(`{"reference_id":"` + refID.String() + `","message":"could not fetch full text"}`)
	got, err := New().ParseReferenceFileLine(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	robotErr, ok := got.(capability.LinkedRobotError)
	if !ok {
		t.Fatalf("expected LinkedRobotError, got %T", got)
	}
	if robotErr.ReferenceID != refID || robotErr.Message != "could not fetch full text" {
		t.Errorf("unexpected robot error: %+v", robotErr)
	}
}

func TestParseReferenceFileLineRejectsUnrecognizedContentType(t *testing.T) {
	refID := uuid.New()
	line := []byte(`{"reference_id":"` + refID.String() + `","content":{"content_type":"nonsense"}}`)
	if _, err := New().ParseReferenceFileLine(line); err == nil {
		t.Fatal("expected an error for an unrecognized content_type")
	}
}

func TestParseReferenceFileLineRejectsUnrecognizedIdentifierType(t *testing.T) {
	line := []byte(`{"identifiers":[{"type":"isbn","value":"978-0-13-468599-1"}]}`)
	if _, err := New().ParseReferenceFileLine(line); err == nil {
		t.Fatal("expected an error for an unrecognized identifier type")
	}
}

func TestParseReferenceFileLineRejectsUnrecognizedVisibility(t *testing.T) {
	line := []byte(`{"visibility":"classified","identifiers":[{"type":"doi","value":"10.1234/abc"}]}`)
	if _, err := New().ParseReferenceFileLine(line); err == nil {
		t.Fatal("expected an error for an unrecognized visibility")
	}
}

func TestEncodeValidationEntryOmitsEmptyFields(t *testing.T) {
	b, err := New().EncodeValidationEntry(nil, "missing reference")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(b) != `{"error":"missing reference"}` {
		t.Errorf("unexpected encoding: %s", b)
	}

	id := uuid.New()
	b, err = New().EncodeValidationEntry(&id, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"reference_id":"` + id.String() + `"}`
	if string(b) != want {
		t.Errorf("expected %s, got %s", want, b)
	}
}
