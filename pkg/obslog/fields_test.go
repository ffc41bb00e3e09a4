package obslog

import (
	"errors"
	"testing"
	"time"
)

func TestNewFields(t *testing.T) {
	fields := NewFields()
	if fields == nil {
		t.Fatal("NewFields() returned nil")
	}
	if len(fields) != 0 {
		t.Errorf("NewFields() should be empty, got %d fields", len(fields))
	}
}

func TestFields_Component(t *testing.T) {
	fields := NewFields().Component("deduplication")
	if fields["component"] != "deduplication" {
		t.Errorf("Component() = %v, want %v", fields["component"], "deduplication")
	}
}

func TestFields_Operation(t *testing.T) {
	fields := NewFields().Operation("find_exact_duplicate")
	if fields["operation"] != "find_exact_duplicate" {
		t.Errorf("Operation() = %v, want %v", fields["operation"], "find_exact_duplicate")
	}
}

func TestFields_Resource(t *testing.T) {
	fields := NewFields().Resource("reference", "abc-123")
	if fields["resource_type"] != "reference" {
		t.Errorf("resource_type = %v, want reference", fields["resource_type"])
	}
	if fields["resource_name"] != "abc-123" {
		t.Errorf("resource_name = %v, want abc-123", fields["resource_name"])
	}
}

func TestFields_ResourceWithoutName(t *testing.T) {
	fields := NewFields().Resource("reference", "")
	if _, exists := fields["resource_name"]; exists {
		t.Error("Resource() should not set resource_name when empty")
	}
}

func TestFields_Duration(t *testing.T) {
	fields := NewFields().Duration(150 * time.Millisecond)
	if fields["duration_ms"] != int64(150) {
		t.Errorf("Duration() = %v, want 150", fields["duration_ms"])
	}
}

func TestFields_Error(t *testing.T) {
	fields := NewFields().Error(errors.New("boom"))
	if fields["error"] != "boom" {
		t.Errorf("Error() = %v, want boom", fields["error"])
	}
}

func TestFields_ErrorNil(t *testing.T) {
	fields := NewFields().Error(nil)
	if _, exists := fields["error"]; exists {
		t.Error("Error(nil) should not set error field")
	}
}

func TestFields_Zap(t *testing.T) {
	fields := NewFields().Component("x").Operation("y")
	zf := fields.Zap()
	if len(zf) != 2 {
		t.Errorf("Zap() len = %d, want 2", len(zf))
	}
}
