package dedup

import (
	"testing"

	"github.com/google/uuid"
)

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to Determination
		want     bool
	}{
		{Pending, Canonical, true},
		{Pending, Nominated, true},
		{Nominated, Canonical, true},
		{Nominated, ExactDuplicate, false},
		{Canonical, Duplicate, false},
	}
	for _, tt := range tests {
		if got := ValidTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("ValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(Pending) {
		t.Error("Pending should not be terminal")
	}
	if IsTerminal(Nominated) {
		t.Error("Nominated should not be terminal")
	}
	if !IsTerminal(Canonical) {
		t.Error("Canonical should be terminal")
	}
}

func TestNewDecisionRequiresCanonicalIDForDuplicate(t *testing.T) {
	refID := uuid.New()
	if _, err := NewDecision(refID, nil, Duplicate, nil); err == nil {
		t.Error("expected an error constructing a Duplicate decision with no canonical reference id")
	}
}

func TestNewDecisionRejectsIllegalTransition(t *testing.T) {
	refID := uuid.New()
	canonical := Canonical
	if _, err := NewDecision(refID, &canonical, Duplicate, nil); err == nil {
		t.Error("expected Canonical -> Duplicate to be rejected as a direct transition")
	}
}

func TestFingerprintSearchability(t *testing.T) {
	year := 2020
	complete := NewFingerprint("Heat and Health", []string{"Smith", "Doe"}, &year)
	if !complete.Searchable {
		t.Error("a fingerprint with title, authors, and year should be searchable")
	}

	missingYear := NewFingerprint("Heat and Health", []string{"Smith"}, nil)
	if missingYear.Searchable {
		t.Error("a fingerprint missing year should not be searchable (B2)")
	}

	missingTitle := NewFingerprint("", []string{"Smith"}, &year)
	if missingTitle.Searchable {
		t.Error("a fingerprint missing title should not be searchable (B2)")
	}
}

func TestFingerprintOrderInvariance(t *testing.T) {
	year := 2020
	a := NewFingerprint("Heat and Health", []string{"Smith", "Doe"}, &year)
	b := NewFingerprint("Health and Heat", []string{"Doe", "Smith"}, &year)

	if !a.Equal(b) {
		t.Errorf("fingerprints should be invariant to title word order and author order, got %q vs %q", a.Key(), b.Key())
	}
}
