package reference

import "testing"

func TestEnhancementContentHashStableAcrossFieldOrder(t *testing.T) {
	year := 2020
	a := Enhancement{Content: BibliographicContent{
		Title:           "Heat and Health",
		PublicationYear: &year,
		Authors:         []Author{{Position: 0, Family: "Doe"}, {Position: 1, Family: "Smith"}},
	}}
	b := Enhancement{Content: BibliographicContent{
		Authors:         []Author{{Position: 0, Family: "Doe"}, {Position: 1, Family: "Smith"}},
		Title:           "Heat and Health",
		PublicationYear: &year,
	}}

	if a.ContentHash() != b.ContentHash() {
		t.Errorf("expected identical content hash regardless of struct literal field order, got %q vs %q", a.ContentHash(), b.ContentHash())
	}
}

func TestEnhancementContentHashDiffersByType(t *testing.T) {
	bib := Enhancement{Content: BibliographicContent{Title: "x"}}
	abs := Enhancement{Content: AbstractContent{Abstract: "x"}}

	if bib.ContentHash() == abs.ContentHash() {
		t.Error("expected different content types to hash differently even with similar payload")
	}
}

func TestNewStampsReferenceIDOntoChildren(t *testing.T) {
	ref := New(VisibilityPublic,
		[]LinkedExternalIdentifier{{Type: IdentifierDOI, Value: "10.1234/abc"}},
		[]Enhancement{{Content: AbstractContent{Abstract: "abstract"}}},
	)

	if ref.Identifiers[0].ReferenceID != ref.ID {
		t.Error("identifier should be stamped with the new reference id")
	}
	if ref.Enhancements[0].ReferenceID != ref.ID {
		t.Error("enhancement should be stamped with the new reference id")
	}
}

func TestIsSupersetOf(t *testing.T) {
	shared := Enhancement{Content: AbstractContent{Abstract: "same"}}
	incoming := New(VisibilityPublic, []LinkedExternalIdentifier{{Type: IdentifierDOI, Value: "10.1234/abc"}}, []Enhancement{shared})
	candidate := New(VisibilityPublic, []LinkedExternalIdentifier{{Type: IdentifierDOI, Value: "10.1234/abc"}}, []Enhancement{shared, {Content: AbstractContent{Abstract: "extra"}}})

	if !candidate.IsSupersetOf(incoming) {
		t.Error("candidate with every identifier/enhancement of incoming (plus more) should be a superset")
	}
	if incoming.IsSupersetOf(candidate) {
		t.Error("incoming is missing the candidate's extra enhancement, should not be a superset")
	}
}

func TestNonOtherIdentifiers(t *testing.T) {
	ref := New(VisibilityPublic, []LinkedExternalIdentifier{
		{Type: IdentifierOther, Value: "x", OtherIdentifierName: "scheme"},
	}, nil)

	if len(ref.NonOtherIdentifiers()) != 0 {
		t.Error("a reference with only other-type identifiers should report zero non-other identifiers (B1)")
	}
}

func TestNormalizeDOIStripsURLPrefix(t *testing.T) {
	got, err := NormalizeDOI("https://doi.org/10.1234/abc.def")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "10.1234/abc.def" {
		t.Errorf("got %q, want 10.1234/abc.def", got)
	}
}

func TestNormalizeDOIRejectsMalformed(t *testing.T) {
	if _, err := NormalizeDOI("not-a-doi"); err == nil {
		t.Error("expected an error for a malformed DOI")
	}
}

func TestValidateOpenAlex(t *testing.T) {
	if err := ValidateOpenAlex("W123456"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateOpenAlex("123456"); err == nil {
		t.Error("expected an error for an id missing the W prefix")
	}
}
