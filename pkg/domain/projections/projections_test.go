package projections

import (
	"testing"

	"github.com/google/uuid"

	"github.com/destiny-evidence/reference-repository/pkg/domain/reference"
)

func TestProjectFlattensDuplicateChain(t *testing.T) {
	canonical := reference.New(reference.VisibilityPublic, []reference.LinkedExternalIdentifier{
		{Type: reference.IdentifierDOI, Value: "10.1/canonical"},
	}, nil)
	child := reference.New(reference.VisibilityPublic, []reference.LinkedExternalIdentifier{
		{Type: reference.IdentifierDOI, Value: "10.1/child"},
	}, nil)
	grandchild := reference.New(reference.VisibilityPublic, []reference.LinkedExternalIdentifier{
		{Type: reference.IdentifierDOI, Value: "10.1/grandchild"},
	}, nil)

	tree := DuplicateTree{
		Reference: canonical,
		Duplicates: []DuplicateTree{
			{Reference: child, Duplicates: []DuplicateTree{{Reference: grandchild}}},
		},
	}

	p := Project(tree)
	if len(p.Identifiers) != 3 {
		t.Fatalf("expected 3 flattened identifiers, got %d", len(p.Identifiers))
	}
	if p.Identifiers[0].Value != "10.1/canonical" {
		t.Errorf("expected canonical's own identifier first, got %q", p.Identifiers[0].Value)
	}
	if p.Identifiers[2].Value != "10.1/grandchild" {
		t.Errorf("expected grandchild's identifier last, got %q", p.Identifiers[2].Value)
	}
}

func TestBuildSearchFieldsLaterWins(t *testing.T) {
	yearEarly := 2018
	yearLate := 2020
	enhancements := []reference.Enhancement{
		{ID: uuid.New(), Content: reference.BibliographicContent{Title: "Early Title", PublicationYear: &yearEarly}},
		{ID: uuid.New(), Content: reference.BibliographicContent{Title: "Late Title", PublicationYear: &yearLate}},
	}

	sf := BuildSearchFields(enhancements, nil)
	if sf.Title != "Late Title" {
		t.Errorf("expected later bibliographic enhancement to win title, got %q", sf.Title)
	}
	if sf.PublicationYear == nil || *sf.PublicationYear != 2020 {
		t.Errorf("expected later bibliographic enhancement to win year, got %v", sf.PublicationYear)
	}
}

func TestBuildSearchFieldsAnnotationNoCoalescing(t *testing.T) {
	enhancements := []reference.Enhancement{
		{ID: uuid.New(), Content: reference.AnnotationContent{Scheme: "inclusion:screen", Labels: map[string]bool{"include": true, "flag": true}}},
		{ID: uuid.New(), Content: reference.AnnotationContent{Scheme: "inclusion:screen", Labels: map[string]bool{"include": true}}},
	}

	sf := BuildSearchFields(enhancements, nil)
	labels := sf.AnnotationLabelSet()
	if len(labels) != 1 || labels[0] != "inclusion:screen:include" {
		t.Errorf("expected only the later enhancement's labels to survive (no coalescing), got %v", labels)
	}
}

func TestBuildSearchFieldsSinglyProjected(t *testing.T) {
	score := 0.92
	enhancements := []reference.Enhancement{
		{ID: uuid.New(), Content: reference.AnnotationContent{Scheme: "inclusion:destiny", Score: &score}},
	}

	sf := BuildSearchFields(enhancements, []string{"inclusion:destiny"})
	if len(sf.AnnotationLabels) != 0 {
		t.Errorf("singly-projected scheme should not appear in the general label set, got %v", sf.AnnotationLabels)
	}
	if sf.SinglyProjected["inclusion:destiny"] != 0.92 {
		t.Errorf("expected singly-projected score 0.92, got %v", sf.SinglyProjected["inclusion:destiny"])
	}
}

func TestFingerprintFromSearchFields(t *testing.T) {
	year := 2021
	sf := SearchFields{
		Title:           "Heat and Health",
		Authors:         []reference.Author{{Family: "Smith"}, {Family: "Doe"}},
		PublicationYear: &year,
	}
	fp := Fingerprint(sf)
	if !fp.Searchable {
		t.Error("expected a complete search-fields view to yield a searchable fingerprint")
	}
}
