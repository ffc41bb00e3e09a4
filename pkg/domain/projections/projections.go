// Package projections computes read-time views over a reference's duplicate
// tree and enhancement set: the deduplicated union of a canonical reference
// with its duplicates (§4.8), and the search/fingerprinting fields derived
// from an enhancement walk (§4.9).
package projections

import (
	"sort"
	"strings"

	"github.com/destiny-evidence/reference-repository/pkg/domain/dedup"
	"github.com/destiny-evidence/reference-repository/pkg/domain/reference"
)

// DuplicateTree supplies a canonical reference together with its directly
// nominated/duplicate children, recursively, so DeduplicatedReferenceProjection
// can walk a chain deeper than one hop if MaxReferenceDuplicateDepth is ever
// configured above its current default of 2.
type DuplicateTree struct {
	Reference  reference.Reference
	Duplicates []DuplicateTree
}

// DeduplicatedReferenceProjection is the flattened view of a canonical
// reference and every duplicate beneath it (§4.8): canonical's own
// identifiers and enhancements come first in their original order, followed
// by each duplicate's (recursively flattened) identifiers and enhancements.
// The duplicate tree itself does not appear in the output.
type DeduplicatedReferenceProjection struct {
	ReferenceID  string
	Visibility   reference.Visibility
	Identifiers  []reference.LinkedExternalIdentifier
	Enhancements []reference.Enhancement
}

// Project computes the deduplicated projection for t, recursing into t's
// duplicates before appending their entries.
func Project(t DuplicateTree) DeduplicatedReferenceProjection {
	p := DeduplicatedReferenceProjection{
		ReferenceID:  t.Reference.ID.String(),
		Visibility:   t.Reference.Visibility,
		Identifiers:  append([]reference.LinkedExternalIdentifier(nil), t.Reference.Identifiers...),
		Enhancements: append([]reference.Enhancement(nil), t.Reference.Enhancements...),
	}
	for _, dup := range t.Duplicates {
		child := Project(dup)
		p.Identifiers = append(p.Identifiers, child.Identifiers...)
		p.Enhancements = append(p.Enhancements, child.Enhancements...)
	}
	return p
}

// SearchFields is the §4.9 ReferenceSearchFields view: bibliographic and
// abstract attributes resolved by "later wins", annotation labels unioned
// as a set, and the separately-extracted singly-projected annotation
// scores.
type SearchFields struct {
	Title            string
	Authors          []reference.Author
	PublicationYear  *int
	Abstract         string
	AnnotationLabels map[string]struct{}
	SinglyProjected  map[string]float64
}

// BuildSearchFields walks enhancements in increasing priority order
// (canonical's own first, then by recency — callers are responsible for
// ordering the slice that way before calling, per §4.9) and folds them into
// a SearchFields view. singlyProjectedKeys is the configured registry of
// annotation scheme keys (e.g. "inclusion:destiny") extracted into
// SinglyProjected rather than into the general label set.
func BuildSearchFields(enhancements []reference.Enhancement, singlyProjectedKeys []string) SearchFields {
	singly := make(map[string]struct{}, len(singlyProjectedKeys))
	for _, k := range singlyProjectedKeys {
		singly[k] = struct{}{}
	}

	sf := SearchFields{
		AnnotationLabels: map[string]struct{}{},
		SinglyProjected:  map[string]float64{},
	}

	// schemeOrder tracks the slice index of the highest-priority enhancement
	// seen per scheme so a later (higher-priority) enhancement in the same
	// scheme replaces the set wholesale rather than merging with it (§4.9:
	// "no coalescing").
	schemeOrder := map[string]int{}

	for i, e := range enhancements {
		switch c := e.Content.(type) {
		case reference.BibliographicContent:
			if c.Title != "" {
				sf.Title = c.Title
			}
			if len(c.Authors) > 0 {
				sf.Authors = c.Authors
			}
			if c.PublicationYear != nil {
				sf.PublicationYear = c.PublicationYear
			}
		case reference.AbstractContent:
			if c.Abstract != "" {
				sf.Abstract = c.Abstract
			}
		case reference.AnnotationContent:
			if _, seen := schemeOrder[c.Scheme]; !seen || i >= schemeOrder[c.Scheme] {
				schemeOrder[c.Scheme] = i
				if _, projected := singly[c.Scheme]; projected {
					if c.Score != nil {
						sf.SinglyProjected[c.Scheme] = *c.Score
					}
				} else {
					prefix := c.Scheme + ":"
					for label := range sf.AnnotationLabels {
						if strings.HasPrefix(label, prefix) {
							delete(sf.AnnotationLabels, label)
						}
					}
					for _, label := range c.PositiveLabels() {
						sf.AnnotationLabels[prefix+label] = struct{}{}
					}
				}
			}
		}
	}

	return sf
}

// Fingerprint derives a dedup.Fingerprint from a SearchFields view, tying
// the §4.9 projection to the §4.2-phase-B matching structure.
func Fingerprint(sf SearchFields) dedup.Fingerprint {
	surnames := make([]string, len(sf.Authors))
	for i, a := range sf.Authors {
		surnames[i] = a.Family
	}
	return dedup.NewFingerprint(sf.Title, surnames, sf.PublicationYear)
}

// AnnotationLabelSet returns the positive-boolean annotation labels as a
// sorted slice, for deterministic indexing/search-query construction.
func (sf SearchFields) AnnotationLabelSet() []string {
	out := make([]string, 0, len(sf.AnnotationLabels))
	for k := range sf.AnnotationLabels {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
