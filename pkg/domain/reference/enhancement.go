package reference

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// EnhancementContentType discriminates the EnhancementContent sum type
// (§3, Design Notes §9).
type EnhancementContentType string

const (
	ContentBibliographic EnhancementContentType = "bibliographic"
	ContentAbstract      EnhancementContentType = "abstract"
	ContentAnnotation    EnhancementContentType = "annotation"
	ContentLocation      EnhancementContentType = "location"
)

// EnhancementContent is implemented by each variant of the Enhancement sum
// type. ContentType identifies the variant; CanonicalBytes returns a
// deterministic serialization (sorted keys, no incidental whitespace
// differences) so the content hash is stable across re-serializations (R3).
type EnhancementContent interface {
	ContentType() EnhancementContentType
	CanonicalBytes() []byte
}

// Author is one contributor entry in a BibliographicContent, ordered by
// Position (first -> middle by surname -> last per §4.2 phase B).
type Author struct {
	Position int    `json:"position"`
	Family   string `json:"family"`
	Given    string `json:"given,omitempty"`
}

// BibliographicContent carries title/authorship/year metadata.
type BibliographicContent struct {
	Title           string   `json:"title,omitempty"`
	Authors         []Author `json:"authors,omitempty"`
	PublicationYear *int     `json:"publication_year,omitempty"`
}

func (BibliographicContent) ContentType() EnhancementContentType { return ContentBibliographic }
func (c BibliographicContent) CanonicalBytes() []byte            { return canonicalJSON(c) }

// AbstractContent carries the abstract text.
type AbstractContent struct {
	Abstract string `json:"abstract"`
}

func (AbstractContent) ContentType() EnhancementContentType { return ContentAbstract }
func (c AbstractContent) CanonicalBytes() []byte            { return canonicalJSON(c) }

// AnnotationContent carries a scheme-scoped set of positive-boolean labels
// plus an optional numeric score (§4.9 — e.g. "inclusion:destiny").
type AnnotationContent struct {
	Scheme string          `json:"scheme"`
	Labels map[string]bool `json:"labels,omitempty"`
	Score  *float64        `json:"score,omitempty"`
}

func (AnnotationContent) ContentType() EnhancementContentType { return ContentAnnotation }
func (c AnnotationContent) CanonicalBytes() []byte            { return canonicalJSON(c) }

// PositiveLabels returns the labels in this annotation whose value is true,
// sorted for determinism.
func (c AnnotationContent) PositiveLabels() []string {
	var out []string
	for label, positive := range c.Labels {
		if positive {
			out = append(out, label)
		}
	}
	sort.Strings(out)
	return out
}

// LocationContent carries a full-text/landing-page location.
type LocationContent struct {
	LandingPageURL string `json:"landing_page_url,omitempty"`
	PDFURL         string `json:"pdf_url,omitempty"`
	License        string `json:"license,omitempty"`
	IsOA           bool   `json:"is_oa"`
}

func (LocationContent) ContentType() EnhancementContentType { return ContentLocation }
func (c LocationContent) CanonicalBytes() []byte            { return canonicalJSON(c) }

// canonicalJSON marshals v with sorted map keys (encoding/json already
// sorts map[string]X keys) and no indentation, giving a stable byte
// sequence for content hashing regardless of field ordering upstream.
func canonicalJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// Content variants are plain structs of marshalable fields; a
		// marshal error here indicates a programmer error in a new
		// variant, not a runtime condition.
		panic(err)
	}
	return b
}

// Enhancement is a single piece of content attached to a reference (§3).
// Immutable after creation; DerivedFrom names parent enhancement ids it
// was computed from, which must all belong to the same duplicate tree
// (§4.5, P9).
type Enhancement struct {
	ID          uuid.UUID
	ReferenceID uuid.UUID
	Content     EnhancementContent
	DerivedFrom []uuid.UUID
	Source      string
	Visibility  Visibility
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ContentHash returns a stable hash over the enhancement's content variant,
// used for exact-duplicate detection (§4.2 phase A, §4.5 P8).
func (e Enhancement) ContentHash() string {
	sum := sha256.Sum256(append([]byte(string(e.Content.ContentType())+"|"), e.Content.CanonicalBytes()...))
	return hex.EncodeToString(sum[:])
}
