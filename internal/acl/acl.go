// Package acl implements capability.ACLTranslator (spec.md §1, §9): the
// anti-corruption boundary between Reference JSONL's wire shapes (§6) and
// the domain's Reference/Enhancement aggregates. Concrete translation is
// explicitly placed at the API boundary, outside core scope, per the
// capability interface's own doc comment.
package acl

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/destiny-evidence/reference-repository/pkg/capability"
	"github.com/destiny-evidence/reference-repository/pkg/domain/reference"
	"github.com/destiny-evidence/reference-repository/pkg/sharederr"
)

// Translator is the concrete ACLTranslator. validate catches wire-shape
// violations (unknown enums, missing required fields) before a line ever
// reaches domain construction, so reference.New*/NewIdentifier only ever
// see structurally sound input.
type Translator struct {
	validate *validator.Validate
}

// New constructs a Translator.
func New() *Translator { return &Translator{validate: validator.New()} }

// wireIdentifier is the §6 wire shape of one LinkedExternalIdentifier.
type wireIdentifier struct {
	Type                reference.IdentifierType `json:"type" validate:"required,oneof=doi pmid openalex other"`
	Value               string                   `json:"value" validate:"required"`
	OtherIdentifierName string                   `json:"other_identifier_name,omitempty"`
}

// wireContent is the §6 wire shape of an EnhancementContent variant,
// discriminated by ContentType with every variant's fields inlined.
type wireContent struct {
	ContentType     reference.EnhancementContentType `json:"content_type" validate:"required,oneof=bibliographic abstract annotation location"`
	Title           string                           `json:"title,omitempty"`
	Authors         []reference.Author               `json:"authors,omitempty"`
	PublicationYear *int                             `json:"publication_year,omitempty"`
	Abstract        string                           `json:"abstract,omitempty"`
	Scheme          string                           `json:"scheme,omitempty"`
	Labels          map[string]bool                  `json:"labels,omitempty"`
	Score           *float64                         `json:"score,omitempty"`
	LandingPageURL  string                           `json:"landing_page_url,omitempty"`
	PDFURL          string                           `json:"pdf_url,omitempty"`
	License         string                           `json:"license,omitempty"`
	IsOA            bool                             `json:"is_oa,omitempty"`
}

func (c wireContent) toDomain() (reference.EnhancementContent, error) {
	switch c.ContentType {
	case reference.ContentBibliographic:
		return reference.BibliographicContent{Title: c.Title, Authors: c.Authors, PublicationYear: c.PublicationYear}, nil
	case reference.ContentAbstract:
		return reference.AbstractContent{Abstract: c.Abstract}, nil
	case reference.ContentAnnotation:
		return reference.AnnotationContent{Scheme: c.Scheme, Labels: c.Labels, Score: c.Score}, nil
	case reference.ContentLocation:
		return reference.LocationContent{LandingPageURL: c.LandingPageURL, PDFURL: c.PDFURL, License: c.License, IsOA: c.IsOA}, nil
	default:
		return nil, sharederr.NewInvalidInput("unrecognized enhancement content_type: " + string(c.ContentType))
	}
}

// wireEnhancement is the §6 wire shape of one Enhancement, whether nested
// inside a ReferenceFileInput or standalone (robot output, carrying its
// own reference_id).
type wireEnhancement struct {
	ID          uuid.UUID   `json:"id,omitempty"`
	ReferenceID *uuid.UUID  `json:"reference_id,omitempty"`
	Content     wireContent `json:"content"`
	DerivedFrom []uuid.UUID `json:"derived_from,omitempty"`
	Source      string      `json:"source,omitempty"`
	Visibility  reference.Visibility `json:"visibility,omitempty"`
}

func (e wireEnhancement) toDomain() (reference.Enhancement, error) {
	content, err := e.Content.toDomain()
	if err != nil {
		return reference.Enhancement{}, err
	}
	enh := reference.Enhancement{
		ID:          e.ID,
		Content:     content,
		DerivedFrom: e.DerivedFrom,
		Source:      e.Source,
		Visibility:  e.Visibility,
	}
	if e.ReferenceID != nil {
		enh.ReferenceID = *e.ReferenceID
	}
	return enh, nil
}

// wireLine is every field any of the three Reference JSONL line shapes
// (§6) can carry; ParseReferenceFileLine dispatches on which are present.
type wireLine struct {
	ReferenceID  *uuid.UUID           `json:"reference_id,omitempty"`
	Message      string               `json:"message,omitempty"`
	Visibility   reference.Visibility `json:"visibility,omitempty" validate:"omitempty,oneof=public restricted hidden"`
	Identifiers  []wireIdentifier     `json:"identifiers,omitempty" validate:"dive"`
	Enhancements []wireEnhancement    `json:"enhancements,omitempty" validate:"dive"`
	Content      *wireContent         `json:"content,omitempty"`
	DerivedFrom  []uuid.UUID          `json:"derived_from,omitempty"`
	Source       string               `json:"source,omitempty"`
}

// ParseReferenceFileLine implements capability.ACLTranslator (§6): a line
// naming "message" is a LinkedRobotError, a line naming "reference_id" plus
// "content" is a standalone Enhancement (robot result output), and
// anything else is a ReferenceFileInput (import/new-reference input).
func (t *Translator) ParseReferenceFileLine(line []byte) (interface{}, error) {
	var wire wireLine
	if err := json.Unmarshal(line, &wire); err != nil {
		return nil, sharederr.ParseError("reference file line", "json", err)
	}
	if err := t.validate.Struct(wire); err != nil {
		return nil, sharederr.NewInvalidInput("reference file line failed validation: " + err.Error())
	}

	switch {
	case wire.Message != "":
		if wire.ReferenceID == nil {
			return nil, sharederr.NewInvalidInput("robot error line missing reference_id")
		}
		return capability.LinkedRobotError{ReferenceID: *wire.ReferenceID, Message: wire.Message}, nil

	case wire.ReferenceID != nil && wire.Content != nil:
		content, err := wire.Content.toDomain()
		if err != nil {
			return nil, err
		}
		return reference.Enhancement{
			ReferenceID: *wire.ReferenceID,
			Content:     content,
			DerivedFrom: wire.DerivedFrom,
			Source:      wire.Source,
			Visibility:  wire.Visibility,
		}, nil

	default:
		identifiers := make([]reference.LinkedExternalIdentifier, 0, len(wire.Identifiers))
		for _, wi := range wire.Identifiers {
			id, err := reference.NewIdentifier(wi.Type, wi.Value, wi.OtherIdentifierName)
			if err != nil {
				return nil, err
			}
			identifiers = append(identifiers, id)
		}
		enhancements := make([]reference.Enhancement, 0, len(wire.Enhancements))
		for _, we := range wire.Enhancements {
			enh, err := we.toDomain()
			if err != nil {
				return nil, err
			}
			enhancements = append(enhancements, enh)
		}
		visibility := wire.Visibility
		if visibility == "" {
			visibility = reference.VisibilityPublic
		}
		return capability.ReferenceFileInput{Visibility: visibility, Identifiers: identifiers, Enhancements: enhancements}, nil
	}
}

// validationEntry is the §6 validation report JSONL shape:
// {reference_id?, error?}.
type validationEntry struct {
	ReferenceID *uuid.UUID `json:"reference_id,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// EncodeValidationEntry implements capability.ACLTranslator (§6).
func (t *Translator) EncodeValidationEntry(referenceID *uuid.UUID, errMsg string) ([]byte, error) {
	b, err := json.Marshal(validationEntry{ReferenceID: referenceID, Error: errMsg})
	if err != nil {
		return nil, sharederr.ParseError("validation entry", "json", err)
	}
	return b, nil
}

var _ capability.ACLTranslator = (*Translator)(nil)
