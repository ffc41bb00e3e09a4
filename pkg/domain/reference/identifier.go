package reference

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/destiny-evidence/reference-repository/pkg/sharederr"
)

// IdentifierType enumerates the external identifier schemes spec.md §6
// recognizes.
type IdentifierType string

const (
	IdentifierDOI      IdentifierType = "doi"
	IdentifierPMID     IdentifierType = "pmid"
	IdentifierOpenAlex IdentifierType = "openalex"
	IdentifierOther    IdentifierType = "other"
)

var (
	doiPattern      = regexp.MustCompile(`^10\.\d{4,9}/[-._;()/:a-zA-Z0-9%<>\[\]+&]+$`)
	openAlexPattern = regexp.MustCompile(`^W\d+$`)
	doiURLPrefixes  = []string{"https://doi.org/", "http://doi.org/"}
)

// LinkedExternalIdentifier is an external ID attached to exactly one
// reference (§3). Uniqueness is per (type, value), and per
// (type, scheme, value) when Type is "other".
type LinkedExternalIdentifier struct {
	ID                  uuid.UUID
	ReferenceID         uuid.UUID
	Type                IdentifierType
	Value               string
	OtherIdentifierName string // disambiguator, required when Type == other
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// UniqueKey returns the tuple this identifier must be unique on, per §3.
func (li LinkedExternalIdentifier) UniqueKey() string {
	if li.Type == IdentifierOther {
		return string(li.Type) + "|" + li.OtherIdentifierName + "|" + li.Value
	}
	return string(li.Type) + "|" + li.Value
}

// NormalizeDOI strips an optional "https://doi.org/"/"http://doi.org/"
// prefix and validates the remainder against the DOI pattern (§6).
func NormalizeDOI(raw string) (string, error) {
	v := raw
	for _, prefix := range doiURLPrefixes {
		if strings.HasPrefix(strings.ToLower(v), prefix) {
			v = v[len(prefix):]
			break
		}
	}
	if !doiPattern.MatchString(v) {
		return "", sharederr.ValidationError("doi", "does not match the DOI pattern")
	}
	return v, nil
}

// ValidatePMID checks value is a non-negative integer (§6).
func ValidatePMID(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return sharederr.ValidationError("pmid", "must be a non-negative integer")
	}
	return nil
}

// ValidateOpenAlex checks value matches ^W\d+$ (§6).
func ValidateOpenAlex(value string) error {
	if !openAlexPattern.MatchString(value) {
		return sharederr.ValidationError("openalex", "must match ^W\\d+$")
	}
	return nil
}

// NewIdentifier validates and constructs a LinkedExternalIdentifier for the
// given type, normalizing DOIs in the process. otherName is required (and
// only meaningful) when identifierType is IdentifierOther.
func NewIdentifier(identifierType IdentifierType, value, otherName string) (LinkedExternalIdentifier, error) {
	switch identifierType {
	case IdentifierDOI:
		normalized, err := NormalizeDOI(value)
		if err != nil {
			return LinkedExternalIdentifier{}, err
		}
		value = normalized
	case IdentifierPMID:
		if err := ValidatePMID(value); err != nil {
			return LinkedExternalIdentifier{}, err
		}
	case IdentifierOpenAlex:
		if err := ValidateOpenAlex(value); err != nil {
			return LinkedExternalIdentifier{}, err
		}
	case IdentifierOther:
		if otherName == "" {
			return LinkedExternalIdentifier{}, sharederr.ValidationError("other_identifier_name", "required for other-type identifiers")
		}
	default:
		return LinkedExternalIdentifier{}, sharederr.NewInvalidInput("unrecognized identifier type: " + string(identifierType))
	}
	return LinkedExternalIdentifier{
		Type:                identifierType,
		Value:               value,
		OtherIdentifierName: otherName,
	}, nil
}
