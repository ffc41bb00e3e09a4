// Package reference defines the root aggregate of the repository: a
// scholarly Reference, its LinkedExternalIdentifiers, and its
// Enhancements, per spec.md §3.
package reference

import (
	"time"

	"github.com/google/uuid"
)

// Visibility is carried through from original_source's ReferenceFileInput
// (see SPEC_FULL.md "Supplemented features"). The core stores it but makes
// no access-control decision on it — that belongs to the ACLTranslator/API
// boundary.
type Visibility string

const (
	VisibilityPublic     Visibility = "public"
	VisibilityRestricted Visibility = "restricted"
	VisibilityHidden     Visibility = "hidden"
)

// Reference is the root aggregate for a scholarly work (§3). References
// are never deleted; "owns" its identifiers and enhancements for their
// exclusive lifetime.
type Reference struct {
	ID           uuid.UUID
	Visibility   Visibility
	Identifiers  []LinkedExternalIdentifier
	Enhancements []Enhancement
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// New mints a fresh reference id and stamps it onto every identifier and
// enhancement that does not already name a reference, per §4.1 step 2.
func New(visibility Visibility, identifiers []LinkedExternalIdentifier, enhancements []Enhancement) Reference {
	id := uuid.New()
	now := time.Now().UTC()

	for i := range identifiers {
		if identifiers[i].ReferenceID == uuid.Nil {
			identifiers[i].ReferenceID = id
		}
		identifiers[i].ID = uuid.New()
		identifiers[i].CreatedAt = now
		identifiers[i].UpdatedAt = now
	}
	for i := range enhancements {
		if enhancements[i].ReferenceID == uuid.Nil {
			enhancements[i].ReferenceID = id
		}
		enhancements[i].ID = uuid.New()
		enhancements[i].CreatedAt = now
		enhancements[i].UpdatedAt = now
	}

	return Reference{
		ID:           id,
		Visibility:   visibility,
		Identifiers:  identifiers,
		Enhancements: enhancements,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IdentifierValues returns every identifier value on the reference,
// regardless of type, used to look up exact-duplicate candidates (§4.2
// phase A).
func (r Reference) IdentifierValues() []string {
	out := make([]string, len(r.Identifiers))
	for i, id := range r.Identifiers {
		out[i] = id.Value
	}
	return out
}

// NonOtherIdentifiers returns the identifiers whose type is not "other"
// (B1: a reference with only "other" identifiers never matches exact
// duplicate short-circuit).
func (r Reference) NonOtherIdentifiers() []LinkedExternalIdentifier {
	var out []LinkedExternalIdentifier
	for _, id := range r.Identifiers {
		if id.Type != IdentifierOther {
			out = append(out, id)
		}
	}
	return out
}

// ContentHashSet returns the set of content hashes of every enhancement on
// the reference, used by the exact-duplicate superset check (§4.2 phase A).
func (r Reference) ContentHashSet() map[string]struct{} {
	set := make(map[string]struct{}, len(r.Enhancements))
	for _, e := range r.Enhancements {
		set[e.ContentHash()] = struct{}{}
	}
	return set
}

// IdentifierKeySet returns the set of identifier unique keys on the
// reference, used by the exact-duplicate superset check (§4.2 phase A).
func (r Reference) IdentifierKeySet() map[string]struct{} {
	set := make(map[string]struct{}, len(r.Identifiers))
	for _, id := range r.Identifiers {
		set[id.UniqueKey()] = struct{}{}
	}
	return set
}

// IsSupersetOf reports whether r contains every identifier and enhancement
// (by content hash) present in other — the §4.2 phase A test for "this
// candidate is a superset of the incoming reference" is
// `candidate.IsSupersetOf(incoming)`.
func (r Reference) IsSupersetOf(other Reference) bool {
	rIDs := r.IdentifierKeySet()
	for key := range other.IdentifierKeySet() {
		if _, ok := rIDs[key]; !ok {
			return false
		}
	}
	rHashes := r.ContentHashSet()
	for hash := range other.ContentHashSet() {
		if _, ok := rHashes[hash]; !ok {
			return false
		}
	}
	return true
}
