// Package dedup defines the deduplication verdict aggregate and the
// Fingerprint projection used to find candidate canonicals (spec.md §3,
// §4.2).
package dedup

import (
	"time"

	"github.com/google/uuid"

	"github.com/destiny-evidence/reference-repository/pkg/sharederr"
)

// Determination is the ReferenceDuplicateDecision state machine (§4.2).
type Determination string

const (
	Pending            Determination = "pending"
	ExactDuplicate     Determination = "exact_duplicate"
	BlurredFingerprint Determination = "blurred_fingerprint"
	Nominated          Determination = "nominated"
	Canonical          Determination = "canonical"
	Duplicate          Determination = "duplicate"
	Decoupled          Determination = "decoupled"
)

var transitions = map[Determination]map[Determination]bool{
	Pending: {
		ExactDuplicate:     true,
		BlurredFingerprint: true,
		Nominated:          true,
		Canonical:          true,
		Duplicate:          true,
		Decoupled:          true,
	},
	Nominated: {
		Canonical: true,
		Duplicate: true,
		Decoupled: true,
	},
}

// IsTerminal reports whether d accepts no further transitions except via a
// superseding decision (§4.2: "terminal with respect to this decision;
// supersession is by creating a new decision").
func IsTerminal(d Determination) bool {
	switch d {
	case ExactDuplicate, BlurredFingerprint, Canonical, Duplicate, Decoupled:
		return true
	default:
		return false
	}
}

// ValidTransition reports whether moving from `from` to `to` is legal.
func ValidTransition(from, to Determination) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}

// CanonicalLike reports whether a reference whose active decision has
// determination det (nil if it has no active decision at all) is
// canonical-like per the glossary: canonical, or no active decision yet.
func CanonicalLike(det *Determination) bool {
	return det == nil || *det == Canonical
}

// Decision is a per-reference deduplication verdict (§3). At most one
// decision per reference has ActiveDecision=true (P1); when Determination
// is Duplicate, CanonicalReferenceID names the canonical (P2).
type Decision struct {
	ID                   uuid.UUID
	ReferenceID          uuid.UUID
	Determination        Determination
	CanonicalReferenceID *uuid.UUID
	ActiveDecision       bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewDecision constructs a decision, validating the requested transition
// against the prior determination (pass nil for a reference with no prior
// decision).
func NewDecision(referenceID uuid.UUID, prior *Determination, det Determination, canonicalID *uuid.UUID) (Decision, error) {
	from := Pending
	if prior != nil {
		from = *prior
	}
	if !ValidTransition(from, det) {
		return Decision{}, sharederr.NewInvalidInput("illegal duplicate determination transition: " + string(from) + " -> " + string(det))
	}
	if det == Duplicate && canonicalID == nil {
		return Decision{}, sharederr.NewInvalidInput("duplicate determination requires a canonical reference id")
	}
	now := time.Now().UTC()
	return Decision{
		ID:                   uuid.New(),
		ReferenceID:          referenceID,
		Determination:        det,
		CanonicalReferenceID: canonicalID,
		ActiveDecision:       true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}
