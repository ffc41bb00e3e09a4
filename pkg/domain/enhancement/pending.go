// Package enhancement defines the robot enhancement lifecycle aggregates:
// PendingEnhancement, EnhancementRequest, RobotEnhancementBatch, Robot, and
// RobotAutomation (spec.md §3, §4.3).
package enhancement

import (
	"time"

	"github.com/google/uuid"
)

// Status is the PendingEnhancement lifecycle (§3).
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusImporting  Status = "importing"
	StatusIndexing   Status = "indexing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusDiscarded  Status = "discarded"
	StatusExpired    Status = "expired"
	// StatusIndexingFailed is a terminal sub-state of indexing failure
	// (§4.3d.7): the enhancement was applied but re-indexing failed. It is
	// stored as its own status value, so callers can tell it apart from a
	// robot-side failure.
	StatusIndexingFailed Status = "indexing_failed"
)

// IsTerminal reports whether a pending enhancement in this status accepts
// no further lifecycle transitions (used by the request-status projection
// to find "non-terminal" work, §4.3f).
func IsTerminal(s Status) bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusDiscarded, StatusExpired, StatusIndexingFailed:
		return true
	default:
		return false
	}
}

// PendingEnhancement is a unit of work for a robot to enhance one reference
// (§3). ExpiresAt is the lease deadline while Status is Processing;
// RetryOf links to the expired predecessor when this row is a retry
// (§4.3e).
type PendingEnhancement struct {
	ID                      uuid.UUID
	ReferenceID             uuid.UUID
	RobotID                 uuid.UUID
	EnhancementRequestID    *uuid.UUID
	RobotEnhancementBatchID *uuid.UUID
	Status                  Status
	Source                  string
	ExpiresAt               *time.Time
	RetryOf                 *uuid.UUID
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// NewPendingEnhancement constructs one pending enhancement in Pending
// status for one (reference, robot) pair (§4.3a.3).
func NewPendingEnhancement(referenceID, robotID uuid.UUID, requestID *uuid.UUID, source string) PendingEnhancement {
	now := time.Now().UTC()
	return PendingEnhancement{
		ID:                   uuid.New(),
		ReferenceID:          referenceID,
		RobotID:              robotID,
		EnhancementRequestID: requestID,
		Status:               StatusPending,
		Source:               source,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// IsExpired reports whether this pending enhancement is a stale lease
// (Processing with ExpiresAt <= now, §5).
func (p PendingEnhancement) IsExpired(now time.Time) bool {
	return p.Status == StatusProcessing && p.ExpiresAt != nil && !p.ExpiresAt.After(now)
}

// LeaseToBatch transitions a Pending enhancement to Processing under the
// given batch, with the given lease expiry (§4.3b.3).
func (p *PendingEnhancement) LeaseToBatch(batchID uuid.UUID, expiresAt time.Time) {
	p.RobotEnhancementBatchID = &batchID
	p.Status = StatusProcessing
	p.ExpiresAt = &expiresAt
	p.UpdatedAt = time.Now().UTC()
}

// RenewLease extends ExpiresAt while still Processing (§4.3c). Returns
// false (and leaves the record unchanged) if the lease already expired —
// the caller must then request a new batch (B5).
func (p *PendingEnhancement) RenewLease(newExpiry time.Time, now time.Time) bool {
	if p.Status != StatusProcessing || p.IsExpired(now) {
		return false
	}
	p.ExpiresAt = &newExpiry
	p.UpdatedAt = now
	return true
}

// Expire transitions a stale Processing lease to Expired (§4.3e.1).
func (p *PendingEnhancement) Expire() {
	p.Status = StatusExpired
	p.UpdatedAt = time.Now().UTC()
}

// Retry constructs a replacement PendingEnhancement in Pending status,
// copying reference/robot/request/source and pointing RetryOf at the
// expired predecessor (§4.3e.2). Ordering guarantees (§5) require the copy
// to preserve Source, EnhancementRequestID, and RobotID.
func (p PendingEnhancement) Retry() PendingEnhancement {
	now := time.Now().UTC()
	expiredID := p.ID
	return PendingEnhancement{
		ID:                   uuid.New(),
		ReferenceID:          p.ReferenceID,
		RobotID:              p.RobotID,
		EnhancementRequestID: p.EnhancementRequestID,
		Status:               StatusPending,
		Source:               p.Source,
		RetryOf:              &expiredID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// RetryDepth counts how many times this pending enhancement (or its
// ancestors, reached via chain) has been retried, by walking RetryOf. chain
// maps an id to its record; depth is the number of hops to the root. A
// fresh (non-retry) pending enhancement has depth 0.
func RetryDepth(p PendingEnhancement, chain map[uuid.UUID]PendingEnhancement) int {
	depth := 0
	cur := p
	for cur.RetryOf != nil {
		prev, ok := chain[*cur.RetryOf]
		if !ok {
			break
		}
		depth++
		cur = prev
	}
	return depth
}
