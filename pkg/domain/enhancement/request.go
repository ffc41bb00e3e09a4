package enhancement

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the projected status of an EnhancementRequest (§3,
// §4.3f), computed from the statuses of its pending enhancements.
type RequestStatus string

const (
	RequestReceived      RequestStatus = "received"
	RequestProcessing    RequestStatus = "processing"
	RequestCompleted     RequestStatus = "completed"
	RequestFailed        RequestStatus = "failed"
	RequestPartialFailed RequestStatus = "partial_failed"
)

// EnhancementRequest is a logical multi-reference request spanning one
// robot (§3).
type EnhancementRequest struct {
	ID           uuid.UUID
	RobotID      uuid.UUID
	ReferenceIDs []uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewEnhancementRequest constructs a request targeting an explicit set of
// reference ids for one robot (§4.3a.2).
func NewEnhancementRequest(robotID uuid.UUID, referenceIDs []uuid.UUID) EnhancementRequest {
	now := time.Now().UTC()
	return EnhancementRequest{
		ID:           uuid.New(),
		RobotID:      robotID,
		ReferenceIDs: referenceIDs,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// DeriveRequestStatus projects the request's status from its pending
// enhancements' statuses, per §4.3f. Expired pending enhancements are
// ignored per the spec; callers should exclude them before calling, or
// rely on this function's own filter (both are safe — it filters again).
func DeriveRequestStatus(statuses []Status) RequestStatus {
	var relevant []Status
	for _, s := range statuses {
		if s != StatusExpired {
			relevant = append(relevant, s)
		}
	}
	if len(relevant) == 0 {
		// No non-expired pending enhancements left to report on; treat as
		// failed since every attempt expired out without completing.
		return RequestFailed
	}

	allPending := true
	allCompleted := true
	allFailed := true
	anyNonTerminal := false

	for _, s := range relevant {
		if s != StatusPending {
			allPending = false
		}
		if s != StatusCompleted {
			allCompleted = false
		}
		if s != StatusFailed && s != StatusIndexingFailed {
			allFailed = false
		}
		if !IsTerminal(s) {
			anyNonTerminal = true
		}
	}

	switch {
	case allPending:
		return RequestReceived
	case anyNonTerminal:
		return RequestProcessing
	case allCompleted:
		return RequestCompleted
	case allFailed:
		return RequestFailed
	default:
		return RequestPartialFailed
	}
}

// RobotEnhancementBatch is a unit of work leased to a robot poll (§3),
// owning zero-or-more pending enhancements and carrying the three blob
// handles the round-trip needs (§4.3b/d).
type RobotEnhancementBatch struct {
	ID                  uuid.UUID
	RobotID             uuid.UUID
	ReferenceDataURL    string
	ResultURL           string
	ValidationResultURL string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewRobotEnhancementBatch constructs a batch leased to robotID, with the
// reference-data and (pre-allocated) result blob handles.
func NewRobotEnhancementBatch(robotID uuid.UUID, referenceDataURL, resultURL string) RobotEnhancementBatch {
	now := time.Now().UTC()
	return RobotEnhancementBatch{
		ID:               uuid.New(),
		RobotID:          robotID,
		ReferenceDataURL: referenceDataURL,
		ResultURL:        resultURL,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
