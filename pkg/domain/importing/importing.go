// Package importing defines the ingestion campaign aggregates: ImportRecord,
// its ImportBatches, and their ImportResults (spec.md §3).
package importing

import (
	"time"

	"github.com/google/uuid"
)

// ImportRecordStatus is the lifecycle of a logical import campaign (§3).
type ImportRecordStatus string

const (
	ImportRecordCreated   ImportRecordStatus = "created"
	ImportRecordStarted   ImportRecordStatus = "started"
	ImportRecordCompleted ImportRecordStatus = "completed"
	ImportRecordCancelled ImportRecordStatus = "cancelled"
)

// ImportRecord is a logical import campaign owning zero or more batches.
// ExpectedReferenceCount is -1 when unknown (§3).
type ImportRecord struct {
	ID                     uuid.UUID
	ExpectedReferenceCount int
	Status                 ImportRecordStatus
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// NewImportRecord creates a record with an unknown expected count unless
// expectedCount is non-negative.
func NewImportRecord(expectedCount int) ImportRecord {
	now := time.Now().UTC()
	if expectedCount < 0 {
		expectedCount = -1
	}
	return ImportRecord{
		ID:                     uuid.New(),
		ExpectedReferenceCount: expectedCount,
		Status:                 ImportRecordCreated,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// CollisionStrategy tells the orchestrator what to do when a batch
// collides with one already registered at the same storage URL.
type CollisionStrategy string

const (
	CollisionDiscard  CollisionStrategy = "discard"
	CollisionOverwrite CollisionStrategy = "overwrite"
	CollisionFail     CollisionStrategy = "fail"
)

// ImportBatchStatus is the lifecycle of one JSONL file within an import
// (§3, §4.4). Indexing states are appended beyond ingestion per §4.4 step 4.
type ImportBatchStatus string

const (
	ImportBatchCreated         ImportBatchStatus = "created"
	ImportBatchStarted         ImportBatchStatus = "started"
	ImportBatchCompleted       ImportBatchStatus = "completed"
	ImportBatchPartiallyFailed ImportBatchStatus = "partially_failed"
	ImportBatchFailed          ImportBatchStatus = "failed"
	ImportBatchCancelled       ImportBatchStatus = "cancelled"
	ImportBatchIndexing        ImportBatchStatus = "indexing"
	ImportBatchIndexingFailed  ImportBatchStatus = "indexing_failed"
)

// ImportBatch is one JSONL file within an import, unique per
// (ImportRecordID, StorageURL) (§3).
type ImportBatch struct {
	ID                uuid.UUID
	ImportRecordID    uuid.UUID
	StorageURL        string
	CollisionStrategy CollisionStrategy
	CallbackURL       string
	Status            ImportBatchStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewImportBatch registers a batch in the Created state.
func NewImportBatch(importRecordID uuid.UUID, storageURL string, strategy CollisionStrategy, callbackURL string) ImportBatch {
	now := time.Now().UTC()
	return ImportBatch{
		ID:                uuid.New(),
		ImportRecordID:    importRecordID,
		StorageURL:        storageURL,
		CollisionStrategy: strategy,
		CallbackURL:       callbackURL,
		Status:            ImportBatchCreated,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// ImportResultStatus is the per-reference outcome of one batch entry (§3).
type ImportResultStatus string

const (
	ImportResultCreated         ImportResultStatus = "created"
	ImportResultStarted         ImportResultStatus = "started"
	ImportResultCompleted       ImportResultStatus = "completed"
	ImportResultPartiallyFailed ImportResultStatus = "partially_failed"
	ImportResultFailed          ImportResultStatus = "failed"
	ImportResultCancelled       ImportResultStatus = "cancelled"
)

// ImportResult is the per-reference outcome of one batch entry (§3).
// ReferenceID is nil on total failure (e.g. a JSON parse error with no
// reference ever constructed).
type ImportResult struct {
	ID              uuid.UUID
	ImportBatchID   uuid.UUID
	LineOrdinal     int
	ReferenceID     *uuid.UUID
	Status          ImportResultStatus
	FailureDetails  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewImportResult constructs a pending result for one line of a batch.
func NewImportResult(batchID uuid.UUID, lineOrdinal int) ImportResult {
	now := time.Now().UTC()
	return ImportResult{
		ID:            uuid.New(),
		ImportBatchID: batchID,
		LineOrdinal:   lineOrdinal,
		Status:        ImportResultCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// MarkFailed transitions the result to Failed, recording the failure text.
// Per §4.2 "Failure semantics", the triggering duplicate decision (if any)
// remains Pending for later reprocessing; that is the caller's concern, not
// this struct's.
func (r *ImportResult) MarkFailed(reason string) {
	r.Status = ImportResultFailed
	r.FailureDetails = reason
	r.UpdatedAt = time.Now().UTC()
}

// MarkCompleted transitions the result to Completed against the given
// reference id.
func (r *ImportResult) MarkCompleted(referenceID uuid.UUID) {
	r.Status = ImportResultCompleted
	r.ReferenceID = &referenceID
	r.UpdatedAt = time.Now().UTC()
}

// DeriveBatchStatus projects an ImportBatch's status from its results'
// statuses, following the same aggregation pattern as
// enhancement.DeriveRequestStatus (§4.4). A batch whose JSONL stream
// produced zero lines completes immediately with an empty summary (B3).
//
// Per §7, per-entry errors are reported as per-entry ImportResult failures
// rather than failing the whole batch; ImportBatchFailed is reserved for
// stream-level I/O errors, which ProcessBatch sets directly and never
// routes through this function. A mix of failed and successful entries
// therefore derives ImportBatchPartiallyFailed, not ImportBatchFailed, and
// is still indexable; only a batch whose entries failed outright with no
// successes derives ImportBatchFailed.
func DeriveBatchStatus(statuses []ImportResultStatus) ImportBatchStatus {
	if len(statuses) == 0 {
		return ImportBatchCompleted
	}

	allCancelled := true
	anyNonTerminal := false
	anyResultFailed := false
	anySuccess := false

	for _, s := range statuses {
		if s != ImportResultCancelled {
			allCancelled = false
		}
		if s == ImportResultCreated || s == ImportResultStarted {
			anyNonTerminal = true
		}
		if s == ImportResultFailed {
			anyResultFailed = true
		}
		if s == ImportResultCompleted || s == ImportResultPartiallyFailed {
			anySuccess = true
		}
	}

	switch {
	case anyNonTerminal:
		return ImportBatchStarted
	case allCancelled:
		return ImportBatchCancelled
	case anyResultFailed && anySuccess:
		return ImportBatchPartiallyFailed
	case anyResultFailed:
		return ImportBatchFailed
	default:
		return ImportBatchCompleted
	}
}
