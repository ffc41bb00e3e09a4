// Package capability defines the interfaces the core depends on but does
// not own the driver for: the transactional store, the search index, blob
// storage, the task queue, and the anti-corruption boundary to external
// request/response DTOs (spec.md §1, §9). Concrete implementations live
// under pkg/store/... and are wired up by cmd/ entry points; the services
// under pkg/service/... depend only on these interfaces.
package capability

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/destiny-evidence/reference-repository/pkg/domain/dedup"
	"github.com/destiny-evidence/reference-repository/pkg/domain/enhancement"
	"github.com/destiny-evidence/reference-repository/pkg/domain/importing"
	"github.com/destiny-evidence/reference-repository/pkg/domain/reference"
)

// TransactionalScope is a unit of work bound to the ReferenceStore: every
// write made through it commits together or rolls back together (§5). A
// scope opened while another scope is already active on the same context
// is a programmer error (UnitOfWorkError, §7) — scopes do not nest.
type TransactionalScope interface {
	// Commit finalizes every write made through this scope.
	Commit(ctx context.Context) error
	// Rollback discards every write made through this scope. Safe to call
	// after a successful Commit (no-op).
	Rollback(ctx context.Context) error
}

// UnitOfWork opens TransactionalScopes against the ReferenceStore.
type UnitOfWork interface {
	// Begin opens a new scope. The returned context carries the scope so
	// store calls issued with it participate in the same transaction.
	Begin(ctx context.Context) (context.Context, TransactionalScope, error)
}

// ReferenceStore persists references, identifiers, enhancements, import
// records/batches/results, duplicate decisions, pending enhancements, robot
// enhancement batches, robots, and robot automations (§1, §3). All methods
// participate in the TransactionalScope carried on ctx, if one is open.
type ReferenceStore interface {
	CreateReference(ctx context.Context, r reference.Reference) error
	GetReference(ctx context.Context, id uuid.UUID) (reference.Reference, error)
	// MergeReference replaces the aggregate's identifiers and enhancements
	// in place (§4.5's "merge" operation, idempotent upsert semantics).
	MergeReference(ctx context.Context, r reference.Reference) error
	// FindReferencesByIdentifierValues returns references owning any of the
	// given identifier values, for exact-duplicate lookup (§4.2 phase A).
	FindReferencesByIdentifierValues(ctx context.Context, values []string) ([]reference.Reference, error)
	// FindReferencesByTrustedIdentifier returns references sharing the given
	// (type, value) identifier, for the trusted-identifier-type shortcut
	// (§4.2 phase C).
	FindReferencesByTrustedIdentifier(ctx context.Context, idType reference.IdentifierType, value string) ([]reference.Reference, error)
	// ListDuplicates returns the references whose active decision points at
	// canonicalID, for projection and synchronizer use.
	ListDuplicates(ctx context.Context, canonicalID uuid.UUID) ([]reference.Reference, error)

	CreateImportRecord(ctx context.Context, r importing.ImportRecord) error
	GetImportRecord(ctx context.Context, id uuid.UUID) (importing.ImportRecord, error)
	CreateImportBatch(ctx context.Context, b importing.ImportBatch) error
	GetImportBatch(ctx context.Context, id uuid.UUID) (importing.ImportBatch, error)
	UpdateImportBatchStatus(ctx context.Context, id uuid.UUID, status importing.ImportBatchStatus) error
	CreateImportResult(ctx context.Context, r importing.ImportResult) error
	UpdateImportResult(ctx context.Context, r importing.ImportResult) error
	ListImportResults(ctx context.Context, batchID uuid.UUID) ([]importing.ImportResult, error)

	// ActiveDecision returns the reference's current active decision, if
	// any (P1: at most one per reference).
	ActiveDecision(ctx context.Context, referenceID uuid.UUID) (*dedup.Decision, error)
	// MapDecision persists a new decision as active and deactivates any
	// prior active decision for the same reference, atomically (§4.2 phase
	// D). Implementations must enforce that the two writes are the last
	// word under concurrent callers (the open-question resolution in
	// DESIGN.md: transaction serialization order wins).
	MapDecision(ctx context.Context, d dedup.Decision) error

	CreatePendingEnhancement(ctx context.Context, p enhancement.PendingEnhancement) error
	UpdatePendingEnhancement(ctx context.Context, p enhancement.PendingEnhancement) error
	// LeasePendingEnhancements selects up to limit PENDING, unbatched rows
	// for robotID, oldest first, and returns them without yet updating
	// them (the caller bulk-updates after deduplicating by reference id,
	// §4.3b.2-3).
	LeasePendingEnhancements(ctx context.Context, robotID uuid.UUID, limit int) ([]enhancement.PendingEnhancement, error)
	ListPendingEnhancementsByBatch(ctx context.Context, batchID uuid.UUID) ([]enhancement.PendingEnhancement, error)
	ListPendingEnhancementsByRequest(ctx context.Context, requestID uuid.UUID) ([]enhancement.PendingEnhancement, error)
	// ListExpiredLeases returns PROCESSING pending enhancements whose
	// expires_at has passed as of now, for the sweeper (§5, §4.3e).
	ListExpiredLeases(ctx context.Context, now time.Time) ([]enhancement.PendingEnhancement, error)
	// RetryChain returns every pending enhancement reachable by walking
	// retry_of from id, for retry-depth counting (§4.3e.2).
	RetryChain(ctx context.Context, id uuid.UUID) (map[uuid.UUID]enhancement.PendingEnhancement, error)

	CreateEnhancementRequest(ctx context.Context, r enhancement.EnhancementRequest) error
	GetEnhancementRequest(ctx context.Context, id uuid.UUID) (enhancement.EnhancementRequest, error)

	CreateRobotEnhancementBatch(ctx context.Context, b enhancement.RobotEnhancementBatch) error
	GetRobotEnhancementBatch(ctx context.Context, id uuid.UUID) (enhancement.RobotEnhancementBatch, error)

	CreateRobot(ctx context.Context, r enhancement.Robot) error
	GetRobot(ctx context.Context, id uuid.UUID) (enhancement.Robot, error)
	DeleteRobot(ctx context.Context, id uuid.UUID) error

	CreateRobotAutomation(ctx context.Context, a enhancement.RobotAutomation) error
	GetRobotAutomation(ctx context.Context, id uuid.UUID) (enhancement.RobotAutomation, error)
	ListRobotAutomations(ctx context.Context) ([]enhancement.RobotAutomation, error)
	DeleteRobotAutomation(ctx context.Context, id uuid.UUID) error
}

// FingerprintCandidate is one relevance-scored result of a fingerprint
// search (§4.2 phase B).
type FingerprintCandidate struct {
	ReferenceID uuid.UUID
	Score       float64
}

// AutomationMatch is one percolator hit: a robot whose saved query matched
// the presented changeset, with the reference ids the match applies to
// (§4.6).
type AutomationMatch struct {
	RobotID      uuid.UUID
	ReferenceIDs []uuid.UUID
}

// SearchFilters narrows a SearchStore query (§4.10).
type SearchFilters struct {
	PublicationYearStart *int
	PublicationYearEnd   *int
	Annotations          []AnnotationFilter
	Sort                 []string
}

// AnnotationFilter matches §4.10's (scheme, optional label, optional score)
// filter tuple.
type AnnotationFilter struct {
	Scheme string
	Label  string
	Score  *float64
}

// SearchResult is one page of a SearchStore query.
type SearchResult struct {
	ReferenceIDs []uuid.UUID
	Total        int
	TotalIsExact bool // false => "gte" relation rather than "eq"
}

// SearchStore indexes the deduplicated projection of each canonical
// reference and hosts a percolator index for robot automations (§1, §4.7,
// §4.10).
type SearchStore interface {
	// UpsertReference indexes the deduplicated projection for a canonical
	// reference id.
	UpsertReference(ctx context.Context, id uuid.UUID, projection interface{}) error
	DeleteReference(ctx context.Context, id uuid.UUID) error

	// FindFingerprintCandidates returns up to limit candidate canonical
	// ids ranked by relevance to fp (§4.2 phase B).
	FindFingerprintCandidates(ctx context.Context, fp dedup.Fingerprint, limit int) ([]FingerprintCandidate, error)

	// Query runs a translated search query (§4.10), returning a page
	// starting at offset.
	Query(ctx context.Context, fields []string, text string, filters SearchFilters, offset, limit int) (SearchResult, error)

	// UpsertAutomation mirrors a saved percolator query into the index
	// (§4.7).
	UpsertAutomation(ctx context.Context, a enhancement.RobotAutomation) error
	DeleteAutomation(ctx context.Context, id uuid.UUID) error

	// PercolateChangeset matches a changeset document against the
	// robot_automations percolator index, merged by robot id (§4.6).
	PercolateChangeset(ctx context.Context, changeset interface{}) ([]AutomationMatch, error)
}

// BlobHandle identifies a stored object plus a signed URL for out-of-process
// access (§5, §6).
type BlobHandle struct {
	StorageLocation string
	Container       string
	Path            string
	Filename        string
	SignedURL       string
}

// BlobStore is content-addressed object storage with streamed read/write
// and signed URLs (§2). Implementations cache one client per
// (storage-location, container, path, filename), LRU-capped at 1000 (§5).
type BlobStore interface {
	// Put streams body to a deterministic path under container, returning
	// a handle with a signed upload or retrieval URL valid for the
	// configured presign expiry.
	Put(ctx context.Context, storageLocation, container, path, filename string, body io.Reader) (BlobHandle, error)
	// Get opens a stream to read an existing object's contents.
	Get(ctx context.Context, storageLocation, container, path, filename string) (io.ReadCloser, error)
	// PresignUpload pre-allocates a handle with a signed PUT URL the robot
	// uploads a result to, without the core writing any bytes itself
	// (§4.3b.5).
	PresignUpload(ctx context.Context, storageLocation, container, path, filename string) (BlobHandle, error)
}

// Task is one at-least-once unit of work dispatched through the TaskQueue
// (§2, §5). Handlers must be re-entrant over their effects.
type Task struct {
	Kind    string
	Payload []byte
	TraceID string
}

// TaskQueue is durable, at-least-once job dispatch with per-task trace
// context (§2).
type TaskQueue interface {
	Enqueue(ctx context.Context, t Task) error
	// Consume registers a handler for a task kind; returns once the
	// consumer is subscribed, with delivery happening on the caller's
	// background goroutines until ctx is cancelled.
	Consume(ctx context.Context, kind string, handler func(context.Context, Task) error) error
}

// ACLTranslator is the anti-corruption boundary between external wire DTOs
// (HTTP request/response bodies, robot JSONL line shapes) and domain types
// (§1 "SDK/DTO marshalling consumed as an anti-corruption boundary").
// Concrete translation lives at the API boundary, outside core scope; the
// core only depends on this interface where a service must accept or
// produce a wire-shaped value (e.g. parsing one JSONL line).
type ACLTranslator interface {
	// ParseReferenceFileLine parses one line of Reference JSONL (§6) into
	// one of ReferenceFileInput, reference.Enhancement (robot output), or a
	// LinkedRobotError, returned as `interface{}` for the caller to type-switch.
	ParseReferenceFileLine(line []byte) (interface{}, error)
	// EncodeValidationEntry renders one line of the validation report
	// JSONL (§6).
	EncodeValidationEntry(referenceID *uuid.UUID, errMsg string) ([]byte, error)
}

// ReferenceFileInput is the §6 wire shape for one "new reference" line of
// Reference JSONL: identifiers plus enhancements plus visibility, with no
// reference id yet minted.
type ReferenceFileInput struct {
	Visibility   reference.Visibility
	Identifiers  []reference.LinkedExternalIdentifier
	Enhancements []reference.Enhancement
}

// LinkedRobotError is the §6 wire shape for a robot-reported per-reference
// failure.
type LinkedRobotError struct {
	ReferenceID uuid.UUID
	Message     string
}
