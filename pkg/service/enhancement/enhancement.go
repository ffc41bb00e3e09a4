// Package enhancement implements the robot enhancement lifecycle surfaces
// of spec.md §4.3: request creation, batch leasing, lease renewal, result
// ingestion, lease expiry/retry, and request-status projection.
package enhancement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/destiny-evidence/reference-repository/internal/config"
	"github.com/destiny-evidence/reference-repository/pkg/capability"
	"github.com/destiny-evidence/reference-repository/pkg/domain/enhancement"
	"github.com/destiny-evidence/reference-repository/pkg/domain/reference"
	"github.com/destiny-evidence/reference-repository/pkg/metrics"
	"github.com/destiny-evidence/reference-repository/pkg/obslog"
	"github.com/destiny-evidence/reference-repository/pkg/sharederr"
	"github.com/destiny-evidence/reference-repository/pkg/tracing"
)

// Reindexer re-emits a canonical-like reference's deduplicated projection.
// Satisfied by *synchronizer.References.
type Reindexer interface {
	SyncReference(ctx context.Context, id uuid.UUID) error
}

// EnhancementApplier validates and merges one enhancement onto a
// reference's aggregate. Satisfied by *referencing.Service.
type EnhancementApplier interface {
	AddEnhancement(ctx context.Context, referenceID uuid.UUID, e reference.Enhancement) error
}

// AutomationRunner detects robot automations triggered by a single changed
// canonical reference. Satisfied by *automation.Percolator.
type AutomationRunner interface {
	RunOne(ctx context.Context, canonicalID uuid.UUID, document interface{}, source string, skipRobotID *uuid.UUID) error
}

// LeaseBundle is what a robot poll (§4.3b) receives: the batch record plus
// the three blob handles the round-trip needs.
type LeaseBundle struct {
	Batch               enhancement.RobotEnhancementBatch
	ReferenceDataURL    string
	ResultUploadURL     string
	ValidationResultURL string
}

// IngestionSummary tallies the per-line outcomes of one result ingestion
// (§4.3d).
type IngestionSummary struct {
	Completed int
	Discarded int
	Failed    int
	Missing   int
}

// Service implements the enhancement lifecycle.
type Service struct {
	store      capability.ReferenceStore
	blob       capability.BlobStore
	acl        capability.ACLTranslator
	applier    EnhancementApplier
	reindex    Reindexer
	automation AutomationRunner
	cfg        *config.Config
	log        *obslog.Logger
	metrics    *metrics.Metrics
}

// New constructs a Service. log may be nil, in which case ingestion
// failures are not logged (tests commonly pass nil).
func New(store capability.ReferenceStore, blob capability.BlobStore, acl capability.ACLTranslator, applier EnhancementApplier, reindex Reindexer, automation AutomationRunner, cfg *config.Config, log *obslog.Logger) *Service {
	return &Service{store: store, blob: blob, acl: acl, applier: applier, reindex: reindex, automation: automation, cfg: cfg, log: log}
}

// SetMetrics attaches Prometheus instrumentation. Optional: a Service with
// no metrics attached simply skips recording.
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// CreateRequest verifies every named reference exists, persists an
// EnhancementRequest, and creates one PendingEnhancement per reference
// targeting robotID (§4.3a).
func (s *Service) CreateRequest(ctx context.Context, robotID uuid.UUID, referenceIDs []uuid.UUID, source string) (enhancement.EnhancementRequest, error) {
	for _, id := range referenceIDs {
		ref, err := s.store.GetReference(ctx, id)
		if err != nil {
			return enhancement.EnhancementRequest{}, err
		}
		if ref.ID == uuid.Nil {
			return enhancement.EnhancementRequest{}, sharederr.NewNotFound("reference", id.String())
		}
	}

	req := enhancement.NewEnhancementRequest(robotID, referenceIDs)
	if err := s.store.CreateEnhancementRequest(ctx, req); err != nil {
		return enhancement.EnhancementRequest{}, err
	}

	for _, id := range referenceIDs {
		p := enhancement.NewPendingEnhancement(id, robotID, &req.ID, source)
		if err := s.store.CreatePendingEnhancement(ctx, p); err != nil {
			return enhancement.EnhancementRequest{}, err
		}
	}
	return req, nil
}

// batchPaths derives the three deterministic blob object names a batch's
// round-trip uses, under a per-batch path so LRU client caching (§5) keys
// cleanly per object.
func batchPaths(batchID uuid.UUID) (path, referenceFile, resultFile, validationFile string) {
	path = fmt.Sprintf("enhancement_batches/%s", batchID)
	return path, "reference_data.jsonl", "result.jsonl", "validation_report.jsonl"
}

// LeaseBatch selects up to limit pending enhancements for robotID, dedups
// them by reference id, bulk-transitions the survivors to Processing, and
// streams their hydrated references to blob storage as Reference JSONL
// (§4.3b). Returns a nil bundle (not an error) when nothing is eligible.
func (s *Service) LeaseBatch(ctx context.Context, robotID uuid.UUID, limit int, leaseDuration time.Duration) (*LeaseBundle, error) {
	candidates, err := s.store.LeasePendingEnhancements(ctx, robotID, limit)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	seen := map[uuid.UUID]struct{}{}
	var selected []enhancement.PendingEnhancement
	for _, p := range candidates {
		if _, ok := seen[p.ReferenceID]; ok {
			continue
		}
		seen[p.ReferenceID] = struct{}{}
		selected = append(selected, p)
	}

	var buf bytes.Buffer
	for _, p := range selected {
		ref, err := s.store.GetReference(ctx, p.ReferenceID)
		if err != nil {
			return nil, err
		}
		line, err := encodeReferenceLine(ref)
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	batch := enhancement.NewRobotEnhancementBatch(robotID, "", "")
	batchPath, referenceFilename, resultFilename, validationFilename := batchPaths(batch.ID)

	refHandle, err := s.blob.Put(ctx, s.cfg.DefaultBlobLocation, s.cfg.DefaultBlobContainer, batchPath, referenceFilename, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, sharederr.FailedToWithDetails("upload reference data", "blob", batch.ID.String(), err)
	}
	batch.ReferenceDataURL = refHandle.SignedURL

	resultHandle, err := s.blob.PresignUpload(ctx, s.cfg.DefaultBlobLocation, s.cfg.DefaultBlobContainer, batchPath, resultFilename)
	if err != nil {
		return nil, sharederr.FailedToWithDetails("presign result upload", "blob", batch.ID.String(), err)
	}
	batch.ResultURL = resultHandle.SignedURL

	validationHandle, err := s.blob.PresignUpload(ctx, s.cfg.DefaultBlobLocation, s.cfg.DefaultBlobContainer, batchPath, validationFilename)
	if err != nil {
		return nil, sharederr.FailedToWithDetails("presign validation report upload", "blob", batch.ID.String(), err)
	}
	batch.ValidationResultURL = validationHandle.SignedURL

	if err := s.store.CreateRobotEnhancementBatch(ctx, batch); err != nil {
		return nil, err
	}

	expiresAt := time.Now().UTC().Add(leaseDuration)
	for i := range selected {
		selected[i].LeaseToBatch(batch.ID, expiresAt)
		if err := s.store.UpdatePendingEnhancement(ctx, selected[i]); err != nil {
			return nil, err
		}
	}

	return &LeaseBundle{
		Batch:               batch,
		ReferenceDataURL:    batch.ReferenceDataURL,
		ResultUploadURL:     batch.ResultURL,
		ValidationResultURL: batch.ValidationResultURL,
	}, nil
}

// RenewLease extends every Processing pending enhancement under batchID
// (§4.3c). Returns an InvalidInput error naming the first already-expired
// lease it finds (B5: the caller must request a new batch instead).
func (s *Service) RenewLease(ctx context.Context, batchID uuid.UUID, newExpiry time.Time) error {
	pendings, err := s.store.ListPendingEnhancementsByBatch(ctx, batchID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for i := range pendings {
		if !pendings[i].RenewLease(newExpiry, now) {
			return sharederr.NewInvalidInput(fmt.Sprintf("lease for pending enhancement %s already expired, request a new batch", pendings[i].ID))
		}
	}
	for i := range pendings {
		if err := s.store.UpdatePendingEnhancement(ctx, pendings[i]); err != nil {
			return err
		}
	}
	return nil
}

// IngestResult streams a robot's uploaded result JSONL, applies every
// validated enhancement, discards byte-identical retries, rejects
// out-of-batch or malformed lines, streams a per-line validation report,
// re-indexes affected references, and detects post-ingestion automations
// with skip_robot_id set to the batch's own robot, to prevent a
// self-triggered loop (§4.3d, §4.6).
func (s *Service) IngestResult(ctx context.Context, batchID uuid.UUID) (IngestionSummary, error) {
	ctx, span := tracing.Start(ctx, "enhancement.IngestResult")
	defer span.End()

	var summary IngestionSummary

	batch, err := s.store.GetRobotEnhancementBatch(ctx, batchID)
	if err != nil {
		return summary, err
	}

	pendings, err := s.store.ListPendingEnhancementsByBatch(ctx, batchID)
	if err != nil {
		return summary, err
	}
	expected := map[uuid.UUID]enhancement.PendingEnhancement{}
	for _, p := range pendings {
		expected[p.ReferenceID] = p
	}

	batchPath, _, resultFilename, validationFilename := batchPaths(batchID)
	resultStream, err := s.blob.Get(ctx, s.cfg.DefaultBlobLocation, s.cfg.DefaultBlobContainer, batchPath, resultFilename)
	if err != nil {
		return summary, sharederr.FailedToWithDetails("read result upload", "blob", batchID.String(), err)
	}
	defer func() { _ = resultStream.Close() }()

	var validationBuf bytes.Buffer
	seen := map[uuid.UUID]struct{}{}
	completedRefs := map[uuid.UUID]struct{}{}

	emitValidation := func(refID *uuid.UUID, msg string) {
		line, encErr := s.acl.EncodeValidationEntry(refID, msg)
		if encErr != nil {
			return
		}
		validationBuf.Write(line)
		validationBuf.WriteByte('\n')
	}

	for _, line := range splitLines(resultStream) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		parsed, parseErr := s.acl.ParseReferenceFileLine(line)
		if parseErr != nil {
			summary.Failed++
			emitValidation(nil, fmt.Sprintf("failed to parse result line: %v", parseErr))
			continue
		}

		switch v := parsed.(type) {
		case reference.Enhancement:
			if _, ok := expected[v.ReferenceID]; !ok {
				summary.Failed++
				emitValidation(&v.ReferenceID, "reference id is not part of this batch")
				continue
			}
			if _, dup := seen[v.ReferenceID]; dup {
				summary.Failed++
				emitValidation(&v.ReferenceID, "duplicate result line for the same reference in this stream")
				continue
			}
			seen[v.ReferenceID] = struct{}{}

			applyErr := s.applier.AddEnhancement(ctx, v.ReferenceID, v)
			switch sharederr.KindOf(applyErr) {
			case "":
				summary.Completed++
				completedRefs[v.ReferenceID] = struct{}{}
				s.markPending(ctx, expected[v.ReferenceID], enhancement.StatusIndexing)
			case sharederr.KindDuplicateEnhancement:
				summary.Discarded++
				s.markPending(ctx, expected[v.ReferenceID], enhancement.StatusDiscarded)
			default:
				summary.Failed++
				s.markPending(ctx, expected[v.ReferenceID], enhancement.StatusFailed)
				emitValidation(&v.ReferenceID, applyErr.Error())
			}

		case capability.LinkedRobotError:
			if _, ok := expected[v.ReferenceID]; !ok {
				summary.Failed++
				emitValidation(&v.ReferenceID, "reference id is not part of this batch")
				continue
			}
			seen[v.ReferenceID] = struct{}{}
			summary.Failed++
			s.markPending(ctx, expected[v.ReferenceID], enhancement.StatusFailed)
			emitValidation(&v.ReferenceID, v.Message)

		default:
			summary.Failed++
			emitValidation(nil, "result line did not match an enhancement or a robot error shape")
		}
	}

	for refID, p := range expected {
		if _, ok := seen[refID]; ok {
			continue
		}
		summary.Missing++
		s.markPending(ctx, p, enhancement.StatusFailed)
		emitValidation(&refID, "no result reported for this reference")
	}

	if _, err := s.blob.Put(ctx, s.cfg.DefaultBlobLocation, s.cfg.DefaultBlobContainer, batchPath, validationFilename, bytes.NewReader(validationBuf.Bytes())); err != nil {
		s.warn("upload validation report failed", err, batchID)
	}

	for refID := range completedRefs {
		if s.reindex == nil {
			continue
		}
		if err := s.reindex.SyncReference(ctx, refID); err != nil {
			s.warn("re-index after enhancement failed", err, refID)
			if p, ok := expected[refID]; ok {
				p.Status = enhancement.StatusIndexingFailed
				_ = s.store.UpdatePendingEnhancement(ctx, p)
			}
			continue
		}
		if p, ok := expected[refID]; ok {
			p.Status = enhancement.StatusCompleted
			_ = s.store.UpdatePendingEnhancement(ctx, p)
		}

		if s.automation != nil {
			ref, err := s.store.GetReference(ctx, refID)
			if err != nil {
				s.warn("load reference for automation detection failed", err, refID)
				continue
			}
			if err := s.automation.RunOne(ctx, refID, ref, fmt.Sprintf("RobotEnhancementBatch:%s", batchID), &batch.RobotID); err != nil {
				s.warn("automation detection failed", err, refID)
			}
		}
	}

	return summary, nil
}

func (s *Service) markPending(ctx context.Context, p enhancement.PendingEnhancement, status enhancement.Status) {
	p.Status = status
	p.UpdatedAt = time.Now().UTC()
	_ = s.store.UpdatePendingEnhancement(ctx, p)
}

func (s *Service) warn(msg string, err error, resourceID uuid.UUID) {
	if s.log == nil {
		return
	}
	s.log.Warn(msg, obslog.NewFields().Component("enhancement").Resource("reference", resourceID.String()).Error(err))
}

// SweepExpiredLeases transitions every stale Processing lease to Expired
// and, where the retry chain has not yet reached cfg.MaxRetryCount, creates
// a replacement pending enhancement (§4.3e).
func (s *Service) SweepExpiredLeases(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.store.ListExpiredLeases(ctx, now)
	if err != nil {
		return 0, err
	}
	if s.metrics != nil && len(expired) > 0 {
		s.metrics.LeaseExpiries.Add(float64(len(expired)))
	}

	for i := range expired {
		expired[i].Expire()
		if err := s.store.UpdatePendingEnhancement(ctx, expired[i]); err != nil {
			return i, err
		}

		chain, err := s.store.RetryChain(ctx, expired[i].ID)
		if err != nil {
			return i, err
		}
		if enhancement.RetryDepth(expired[i], chain) >= s.cfg.MaxRetryCount {
			continue
		}

		replacement := expired[i].Retry()
		if err := s.store.CreatePendingEnhancement(ctx, replacement); err != nil {
			return i, err
		}
	}
	return len(expired), nil
}

// RequestStatus projects an EnhancementRequest's status from its pending
// enhancements (§4.3f).
func (s *Service) RequestStatus(ctx context.Context, requestID uuid.UUID) (enhancement.RequestStatus, error) {
	pendings, err := s.store.ListPendingEnhancementsByRequest(ctx, requestID)
	if err != nil {
		return "", err
	}
	statuses := make([]enhancement.Status, len(pendings))
	for i, p := range pendings {
		statuses[i] = p.Status
	}
	return enhancement.DeriveRequestStatus(statuses), nil
}

// splitLines splits a stream into newline-delimited lines, tolerating a
// trailing line with no final newline.
func splitLines(r io.Reader) [][]byte {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil
	}
	return bytes.Split(data, []byte("\n"))
}

// referenceLine is the §6 wire shape one Reference JSONL line hydrates a
// robot's batch with: identifiers, enhancements, and the reference id the
// robot must echo back on every result line.
type referenceLine struct {
	ID           uuid.UUID                          `json:"reference_id"`
	Visibility   reference.Visibility                `json:"visibility"`
	Identifiers  []reference.LinkedExternalIdentifier `json:"identifiers"`
	Enhancements []reference.Enhancement              `json:"enhancements"`
}

// encodeReferenceLine renders one Reference JSONL line for the hydrated
// reference-data blob (§4.3b.4, §6).
func encodeReferenceLine(ref reference.Reference) ([]byte, error) {
	line := referenceLine{
		ID:           ref.ID,
		Visibility:   ref.Visibility,
		Identifiers:  ref.Identifiers,
		Enhancements: ref.Enhancements,
	}
	data, err := json.Marshal(line)
	if err != nil {
		return nil, sharederr.ParseError(ref.ID.String(), "JSON", err)
	}
	return data, nil
}
