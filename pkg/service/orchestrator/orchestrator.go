// Package orchestrator implements ImportOrchestrator (spec.md §4.4):
// streaming one ImportBatch's JSONL file, ingesting and exact-duplicate
// resolving each line, deriving the batch's status, indexing what
// completed, and posting a summary to the batch's callback URL.
package orchestrator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/destiny-evidence/reference-repository/internal/config"
	"github.com/destiny-evidence/reference-repository/pkg/capability"
	"github.com/destiny-evidence/reference-repository/pkg/domain/dedup"
	"github.com/destiny-evidence/reference-repository/pkg/domain/importing"
	"github.com/destiny-evidence/reference-repository/pkg/domain/reference"
	"github.com/destiny-evidence/reference-repository/pkg/metrics"
	"github.com/destiny-evidence/reference-repository/pkg/obslog"
	"github.com/destiny-evidence/reference-repository/pkg/service/ingestion"
	"github.com/destiny-evidence/reference-repository/pkg/tracing"
)

// Reindexer indexes a canonical-like reference's deduplicated projection.
// Satisfied by *synchronizer.References.
type Reindexer interface {
	SyncReference(ctx context.Context, id uuid.UUID) error
}

// DuplicateResolver runs the synchronous phase A short-circuit of
// DeduplicationService. Satisfied by *deduplication.Service.
type DuplicateResolver interface {
	ResolveExactDuplicate(ctx context.Context, incoming reference.Reference) (dedup.Decision, bool, error)
}

// decisionTaskKind is the TaskQueue kind a worker subscribes to in order to
// run the deferred phases B-D of the dedup pipeline (§4.2, §4.4 step 3).
const decisionTaskKind = "determine_duplicate"

// resolveDuplicateConcurrency bounds how many phase-A lookups run at once
// per batch (§5: "their deduplication decisions may be processed in
// parallel").
const resolveDuplicateConcurrency = 8

// decisionTaskPayload is the JSON body of a decisionTaskKind task.
type decisionTaskPayload struct {
	ReferenceID uuid.UUID `json:"reference_id"`
}

// Service is the concrete ImportOrchestrator.
type Service struct {
	store           capability.ReferenceStore
	ingest          *ingestion.Service
	resolver        DuplicateResolver
	queue           capability.TaskQueue
	reindex         Reindexer
	client          *http.Client
	fetchBreaker    *gobreaker.CircuitBreaker[*http.Response]
	callbackBreaker *gobreaker.CircuitBreaker[*http.Response]
	cfg             *config.Config
	log             *obslog.Logger
	metrics         *metrics.Metrics
}

// New constructs a Service. client defaults to http.DefaultClient if nil.
// The source fetch and the summary callback each get their own circuit
// breaker, so a source that is down does not also trip the callback path
// open (and vice versa).
func New(store capability.ReferenceStore, ingest *ingestion.Service, resolver DuplicateResolver, queue capability.TaskQueue, reindex Reindexer, client *http.Client, cfg *config.Config, log *obslog.Logger) *Service {
	if client == nil {
		client = http.DefaultClient
	}
	newBreaker := func(name string) *gobreaker.CircuitBreaker[*http.Response] {
		return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:    name,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
	}
	return &Service{
		store:           store,
		ingest:          ingest,
		resolver:        resolver,
		queue:           queue,
		reindex:         reindex,
		client:          client,
		fetchBreaker:    newBreaker("orchestrator-fetch"),
		callbackBreaker: newBreaker("orchestrator-callback"),
		cfg:             cfg,
		log:             log,
	}
}

// SetMetrics attaches Prometheus instrumentation. Optional: a Service with
// no metrics attached simply skips recording.
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// BatchSummary is the §4.4 step 5 callback payload: counts per
// ImportResult status plus collected failure details.
type BatchSummary struct {
	ImportBatchID   uuid.UUID                              `json:"import_batch_id"`
	Status          importing.ImportBatchStatus            `json:"status"`
	CountsByStatus  map[importing.ImportResultStatus]int   `json:"counts_by_status"`
	FailureDetails  []string                                `json:"failure_details,omitempty"`
}

// ProcessBatch runs the full §4.4 pipeline for one ImportBatch.
func (s *Service) ProcessBatch(ctx context.Context, batchID uuid.UUID) error {
	ctx, span := tracing.Start(ctx, "orchestrator.ProcessBatch")
	defer span.End()

	batch, err := s.store.GetImportBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if err := s.store.UpdateImportBatchStatus(ctx, batch.ID, importing.ImportBatchStarted); err != nil {
		return err
	}

	body, err := s.fetchStream(ctx, batch.StorageURL)
	if err != nil {
		_ = s.store.UpdateImportBatchStatus(ctx, batch.ID, importing.ImportBatchFailed)
		s.postSummary(ctx, batch, importing.ImportBatchFailed, nil, []string{err.Error()})
		return err
	}
	defer func() { _ = body.Close() }()

	statuses, streamErr := s.ingestStream(ctx, batch, body)
	if s.metrics != nil {
		s.metrics.BatchReferences.Observe(float64(len(statuses)))
	}

	if streamErr != nil {
		_ = s.store.UpdateImportBatchStatus(ctx, batch.ID, importing.ImportBatchFailed)
		s.postSummary(ctx, batch, importing.ImportBatchFailed, statuses, []string{streamErr.Error()})
		return streamErr
	}

	batchStatus := importing.DeriveBatchStatus(statuses)
	if err := s.store.UpdateImportBatchStatus(ctx, batch.ID, batchStatus); err != nil {
		return err
	}

	finalStatus := s.indexBatch(ctx, batch.ID, batchStatus)
	s.postSummary(ctx, batch, finalStatus, statuses, nil)
	return nil
}

// ingestStream streams body line by line, ingesting and exact-duplicate
// resolving each non-blank line, and returns the statuses of every
// ImportResult produced (§4.4 steps 2-3).
func (s *Service) ingestStream(ctx context.Context, batch importing.ImportBatch, body io.Reader) ([]importing.ImportResultStatus, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(resolveDuplicateConcurrency)

	var statuses []importing.ImportResultStatus
	lineOrdinal := 0
	for scanner.Scan() {
		lineOrdinal++
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		result := importing.NewImportResult(batch.ID, lineOrdinal)
		parsed := s.ingest.IngestReference(line, lineOrdinal)
		if len(parsed.Errors) > 0 {
			result.MarkFailed(parsed.Errors[0].Error())
		} else {
			ref := *parsed.Reference
			if err := s.store.CreateReference(ctx, ref); err != nil {
				result.MarkFailed(err.Error())
			} else {
				group.Go(func() error {
					s.resolveDuplicate(groupCtx, ref)
					return nil
				})
				result.MarkCompleted(ref.ID)
			}
		}

		if err := s.store.CreateImportResult(ctx, result); err != nil {
			_ = group.Wait()
			return statuses, err
		}
		statuses = append(statuses, result.Status)
	}
	if err := scanner.Err(); err != nil {
		_ = group.Wait()
		return statuses, err
	}
	if err := group.Wait(); err != nil {
		return statuses, err
	}
	return statuses, nil
}

// resolveDuplicate runs the phase A short-circuit; on a miss it enqueues a
// decision task for the deferred phases B-D (§4.4 step 3). Failures here
// are logged, not fatal to the batch: the reference is already persisted
// and will surface as Pending until a retry or manual resolution.
func (s *Service) resolveDuplicate(ctx context.Context, ref reference.Reference) {
	_, matched, err := s.resolver.ResolveExactDuplicate(ctx, ref)
	if err != nil {
		s.warn("exact-duplicate resolution failed", err, ref.ID)
		return
	}
	if matched {
		return
	}

	payload, err := json.Marshal(decisionTaskPayload{ReferenceID: ref.ID})
	if err != nil {
		s.warn("failed to encode decision task payload", err, ref.ID)
		return
	}
	task := capability.Task{Kind: decisionTaskKind, Payload: payload, TraceID: ref.ID.String()}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		s.warn("failed to enqueue decision task", err, ref.ID)
	}
}

// indexBatch transitions the batch through Indexing and indexes every
// completed result's reference, returning the final status (§4.4 step 4).
// Per §7, a partially-failed batch (some entries failed, others succeeded)
// is still indexable: only the entries that actually completed are synced,
// and the batch's PartiallyFailed status is preserved rather than
// upgraded to Completed.
func (s *Service) indexBatch(ctx context.Context, batchID uuid.UUID, afterStream importing.ImportBatchStatus) importing.ImportBatchStatus {
	if afterStream != importing.ImportBatchCompleted && afterStream != importing.ImportBatchPartiallyFailed {
		return afterStream
	}
	if err := s.store.UpdateImportBatchStatus(ctx, batchID, importing.ImportBatchIndexing); err != nil {
		return afterStream
	}

	results, err := s.store.ListImportResults(ctx, batchID)
	if err != nil {
		s.warn("failed to list import results for indexing", err, batchID)
		_ = s.store.UpdateImportBatchStatus(ctx, batchID, importing.ImportBatchIndexingFailed)
		return importing.ImportBatchIndexingFailed
	}

	final := afterStream
	for _, r := range results {
		if r.Status != importing.ImportResultCompleted || r.ReferenceID == nil {
			continue
		}
		if s.reindex == nil {
			continue
		}
		if err := s.reindex.SyncReference(ctx, *r.ReferenceID); err != nil {
			s.warn("failed to index reference after import", err, *r.ReferenceID)
			final = importing.ImportBatchIndexingFailed
		}
	}

	if err := s.store.UpdateImportBatchStatus(ctx, batchID, final); err != nil {
		return afterStream
	}
	return final
}

func (s *Service) warn(msg string, err error, resourceID uuid.UUID) {
	if s.log == nil {
		return
	}
	s.log.Warn(msg, obslog.NewFields().Component("orchestrator").Resource("reference", resourceID.String()).Error(err))
}

// fetchStream opens the batch's storage_url, guarded by a circuit breaker
// so a consistently unreachable source trips open rather than blocking
// every worker on repeated timeouts.
func (s *Service) fetchStream(ctx context.Context, url string) (io.ReadCloser, error) {
	resp, err := s.fetchBreaker.Execute(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 400 {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// postSummary posts the §4.4 step 5 batch summary to batch.CallbackURL, if
// set, retrying transport failures up to cfg.CallbackMaxRetries times.
// Failures are logged, not returned: the callback is best-effort.
func (s *Service) postSummary(ctx context.Context, batch importing.ImportBatch, status importing.ImportBatchStatus, statuses []importing.ImportResultStatus, failureDetails []string) {
	if batch.CallbackURL == "" {
		return
	}

	counts := map[importing.ImportResultStatus]int{}
	for _, st := range statuses {
		counts[st]++
	}
	summary := BatchSummary{ImportBatchID: batch.ID, Status: status, CountsByStatus: counts, FailureDetails: failureDetails}
	body, err := json.Marshal(summary)
	if err != nil {
		s.warn("failed to encode batch summary", err, batch.ID)
		return
	}

	var lastErr error
	for attempt := 0; attempt <= s.cfg.CallbackMaxRetries; attempt++ {
		_, err := s.callbackBreaker.Execute(func() (*http.Response, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, batch.CallbackURL, bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := s.client.Do(req)
			if err != nil {
				return nil, err
			}
			_ = resp.Body.Close()
			if resp.StatusCode >= 400 {
				return nil, fmt.Errorf("posting batch summary to %s: status %d", batch.CallbackURL, resp.StatusCode)
			}
			return resp, nil
		})
		if err == nil {
			return
		}
		lastErr = err
	}
	s.warn("failed to post batch summary after retries", lastErr, batch.ID)
}
