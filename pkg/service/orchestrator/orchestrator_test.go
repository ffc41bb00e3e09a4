package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/destiny-evidence/reference-repository/internal/config"
	"github.com/destiny-evidence/reference-repository/pkg/capability"
	"github.com/destiny-evidence/reference-repository/pkg/domain/dedup"
	"github.com/destiny-evidence/reference-repository/pkg/domain/importing"
	"github.com/destiny-evidence/reference-repository/pkg/domain/reference"
	"github.com/destiny-evidence/reference-repository/pkg/service/ingestion"
)

type fakeStore struct {
	capability.ReferenceStore
	mu           sync.Mutex
	batches      map[uuid.UUID]importing.ImportBatch
	batchStatus  []importing.ImportBatchStatus
	refs         map[uuid.UUID]reference.Reference
	results      map[uuid.UUID]importing.ImportResult
	createdCount int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		batches: map[uuid.UUID]importing.ImportBatch{},
		refs:    map[uuid.UUID]reference.Reference{},
		results: map[uuid.UUID]importing.ImportResult{},
	}
}

func (f *fakeStore) GetImportBatch(ctx context.Context, id uuid.UUID) (importing.ImportBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches[id], nil
}

func (f *fakeStore) UpdateImportBatchStatus(ctx context.Context, id uuid.UUID, status importing.ImportBatchStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchStatus = append(f.batchStatus, status)
	b := f.batches[id]
	b.Status = status
	f.batches[id] = b
	return nil
}

func (f *fakeStore) CreateReference(ctx context.Context, r reference.Reference) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs[r.ID] = r
	f.createdCount++
	return nil
}

func (f *fakeStore) CreateImportResult(ctx context.Context, r importing.ImportResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[r.ID] = r
	return nil
}

func (f *fakeStore) ListImportResults(ctx context.Context, batchID uuid.UUID) ([]importing.ImportResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []importing.ImportResult
	for _, r := range f.results {
		if r.ImportBatchID == batchID {
			out = append(out, r)
		}
	}
	return out, nil
}

type lineACL struct {
	lines map[string]capability.ReferenceFileInput
}

func (a lineACL) ParseReferenceFileLine(line []byte) (interface{}, error) {
	input, ok := a.lines[string(line)]
	if !ok {
		return nil, errUnrecognized
	}
	return input, nil
}

func (a lineACL) EncodeValidationEntry(referenceID *uuid.UUID, errMsg string) ([]byte, error) {
	return nil, nil
}

var errUnrecognized = &testErr{"unrecognized line"}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }

type fakeResolver struct {
	matched     bool
	resolveErrs int
}

func (f *fakeResolver) ResolveExactDuplicate(ctx context.Context, incoming reference.Reference) (dedup.Decision, bool, error) {
	if f.matched {
		return dedup.Decision{ReferenceID: incoming.ID, Determination: dedup.ExactDuplicate}, true, nil
	}
	return dedup.Decision{}, false, nil
}

type fakeQueue struct {
	mu      sync.Mutex
	enqueued []capability.Task
}

func (q *fakeQueue) Enqueue(ctx context.Context, t capability.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, t)
	return nil
}

func (q *fakeQueue) Consume(ctx context.Context, kind string, handler func(context.Context, capability.Task) error) error {
	return nil
}

type fakeReindexer struct {
	mu     sync.Mutex
	synced []uuid.UUID
}

func (f *fakeReindexer) SyncReference(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, id)
	return nil
}

func testConfig() *config.Config {
	return config.DefaultConfig()
}

func TestProcessBatchIngestsResolvesEnqueuesAndIndexes(t *testing.T) {
	line := `{"doi":"10.1/a"}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(line + "\n"))
	}))
	defer server.Close()

	var callbackBody []byte
	callback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callbackBody, _ = json.Marshal(struct{ OK bool }{true})
		w.WriteHeader(http.StatusOK)
		_, _ = r.Body.Read(make([]byte, 1))
	}))
	defer callback.Close()

	store := newFakeStore()
	batchID := uuid.New()
	store.batches[batchID] = importing.ImportBatch{ID: batchID, StorageURL: server.URL, CallbackURL: callback.URL}

	acl := lineACL{lines: map[string]capability.ReferenceFileInput{
		line: {Visibility: reference.VisibilityPublic, Identifiers: []reference.LinkedExternalIdentifier{{Type: reference.IdentifierDOI, Value: "10.1/a"}}},
	}}
	ingest := ingestion.New(acl)
	resolver := &fakeResolver{matched: false}
	queue := &fakeQueue{}
	reindex := &fakeReindexer{}

	svc := New(store, ingest, resolver, queue, reindex, server.Client(), testConfig(), nil)
	if err := svc.ProcessBatch(context.Background(), batchID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.createdCount != 1 {
		t.Fatalf("expected 1 reference created, got %d", store.createdCount)
	}
	if len(queue.enqueued) != 1 {
		t.Fatalf("expected 1 decision task enqueued on a phase A miss, got %d", len(queue.enqueued))
	}
	if len(reindex.synced) != 1 {
		t.Fatalf("expected 1 reference indexed, got %d", len(reindex.synced))
	}
	final := store.batches[batchID].Status
	if final != importing.ImportBatchCompleted {
		t.Fatalf("expected final status completed, got %v", final)
	}
	_ = callbackBody
}

func TestProcessBatchSkipsTaskOnExactDuplicateMatch(t *testing.T) {
	line := `{"doi":"10.1/dup"}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(line + "\n"))
	}))
	defer server.Close()

	store := newFakeStore()
	batchID := uuid.New()
	store.batches[batchID] = importing.ImportBatch{ID: batchID, StorageURL: server.URL}

	acl := lineACL{lines: map[string]capability.ReferenceFileInput{
		line: {Identifiers: []reference.LinkedExternalIdentifier{{Type: reference.IdentifierDOI, Value: "10.1/dup"}}},
	}}
	ingest := ingestion.New(acl)
	resolver := &fakeResolver{matched: true}
	queue := &fakeQueue{}

	svc := New(store, ingest, resolver, queue, &fakeReindexer{}, server.Client(), testConfig(), nil)
	if err := svc.ProcessBatch(context.Background(), batchID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queue.enqueued) != 0 {
		t.Fatalf("expected no decision task on a phase A match, got %d", len(queue.enqueued))
	}
}

func TestProcessBatchPartiallyFailedBatchStillIndexesSuccesses(t *testing.T) {
	goodLine := `{"doi":"10.1/good"}`
	badLine := `{"doi":"unmapped"}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(goodLine + "\n" + badLine + "\n"))
	}))
	defer server.Close()

	store := newFakeStore()
	batchID := uuid.New()
	store.batches[batchID] = importing.ImportBatch{ID: batchID, StorageURL: server.URL}

	acl := lineACL{lines: map[string]capability.ReferenceFileInput{
		goodLine: {Identifiers: []reference.LinkedExternalIdentifier{{Type: reference.IdentifierDOI, Value: "10.1/good"}}},
	}}
	reindex := &fakeReindexer{}

	svc := New(store, ingestion.New(acl), &fakeResolver{}, &fakeQueue{}, reindex, server.Client(), testConfig(), nil)
	if err := svc.ProcessBatch(context.Background(), batchID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.createdCount != 1 {
		t.Fatalf("expected 1 reference created despite the other line failing, got %d", store.createdCount)
	}
	if len(reindex.synced) != 1 {
		t.Fatalf("expected the successfully-created reference to still be indexed, got %d synced", len(reindex.synced))
	}
	final := store.batches[batchID].Status
	if final != importing.ImportBatchPartiallyFailed {
		t.Fatalf("expected final status partially_failed, got %v", final)
	}
}

func TestProcessBatchEmptyFileCompletesWithEmptySummary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(""))
	}))
	defer server.Close()

	store := newFakeStore()
	batchID := uuid.New()
	store.batches[batchID] = importing.ImportBatch{ID: batchID, StorageURL: server.URL}

	svc := New(store, ingestion.New(lineACL{lines: map[string]capability.ReferenceFileInput{}}), &fakeResolver{}, &fakeQueue{}, &fakeReindexer{}, server.Client(), testConfig(), nil)
	if err := svc.ProcessBatch(context.Background(), batchID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.createdCount != 0 {
		t.Fatalf("expected no references created for an empty file, got %d", store.createdCount)
	}
}
