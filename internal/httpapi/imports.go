package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/destiny-evidence/reference-repository/pkg/capability"
	"github.com/destiny-evidence/reference-repository/pkg/domain/importing"
)

// processImportBatchTaskKind is the TaskQueue kind a worker subscribes to in
// order to run orchestrator.Service.ProcessBatch (§4.4 step 1, "registering
// a batch kicks off streaming").
const processImportBatchTaskKind = "process_import_batch"

// ImportsRouter serves the import-record and import-batch surface (§6).
type ImportsRouter struct {
	store capability.ReferenceStore
	queue capability.TaskQueue
}

// NewImportsRouter constructs an ImportsRouter.
func NewImportsRouter(store capability.ReferenceStore, queue capability.TaskQueue) *ImportsRouter {
	return &ImportsRouter{store: store, queue: queue}
}

// Routes mounts the imports surface.
func (ir *ImportsRouter) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/records/", ir.createRecord)
	r.Post("/records/{recordID}/batches/", ir.registerBatch)
	r.Get("/batches/{batchID}/summary/", ir.batchSummary)
	return r
}

type createImportRecordRequest struct {
	ExpectedReferenceCount int `json:"expected_reference_count"`
}

func (ir *ImportsRouter) createRecord(w http.ResponseWriter, r *http.Request) {
	var req createImportRecordRequest
	req.ExpectedReferenceCount = -1
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	record := importing.NewImportRecord(req.ExpectedReferenceCount)
	if err := ir.store.CreateImportRecord(r.Context(), record); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

type registerBatchRequest struct {
	StorageURL        string                      `json:"storage_url"`
	CollisionStrategy importing.CollisionStrategy `json:"collision_strategy"`
	CallbackURL       string                      `json:"callback_url"`
}

func (ir *ImportsRouter) registerBatch(w http.ResponseWriter, r *http.Request) {
	recordID, err := uuid.Parse(chi.URLParam(r, "recordID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req registerBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.CollisionStrategy == "" {
		req.CollisionStrategy = importing.CollisionFail
	}

	batch := importing.NewImportBatch(recordID, req.StorageURL, req.CollisionStrategy, req.CallbackURL)
	if err := ir.store.CreateImportBatch(r.Context(), batch); err != nil {
		writeError(w, err)
		return
	}

	payload := []byte(`{"import_batch_id":"` + batch.ID.String() + `"}`)
	_ = ir.queue.Enqueue(r.Context(), capability.Task{Kind: processImportBatchTaskKind, Payload: payload, TraceID: batch.ID.String()})

	writeJSON(w, http.StatusCreated, batch)
}

type batchSummaryResponse struct {
	BatchID        uuid.UUID                            `json:"batch_id"`
	Status         importing.ImportBatchStatus          `json:"status"`
	CountsByStatus map[importing.ImportResultStatus]int  `json:"counts_by_status"`
	FailureDetails []string                              `json:"failure_details,omitempty"`
}

func (ir *ImportsRouter) batchSummary(w http.ResponseWriter, r *http.Request) {
	batchID, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		writeError(w, err)
		return
	}

	batch, err := ir.store.GetImportBatch(r.Context(), batchID)
	if err != nil {
		writeError(w, err)
		return
	}
	results, err := ir.store.ListImportResults(r.Context(), batchID)
	if err != nil {
		writeError(w, err)
		return
	}

	counts := map[importing.ImportResultStatus]int{}
	var failures []string
	for _, res := range results {
		counts[res.Status]++
		if res.FailureDetails != "" {
			failures = append(failures, res.FailureDetails)
		}
	}

	writeJSON(w, http.StatusOK, batchSummaryResponse{
		BatchID:        batch.ID,
		Status:         batch.Status,
		CountsByStatus: counts,
		FailureDetails: failures,
	})
}
