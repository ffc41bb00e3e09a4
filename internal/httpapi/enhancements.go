package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/destiny-evidence/reference-repository/pkg/service/enhancement"
)

// defaultLeaseDuration is used when a poll request omits lease_duration.
const defaultLeaseDuration = 10 * time.Minute

// EnhancementsRouter serves the enhancement-request and robot-enhancement-
// batch surface (§6, §4.3).
type EnhancementsRouter struct {
	svc *enhancement.Service
}

// NewEnhancementsRouter constructs an EnhancementsRouter.
func NewEnhancementsRouter(svc *enhancement.Service) *EnhancementsRouter {
	return &EnhancementsRouter{svc: svc}
}

// RequestRoutes mounts /enhancement-requests/.
func (er *EnhancementsRouter) RequestRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", er.createRequest)
	r.Get("/{requestID}/", er.requestStatus)
	return r
}

// BatchRoutes mounts /robot-enhancement-batches/.
func (er *EnhancementsRouter) BatchRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", er.pollBatch)
	r.Post("/{batchID}/renew-lease/", er.renewLease)
	r.Post("/{batchID}/results/", er.ingestResult)
	return r
}

type createRequestRequest struct {
	RobotID      uuid.UUID   `json:"robot_id"`
	ReferenceIDs []uuid.UUID `json:"reference_ids"`
	Source       string      `json:"source"`
}

func (er *EnhancementsRouter) createRequest(w http.ResponseWriter, r *http.Request) {
	var req createRequestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := er.svc.CreateRequest(r.Context(), req.RobotID, req.ReferenceIDs, req.Source)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (er *EnhancementsRouter) requestStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, err)
		return
	}
	status, err := er.svc.RequestStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		RequestStatus string `json:"request_status"`
	}{string(status)})
}

type pollBatchRequest struct {
	RobotID       uuid.UUID `json:"robot_id"`
	Limit         int       `json:"limit"`
	LeaseDuration string    `json:"lease_duration"` // ISO 8601 duration; only the time part (PTnHnMnS) is parsed, anything else falls back to the default
}

func (er *EnhancementsRouter) pollBatch(w http.ResponseWriter, r *http.Request) {
	var req pollBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Limit <= 0 {
		req.Limit = 1
	}
	lease := defaultLeaseDuration
	leaseText := req.LeaseDuration
	if upper := strings.ToUpper(leaseText); strings.HasPrefix(upper, "PT") {
		leaseText = strings.ToLower(upper[2:])
	}
	if parsed, err := time.ParseDuration(leaseText); err == nil && parsed > 0 {
		lease = parsed
	}

	bundle, err := er.svc.LeaseBatch(r.Context(), req.RobotID, req.Limit, lease)
	if err != nil {
		writeError(w, err)
		return
	}
	if bundle == nil {
		// B4: no eligible pending enhancements is "no content", not an error.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

type renewLeaseRequest struct {
	NewExpiry time.Time `json:"new_expiry"`
}

func (er *EnhancementsRouter) renewLease(w http.ResponseWriter, r *http.Request) {
	batchID, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req renewLeaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := er.svc.RenewLease(r.Context(), batchID, req.NewExpiry); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (er *EnhancementsRouter) ingestResult(w http.ResponseWriter, r *http.Request) {
	batchID, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		writeError(w, err)
		return
	}
	summary, err := er.svc.IngestResult(r.Context(), batchID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
