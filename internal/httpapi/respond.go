// Package httpapi adapts the core services onto the §6 HTTP surface: thin
// chi handlers that decode a request, call exactly one service method, and
// encode the result. Route wiring lives here at interface level, not
// bit-exact to any particular wire contract (§6's own framing).
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/destiny-evidence/reference-repository/pkg/sharederr"
)

// errorBody is the §7 "4xx with a detail string" / "5xx for internal
// errors" user-visible failure shape.
type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{Detail: err.Error()})
}

// statusFor maps a sharederr Kind onto the §7 propagation table: lookup
// and request-shape failures surface as 4xx, everything else not
// specifically categorized is an internal error.
func statusFor(err error) int {
	switch sharederr.KindOf(err) {
	case sharederr.KindNotFound:
		return http.StatusNotFound
	case sharederr.KindDuplicate, sharederr.KindInvalidInput, sharederr.KindInvalidParentEnhancement, sharederr.KindDuplicateEnhancement:
		return http.StatusBadRequest
	case sharederr.KindStoreQueryError:
		return http.StatusBadRequest
	case sharederr.KindMalformedIndexDocument:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return sharederr.NewInvalidInput("malformed request body: " + err.Error())
	}
	return nil
}
