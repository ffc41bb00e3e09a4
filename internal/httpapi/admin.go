package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/destiny-evidence/reference-repository/pkg/capability"
	"github.com/destiny-evidence/reference-repository/pkg/domain/enhancement"
)

// AdminRouter serves robot and robot-automation registration (§6).
type AdminRouter struct {
	store capability.ReferenceStore
}

// NewAdminRouter constructs an AdminRouter.
func NewAdminRouter(store capability.ReferenceStore) *AdminRouter {
	return &AdminRouter{store: store}
}

// RobotRoutes mounts /robots/.
func (ar *AdminRouter) RobotRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", ar.createRobot)
	return r
}

// AutomationRoutes mounts /robot-automations/.
func (ar *AdminRouter) AutomationRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", ar.createAutomation)
	return r
}

type createRobotRequest struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
}

// createRobot mints the robot's credential secret here, once, and returns
// it in the response body; the store keeps the secret as given, and
// GetRobot reads it back.
func (ar *AdminRouter) createRobot(w http.ResponseWriter, r *http.Request) {
	var req createRobotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	secret, err := newRobotSecret()
	if err != nil {
		writeError(w, err)
		return
	}

	robot := enhancement.NewRobot(req.Name, req.BaseURL, secret)
	if err := ar.store.CreateRobot(r.Context(), robot); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, robot)
}

func newRobotSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

type createAutomationRequest struct {
	RobotID uuid.UUID       `json:"robot_id"`
	Query   json.RawMessage `json:"query"`
}

func (ar *AdminRouter) createAutomation(w http.ResponseWriter, r *http.Request) {
	var req createAutomationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	automation := enhancement.NewRobotAutomation(req.RobotID, req.Query)
	if err := ar.store.CreateRobotAutomation(r.Context(), automation); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, automation)
}
