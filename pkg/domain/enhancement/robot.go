package enhancement

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Robot is an external enhancing worker, unique by name (§3). BaseURL is
// metadata only: the repository is polled by the robot, it never calls out
// to one (confirmed by original_source's app/domain/robots/robots.py —
// see SPEC_FULL.md "Supplemented features").
type Robot struct {
	ID        uuid.UUID
	Name      string
	BaseURL   string
	Secret    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRobot registers a robot with a freshly minted credential secret
// supplied by the caller (the API boundary is responsible for generating
// and returning it once; the core only stores it).
func NewRobot(name, baseURL, secret string) Robot {
	now := time.Now().UTC()
	return Robot{
		ID:        uuid.New(),
		Name:      name,
		BaseURL:   baseURL,
		Secret:    secret,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RobotAutomation is a saved percolator query selecting references or
// enhancements that should trigger a given robot (§3), unique per
// (RobotID, Query). Query is the search index's native percolator query
// document, opaque to the core beyond being valid JSON.
type RobotAutomation struct {
	ID        uuid.UUID
	RobotID   uuid.UUID
	Query     json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRobotAutomation constructs an automation binding a percolator query to
// a robot.
func NewRobotAutomation(robotID uuid.UUID, query json.RawMessage) RobotAutomation {
	now := time.Now().UTC()
	return RobotAutomation{
		ID:        uuid.New(),
		RobotID:   robotID,
		Query:     query,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
