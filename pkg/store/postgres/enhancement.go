package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/destiny-evidence/reference-repository/pkg/domain/enhancement"
	"github.com/destiny-evidence/reference-repository/pkg/sharederr"
)

func (s *Store) CreatePendingEnhancement(ctx context.Context, p enhancement.PendingEnhancement) error {
	err := s.exec(ctx,
		`INSERT INTO pending_enhancements
			(id, reference_id, robot_id, enhancement_request_id, robot_enhancement_batch_id, status, source, expires_at, retry_of, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.ReferenceID, p.RobotID, p.EnhancementRequestID, p.RobotEnhancementBatchID, p.Status, p.Source, p.ExpiresAt, p.RetryOf, p.CreatedAt, p.UpdatedAt,
	)
	return mapConstraintError(err, "pending_enhancements")
}

func (s *Store) UpdatePendingEnhancement(ctx context.Context, p enhancement.PendingEnhancement) error {
	return s.exec(ctx,
		`UPDATE pending_enhancements
		 SET robot_enhancement_batch_id = $2, status = $3, expires_at = $4, updated_at = $5
		 WHERE id = $1`,
		p.ID, p.RobotEnhancementBatchID, p.Status, p.ExpiresAt, p.UpdatedAt,
	)
}

func scanPendingEnhancement(row interface {
	Scan(dest ...interface{}) error
}) (enhancement.PendingEnhancement, error) {
	var p enhancement.PendingEnhancement
	err := row.Scan(&p.ID, &p.ReferenceID, &p.RobotID, &p.EnhancementRequestID, &p.RobotEnhancementBatchID, &p.Status, &p.Source, &p.ExpiresAt, &p.RetryOf, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

const pendingEnhancementColumns = `id, reference_id, robot_id, enhancement_request_id, robot_enhancement_batch_id, status, source, expires_at, retry_of, created_at, updated_at`

// LeasePendingEnhancements selects up to limit PENDING, unbatched rows for
// robotID, oldest first (§4.3b.1), leaving the deduplicate-by-reference-id
// and bulk status transition to the caller (EnhancementService), which
// runs inside a transactional scope.
func (s *Store) LeasePendingEnhancements(ctx context.Context, robotID uuid.UUID, limit int) ([]enhancement.PendingEnhancement, error) {
	cursor, err := s.rows(ctx,
		`SELECT `+pendingEnhancementColumns+`
		 FROM pending_enhancements
		 WHERE robot_id = $1 AND status = $2 AND robot_enhancement_batch_id IS NULL
		 ORDER BY created_at ASC
		 LIMIT $3`,
		robotID, enhancement.StatusPending, limit,
	)
	if err != nil {
		return nil, sharederr.DatabaseError("lease pending enhancements", err)
	}
	defer cursor.Close()

	var out []enhancement.PendingEnhancement
	for cursor.Next() {
		p, err := scanPendingEnhancement(cursor)
		if err != nil {
			return nil, sharederr.DatabaseError("scan pending enhancement row", err)
		}
		out = append(out, p)
	}
	return out, cursor.Err()
}

func (s *Store) ListPendingEnhancementsByBatch(ctx context.Context, batchID uuid.UUID) ([]enhancement.PendingEnhancement, error) {
	return s.listPendingEnhancementsBy(ctx, "robot_enhancement_batch_id", batchID)
}

func (s *Store) ListPendingEnhancementsByRequest(ctx context.Context, requestID uuid.UUID) ([]enhancement.PendingEnhancement, error) {
	return s.listPendingEnhancementsBy(ctx, "enhancement_request_id", requestID)
}

func (s *Store) listPendingEnhancementsBy(ctx context.Context, column string, id uuid.UUID) ([]enhancement.PendingEnhancement, error) {
	cursor, err := s.rows(ctx,
		`SELECT `+pendingEnhancementColumns+` FROM pending_enhancements WHERE `+column+` = $1`, id,
	)
	if err != nil {
		return nil, sharederr.DatabaseError("list pending enhancements by "+column, err)
	}
	defer cursor.Close()

	var out []enhancement.PendingEnhancement
	for cursor.Next() {
		p, err := scanPendingEnhancement(cursor)
		if err != nil {
			return nil, sharederr.DatabaseError("scan pending enhancement row", err)
		}
		out = append(out, p)
	}
	return out, cursor.Err()
}

// ListExpiredLeases returns PROCESSING pending enhancements whose
// expires_at has passed as of now (§5, §4.3e), for the sweeper.
func (s *Store) ListExpiredLeases(ctx context.Context, now time.Time) ([]enhancement.PendingEnhancement, error) {
	cursor, err := s.rows(ctx,
		`SELECT `+pendingEnhancementColumns+`
		 FROM pending_enhancements
		 WHERE status = $1 AND expires_at <= $2`,
		enhancement.StatusProcessing, now,
	)
	if err != nil {
		return nil, sharederr.DatabaseError("list expired leases", err)
	}
	defer cursor.Close()

	var out []enhancement.PendingEnhancement
	for cursor.Next() {
		p, err := scanPendingEnhancement(cursor)
		if err != nil {
			return nil, sharederr.DatabaseError("scan expired lease row", err)
		}
		out = append(out, p)
	}
	return out, cursor.Err()
}

// RetryChain returns every pending enhancement reachable by walking
// retry_of from id (§4.3e.2), via a recursive CTE.
func (s *Store) RetryChain(ctx context.Context, id uuid.UUID) (map[uuid.UUID]enhancement.PendingEnhancement, error) {
	cursor, err := s.rows(ctx,
		`WITH RECURSIVE chain AS (
			SELECT `+pendingEnhancementColumns+` FROM pending_enhancements WHERE id = $1
			UNION ALL
			SELECT pe.id, pe.reference_id, pe.robot_id, pe.enhancement_request_id, pe.robot_enhancement_batch_id,
			       pe.status, pe.source, pe.expires_at, pe.retry_of, pe.created_at, pe.updated_at
			FROM pending_enhancements pe
			JOIN chain c ON pe.id = c.retry_of
		 )
		 SELECT * FROM chain`, id,
	)
	if err != nil {
		return nil, sharederr.DatabaseError("load retry chain", err)
	}
	defer cursor.Close()

	out := map[uuid.UUID]enhancement.PendingEnhancement{}
	for cursor.Next() {
		p, err := scanPendingEnhancement(cursor)
		if err != nil {
			return nil, sharederr.DatabaseError("scan retry chain row", err)
		}
		out[p.ID] = p
	}
	return out, cursor.Err()
}

func (s *Store) CreateEnhancementRequest(ctx context.Context, r enhancement.EnhancementRequest) error {
	err := s.exec(ctx,
		`INSERT INTO enhancement_requests (id, robot_id, reference_ids, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.RobotID, r.ReferenceIDs, r.CreatedAt, r.UpdatedAt,
	)
	return mapConstraintError(err, "enhancement_requests")
}

func (s *Store) GetEnhancementRequest(ctx context.Context, id uuid.UUID) (enhancement.EnhancementRequest, error) {
	var r enhancement.EnhancementRequest
	row := s.queryRow(ctx,
		`SELECT id, robot_id, reference_ids, created_at, updated_at FROM enhancement_requests WHERE id = $1`, id)
	if err := row.Scan(&r.ID, &r.RobotID, &r.ReferenceIDs, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return enhancement.EnhancementRequest{}, sharederr.NewNotFound("enhancement_request", id.String())
		}
		return enhancement.EnhancementRequest{}, sharederr.DatabaseError("get enhancement request", err)
	}
	return r, nil
}

func (s *Store) CreateRobotEnhancementBatch(ctx context.Context, b enhancement.RobotEnhancementBatch) error {
	err := s.exec(ctx,
		`INSERT INTO robot_enhancement_batches
			(id, robot_id, reference_data_url, result_url, validation_result_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, b.RobotID, b.ReferenceDataURL, b.ResultURL, b.ValidationResultURL, b.CreatedAt, b.UpdatedAt,
	)
	return mapConstraintError(err, "robot_enhancement_batches")
}

func (s *Store) GetRobotEnhancementBatch(ctx context.Context, id uuid.UUID) (enhancement.RobotEnhancementBatch, error) {
	var b enhancement.RobotEnhancementBatch
	row := s.queryRow(ctx,
		`SELECT id, robot_id, reference_data_url, result_url, validation_result_url, created_at, updated_at
		 FROM robot_enhancement_batches WHERE id = $1`, id)
	if err := row.Scan(&b.ID, &b.RobotID, &b.ReferenceDataURL, &b.ResultURL, &b.ValidationResultURL, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return enhancement.RobotEnhancementBatch{}, sharederr.NewNotFound("robot_enhancement_batch", id.String())
		}
		return enhancement.RobotEnhancementBatch{}, sharederr.DatabaseError("get robot enhancement batch", err)
	}
	return b, nil
}

func (s *Store) CreateRobot(ctx context.Context, r enhancement.Robot) error {
	err := s.exec(ctx,
		`INSERT INTO robots (id, name, base_url, secret, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.Name, r.BaseURL, r.Secret, r.CreatedAt, r.UpdatedAt,
	)
	return mapConstraintError(err, "robots")
}

func (s *Store) GetRobot(ctx context.Context, id uuid.UUID) (enhancement.Robot, error) {
	var r enhancement.Robot
	row := s.queryRow(ctx, `SELECT id, name, base_url, secret, created_at, updated_at FROM robots WHERE id = $1`, id)
	if err := row.Scan(&r.ID, &r.Name, &r.BaseURL, &r.Secret, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return enhancement.Robot{}, sharederr.NewNotFound("robot", id.String())
		}
		return enhancement.Robot{}, sharederr.DatabaseError("get robot", err)
	}
	return r, nil
}

func (s *Store) DeleteRobot(ctx context.Context, id uuid.UUID) error {
	return s.exec(ctx, `DELETE FROM robots WHERE id = $1`, id)
}

func (s *Store) CreateRobotAutomation(ctx context.Context, a enhancement.RobotAutomation) error {
	err := s.exec(ctx,
		`INSERT INTO robot_automations (id, robot_id, query, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.RobotID, []byte(a.Query), a.CreatedAt, a.UpdatedAt,
	)
	return mapConstraintError(err, "robot_automations")
}

func (s *Store) GetRobotAutomation(ctx context.Context, id uuid.UUID) (enhancement.RobotAutomation, error) {
	var (
		a   enhancement.RobotAutomation
		raw []byte
	)
	row := s.queryRow(ctx, `SELECT id, robot_id, query, created_at, updated_at FROM robot_automations WHERE id = $1`, id)
	if err := row.Scan(&a.ID, &a.RobotID, &raw, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return enhancement.RobotAutomation{}, sharederr.NewNotFound("robot_automation", id.String())
		}
		return enhancement.RobotAutomation{}, sharederr.DatabaseError("get robot automation", err)
	}
	a.Query = json.RawMessage(raw)
	return a, nil
}

// ListRobotAutomations returns every saved automation, used to rebuild the
// search store's percolator index on synchronizer startup. This is the
// one read path routed through sqlx's struct scanning rather than a
// manual pgx.Rows loop, grounded on sqlx's own convention of binding
// query results directly onto tagged structs.
func (s *Store) ListRobotAutomations(ctx context.Context) ([]enhancement.RobotAutomation, error) {
	type row struct {
		ID        uuid.UUID `db:"id"`
		RobotID   uuid.UUID `db:"robot_id"`
		Query     []byte    `db:"query"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	var rowsOut []row
	if err := s.sqlx.SelectContext(ctx, &rowsOut,
		`SELECT id, robot_id, query, created_at, updated_at FROM robot_automations ORDER BY created_at`,
	); err != nil {
		return nil, sharederr.DatabaseError("list robot automations", err)
	}

	out := make([]enhancement.RobotAutomation, len(rowsOut))
	for i, r := range rowsOut {
		out[i] = enhancement.RobotAutomation{
			ID:        r.ID,
			RobotID:   r.RobotID,
			Query:     json.RawMessage(r.Query),
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		}
	}
	return out, nil
}

func (s *Store) DeleteRobotAutomation(ctx context.Context, id uuid.UUID) error {
	return s.exec(ctx, `DELETE FROM robot_automations WHERE id = $1`, id)
}
