package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/destiny-evidence/reference-repository/pkg/domain/dedup"
	"github.com/destiny-evidence/reference-repository/pkg/sharederr"
)

// ActiveDecision returns the reference's current active decision, if any.
func (s *Store) ActiveDecision(ctx context.Context, referenceID uuid.UUID) (*dedup.Decision, error) {
	var d dedup.Decision
	row := s.queryRow(ctx,
		`SELECT id, reference_id, canonical_reference_id, determination, active_decision, created_at, updated_at
		 FROM reference_duplicate_decisions WHERE reference_id = $1 AND active_decision`, referenceID)
	if err := row.Scan(&d.ID, &d.ReferenceID, &d.CanonicalReferenceID, &d.Determination, &d.ActiveDecision, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, sharederr.DatabaseError("get active decision", err)
	}
	return &d, nil
}

// MapDecision persists a new decision as active and deactivates any prior
// active decision for the same reference (§4.2 phase D). Both writes must
// run inside a caller-opened TransactionalScope so that the replacement is
// atomic; the open question of who wins a race between two concurrent
// callers is resolved by the scope's commit order (see DESIGN.md).
func (s *Store) MapDecision(ctx context.Context, d dedup.Decision) error {
	if err := s.exec(ctx,
		`UPDATE reference_duplicate_decisions SET active_decision = false
		 WHERE reference_id = $1 AND active_decision`, d.ReferenceID,
	); err != nil {
		return sharederr.DatabaseError("deactivate prior decision", err)
	}

	err := s.exec(ctx,
		`INSERT INTO reference_duplicate_decisions
			(id, reference_id, canonical_reference_id, determination, active_decision, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.ReferenceID, d.CanonicalReferenceID, d.Determination, d.ActiveDecision, d.CreatedAt, d.UpdatedAt,
	)
	return mapConstraintError(err, "reference_duplicate_decisions")
}
