package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/destiny-evidence/reference-repository/pkg/domain/importing"
	"github.com/destiny-evidence/reference-repository/pkg/sharederr"
)

func (s *Store) CreateImportRecord(ctx context.Context, r importing.ImportRecord) error {
	err := s.exec(ctx,
		`INSERT INTO import_records (id, expected_reference_count, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.ExpectedReferenceCount, r.Status, r.CreatedAt, r.UpdatedAt,
	)
	return mapConstraintError(err, "import_records")
}

func (s *Store) GetImportRecord(ctx context.Context, id uuid.UUID) (importing.ImportRecord, error) {
	var r importing.ImportRecord
	row := s.queryRow(ctx,
		`SELECT id, expected_reference_count, status, created_at, updated_at FROM import_records WHERE id = $1`, id)
	if err := row.Scan(&r.ID, &r.ExpectedReferenceCount, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return importing.ImportRecord{}, sharederr.NewNotFound("import_record", id.String())
		}
		return importing.ImportRecord{}, sharederr.DatabaseError("get import record", err)
	}
	return r, nil
}

func (s *Store) CreateImportBatch(ctx context.Context, b importing.ImportBatch) error {
	err := s.exec(ctx,
		`INSERT INTO import_batches
			(id, import_record_id, storage_url, collision_strategy, callback_url, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.ID, b.ImportRecordID, b.StorageURL, b.CollisionStrategy, b.CallbackURL, b.Status, b.CreatedAt, b.UpdatedAt,
	)
	return mapConstraintError(err, "import_batches")
}

func (s *Store) GetImportBatch(ctx context.Context, id uuid.UUID) (importing.ImportBatch, error) {
	var b importing.ImportBatch
	row := s.queryRow(ctx,
		`SELECT id, import_record_id, storage_url, collision_strategy, callback_url, status, created_at, updated_at
		 FROM import_batches WHERE id = $1`, id)
	if err := row.Scan(&b.ID, &b.ImportRecordID, &b.StorageURL, &b.CollisionStrategy, &b.CallbackURL, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return importing.ImportBatch{}, sharederr.NewNotFound("import_batch", id.String())
		}
		return importing.ImportBatch{}, sharederr.DatabaseError("get import batch", err)
	}
	return b, nil
}

func (s *Store) UpdateImportBatchStatus(ctx context.Context, id uuid.UUID, status importing.ImportBatchStatus) error {
	return s.exec(ctx, `UPDATE import_batches SET status = $2, updated_at = now() WHERE id = $1`, id, status)
}

func (s *Store) CreateImportResult(ctx context.Context, r importing.ImportResult) error {
	err := s.exec(ctx,
		`INSERT INTO import_results
			(id, import_batch_id, line_ordinal, reference_id, status, failure_details, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.ImportBatchID, r.LineOrdinal, r.ReferenceID, r.Status, r.FailureDetails, r.CreatedAt, r.UpdatedAt,
	)
	return mapConstraintError(err, "import_results")
}

func (s *Store) UpdateImportResult(ctx context.Context, r importing.ImportResult) error {
	return s.exec(ctx,
		`UPDATE import_results
		 SET reference_id = $2, status = $3, failure_details = $4, updated_at = $5
		 WHERE id = $1`,
		r.ID, r.ReferenceID, r.Status, r.FailureDetails, r.UpdatedAt,
	)
}

func (s *Store) ListImportResults(ctx context.Context, batchID uuid.UUID) ([]importing.ImportResult, error) {
	cursor, err := s.rows(ctx,
		`SELECT id, import_batch_id, line_ordinal, reference_id, status, failure_details, created_at, updated_at
		 FROM import_results WHERE import_batch_id = $1 ORDER BY line_ordinal`, batchID)
	if err != nil {
		return nil, sharederr.DatabaseError("list import results", err)
	}
	defer cursor.Close()

	var out []importing.ImportResult
	for cursor.Next() {
		var r importing.ImportResult
		if err := cursor.Scan(&r.ID, &r.ImportBatchID, &r.LineOrdinal, &r.ReferenceID, &r.Status, &r.FailureDetails, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, sharederr.DatabaseError("scan import result row", err)
		}
		out = append(out, r)
	}
	return out, cursor.Err()
}
