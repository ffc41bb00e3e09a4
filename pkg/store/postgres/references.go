package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/destiny-evidence/reference-repository/pkg/domain/reference"
	"github.com/destiny-evidence/reference-repository/pkg/sharederr"
	"github.com/destiny-evidence/reference-repository/pkg/uow"
)

// rows returns a pgx.Rows cursor against the open scope's transaction, if
// any, otherwise directly against the pool.
func (s *Store) rows(ctx context.Context, query string, args ...interface{}) (pgx.Rows, error) {
	if scope, ok := uow.FromContext(ctx); ok {
		return scope.Tx().Query(ctx, query, args...)
	}
	return s.pool.Query(ctx, query, args...)
}

// CreateReference inserts a reference and its identifiers/enhancements.
func (s *Store) CreateReference(ctx context.Context, r reference.Reference) error {
	if err := s.exec(ctx,
		`INSERT INTO "references" (id, visibility, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		r.ID, r.Visibility, r.CreatedAt, r.UpdatedAt,
	); err != nil {
		return mapConstraintError(err, "references")
	}

	for _, ident := range r.Identifiers {
		if err := s.insertIdentifier(ctx, ident); err != nil {
			return err
		}
	}
	for _, e := range r.Enhancements {
		if err := s.insertEnhancement(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertIdentifier(ctx context.Context, id reference.LinkedExternalIdentifier) error {
	err := s.exec(ctx,
		`INSERT INTO linked_external_identifiers
			(id, reference_id, type, value, other_identifier_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id.ID, id.ReferenceID, id.Type, id.Value, id.OtherIdentifierName, id.CreatedAt, id.UpdatedAt,
	)
	return mapConstraintError(err, "linked_external_identifiers")
}

func (s *Store) insertEnhancement(ctx context.Context, e reference.Enhancement) error {
	contentJSON := e.Content.CanonicalBytes()
	err := s.exec(ctx,
		`INSERT INTO enhancements
			(id, reference_id, content_type, content_json, content_hash, derived_from, source, visibility, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.ReferenceID, e.Content.ContentType(), contentJSON, e.ContentHash(), e.DerivedFrom, e.Source, e.Visibility, e.CreatedAt, e.UpdatedAt,
	)
	return mapConstraintError(err, "enhancements")
}

// GetReference loads a reference with its identifiers and enhancements.
func (s *Store) GetReference(ctx context.Context, id uuid.UUID) (reference.Reference, error) {
	var r reference.Reference
	row := s.queryRow(ctx, `SELECT id, visibility, created_at, updated_at FROM "references" WHERE id = $1`, id)
	if err := row.Scan(&r.ID, &r.Visibility, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return reference.Reference{}, sharederr.NewNotFound("reference", id.String())
		}
		return reference.Reference{}, sharederr.DatabaseError("get reference", err)
	}

	identifiers, err := s.loadIdentifiers(ctx, id)
	if err != nil {
		return reference.Reference{}, err
	}
	r.Identifiers = identifiers

	enhancements, err := s.loadEnhancements(ctx, id)
	if err != nil {
		return reference.Reference{}, err
	}
	r.Enhancements = enhancements
	return r, nil
}

func (s *Store) loadIdentifiers(ctx context.Context, referenceID uuid.UUID) ([]reference.LinkedExternalIdentifier, error) {
	cursor, err := s.rows(ctx,
		`SELECT id, reference_id, type, value, other_identifier_name, created_at, updated_at
		 FROM linked_external_identifiers WHERE reference_id = $1`, referenceID)
	if err != nil {
		return nil, sharederr.DatabaseError("load identifiers", err)
	}
	defer cursor.Close()

	var out []reference.LinkedExternalIdentifier
	for cursor.Next() {
		var id reference.LinkedExternalIdentifier
		if err := cursor.Scan(&id.ID, &id.ReferenceID, &id.Type, &id.Value, &id.OtherIdentifierName, &id.CreatedAt, &id.UpdatedAt); err != nil {
			return nil, sharederr.DatabaseError("scan identifier row", err)
		}
		out = append(out, id)
	}
	return out, cursor.Err()
}

func (s *Store) loadEnhancements(ctx context.Context, referenceID uuid.UUID) ([]reference.Enhancement, error) {
	cursor, err := s.rows(ctx,
		`SELECT id, reference_id, content_type, content_json, derived_from, source, visibility, created_at, updated_at
		 FROM enhancements WHERE reference_id = $1 ORDER BY created_at`, referenceID)
	if err != nil {
		return nil, sharederr.DatabaseError("load enhancements", err)
	}
	defer cursor.Close()

	var out []reference.Enhancement
	for cursor.Next() {
		var (
			e           reference.Enhancement
			contentType reference.EnhancementContentType
			raw         []byte
		)
		if err := cursor.Scan(&e.ID, &e.ReferenceID, &contentType, &raw, &e.DerivedFrom, &e.Source, &e.Visibility, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, sharederr.DatabaseError("scan enhancement row", err)
		}
		content, err := decodeEnhancementContent(contentType, raw)
		if err != nil {
			return nil, err
		}
		e.Content = content
		out = append(out, e)
	}
	return out, cursor.Err()
}

// decodeEnhancementContent reconstructs the sum-type variant from its
// stored (content_type, content_json) pair.
func decodeEnhancementContent(contentType reference.EnhancementContentType, raw []byte) (reference.EnhancementContent, error) {
	switch contentType {
	case reference.ContentBibliographic:
		var c reference.BibliographicContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, sharederr.ParseError("bibliographic enhancement content", "json", err)
		}
		return c, nil
	case reference.ContentAbstract:
		var c reference.AbstractContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, sharederr.ParseError("abstract enhancement content", "json", err)
		}
		return c, nil
	case reference.ContentAnnotation:
		var c reference.AnnotationContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, sharederr.ParseError("annotation enhancement content", "json", err)
		}
		return c, nil
	case reference.ContentLocation:
		var c reference.LocationContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, sharederr.ParseError("location enhancement content", "json", err)
		}
		return c, nil
	default:
		return nil, sharederr.NewInvalidInput("unrecognized enhancement content type: " + string(contentType))
	}
}

// MergeReference replaces the aggregate's identifiers and enhancements in
// place (§4.5's idempotent upsert semantics): existing rows are deleted and
// the supplied set reinserted, inside the caller's transactional scope.
func (s *Store) MergeReference(ctx context.Context, r reference.Reference) error {
	if err := s.exec(ctx, `DELETE FROM linked_external_identifiers WHERE reference_id = $1`, r.ID); err != nil {
		return sharederr.DatabaseError("clear identifiers for merge", err)
	}
	if err := s.exec(ctx, `DELETE FROM enhancements WHERE reference_id = $1`, r.ID); err != nil {
		return sharederr.DatabaseError("clear enhancements for merge", err)
	}
	for _, ident := range r.Identifiers {
		if err := s.insertIdentifier(ctx, ident); err != nil {
			return err
		}
	}
	for _, e := range r.Enhancements {
		if err := s.insertEnhancement(ctx, e); err != nil {
			return err
		}
	}
	return s.exec(ctx, `UPDATE "references" SET visibility = $2, updated_at = $3 WHERE id = $1`,
		r.ID, r.Visibility, r.UpdatedAt)
}

// FindReferencesByIdentifierValues returns references owning any of the
// given identifier values (§4.2 phase A).
func (s *Store) FindReferencesByIdentifierValues(ctx context.Context, values []string) ([]reference.Reference, error) {
	cursor, err := s.rows(ctx,
		`SELECT DISTINCT reference_id FROM linked_external_identifiers WHERE value = ANY($1)`, values)
	if err != nil {
		return nil, sharederr.DatabaseError("find references by identifier values", err)
	}
	var ids []uuid.UUID
	for cursor.Next() {
		var id uuid.UUID
		if err := cursor.Scan(&id); err != nil {
			cursor.Close()
			return nil, sharederr.DatabaseError("scan candidate reference id", err)
		}
		ids = append(ids, id)
	}
	cursor.Close()
	if err := cursor.Err(); err != nil {
		return nil, sharederr.DatabaseError("iterate candidate reference ids", err)
	}

	out := make([]reference.Reference, 0, len(ids))
	for _, id := range ids {
		r, err := s.GetReference(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// FindReferencesByTrustedIdentifier returns references sharing the given
// (type, value) identifier (§4.2 phase C shortcut).
func (s *Store) FindReferencesByTrustedIdentifier(ctx context.Context, idType reference.IdentifierType, value string) ([]reference.Reference, error) {
	cursor, err := s.rows(ctx,
		`SELECT DISTINCT reference_id FROM linked_external_identifiers WHERE type = $1 AND value = $2`, idType, value)
	if err != nil {
		return nil, sharederr.DatabaseError("find references by trusted identifier", err)
	}
	var ids []uuid.UUID
	for cursor.Next() {
		var id uuid.UUID
		if err := cursor.Scan(&id); err != nil {
			cursor.Close()
			return nil, sharederr.DatabaseError("scan trusted-identifier reference id", err)
		}
		ids = append(ids, id)
	}
	cursor.Close()
	if err := cursor.Err(); err != nil {
		return nil, sharederr.DatabaseError("iterate trusted-identifier reference ids", err)
	}

	out := make([]reference.Reference, 0, len(ids))
	for _, id := range ids {
		r, err := s.GetReference(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// ListDuplicates returns the references whose active decision points at
// canonicalID.
func (s *Store) ListDuplicates(ctx context.Context, canonicalID uuid.UUID) ([]reference.Reference, error) {
	cursor, err := s.rows(ctx,
		`SELECT reference_id FROM reference_duplicate_decisions
		 WHERE active_decision AND canonical_reference_id = $1`, canonicalID)
	if err != nil {
		return nil, sharederr.DatabaseError("list duplicates", err)
	}
	var ids []uuid.UUID
	for cursor.Next() {
		var id uuid.UUID
		if err := cursor.Scan(&id); err != nil {
			cursor.Close()
			return nil, sharederr.DatabaseError("scan duplicate reference id", err)
		}
		ids = append(ids, id)
	}
	cursor.Close()
	if err := cursor.Err(); err != nil {
		return nil, sharederr.DatabaseError("iterate duplicate reference ids", err)
	}

	out := make([]reference.Reference, 0, len(ids))
	for _, id := range ids {
		r, err := s.GetReference(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
