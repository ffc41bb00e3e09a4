// Package search implements SearchService (spec.md §4.10): translating a
// user-facing query string plus structured filters into a SearchStore
// query and hydrating the resulting page of reference ids back into
// reference aggregates.
package search

import (
	"context"

	"github.com/google/uuid"

	"github.com/destiny-evidence/reference-repository/pkg/capability"
	"github.com/destiny-evidence/reference-repository/pkg/domain/reference"
)

// defaultFields is searched when the query string contains no
// field-qualified term (no "word:" token), per §4.10.
var defaultFields = []string{"title", "abstract"}

// DefaultPageSize is used when a caller requests a non-positive limit.
const DefaultPageSize = 20

// Query is one search request against the deduplicated reference index.
type Query struct {
	Text                 string
	PublicationYearStart *int
	PublicationYearEnd   *int
	Annotations          []capability.AnnotationFilter
	Sort                 []string
	Offset               int
	Limit                int
}

// TotalRelation is "eq" or "gte" per §4.10: whether Total is an exact count
// or a lower bound (the native store may cap exact counting for cost).
type TotalRelation string

const (
	TotalRelationExact TotalRelation = "eq"
	TotalRelationAtLeast TotalRelation = "gte"
)

// Page is one page of hydrated search results.
type Page struct {
	References    []reference.Reference
	Total         int
	TotalRelation TotalRelation
}

// Service runs SearchService.
type Service struct {
	index capability.SearchStore
	store capability.ReferenceStore
}

// New constructs a Service.
func New(index capability.SearchStore, store capability.ReferenceStore) *Service {
	return &Service{index: index, store: store}
}

// Run translates q into a native query, executes it, and hydrates the
// matched reference ids into full aggregates, preserving the store's
// relevance/sort order (§4.10).
func (s *Service) Run(ctx context.Context, q Query) (Page, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	filters := capability.SearchFilters{
		PublicationYearStart: q.PublicationYearStart,
		PublicationYearEnd:   q.PublicationYearEnd,
		Annotations:          q.Annotations,
		Sort:                 q.Sort,
	}

	result, err := s.index.Query(ctx, defaultFields, q.Text, filters, offset, limit)
	if err != nil {
		return Page{}, err
	}

	refs := make([]reference.Reference, 0, len(result.ReferenceIDs))
	for _, id := range result.ReferenceIDs {
		ref, err := s.hydrate(ctx, id)
		if err != nil {
			continue
		}
		refs = append(refs, ref)
	}

	relation := TotalRelationAtLeast
	if result.TotalIsExact {
		relation = TotalRelationExact
	}
	return Page{References: refs, Total: result.Total, TotalRelation: relation}, nil
}

// hydrate loads a matched reference by id. A hit the transactional store no
// longer has (an index lag behind a delete) is skipped rather than failing
// the whole page, since the synchronizer is the authority on convergence.
func (s *Service) hydrate(ctx context.Context, id uuid.UUID) (reference.Reference, error) {
	return s.store.GetReference(ctx, id)
}
