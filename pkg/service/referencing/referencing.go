// Package referencing implements add_enhancement (spec.md §4.5): validating
// and merging one enhancement onto an existing reference, and the
// idempotent-upsert "merge" operation a duplicate reference's whole
// aggregate goes through.
package referencing

import (
	"context"

	"github.com/google/uuid"

	"github.com/destiny-evidence/reference-repository/pkg/capability"
	"github.com/destiny-evidence/reference-repository/pkg/domain/reference"
	"github.com/destiny-evidence/reference-repository/pkg/sharederr"
)

// Reindexer re-emits a canonical-like reference's deduplicated projection
// to the search index. Satisfied by *synchronizer.References.
type Reindexer interface {
	SyncReference(ctx context.Context, id uuid.UUID) error
}

// Service applies enhancements to references under the add_enhancement
// rules.
type Service struct {
	store   capability.ReferenceStore
	reindex Reindexer
}

// New constructs a Service.
func New(store capability.ReferenceStore, reindex Reindexer) *Service {
	return &Service{store: store, reindex: reindex}
}

// AddEnhancement validates and appends e to referenceID's aggregate (§4.5).
// An exact content-hash match against an existing enhancement returns a
// DuplicateEnhancementError (sharederr.KindDuplicateEnhancement) rather
// than applying anything, since a robot's retried upload naturally
// reproduces byte-identical content; callers categorize that as §4.3d.3's
// DISCARDED outcome via sharederr.KindOf. Every DerivedFrom parent must
// belong to the reference itself or one of its duplicates, otherwise the
// call fails with InvalidParentEnhancementError.
func (s *Service) AddEnhancement(ctx context.Context, referenceID uuid.UUID, e reference.Enhancement) error {
	ref, err := s.store.GetReference(ctx, referenceID)
	if err != nil {
		return err
	}

	if _, exists := ref.ContentHashSet()[e.ContentHash()]; exists {
		return sharederr.NewDuplicateEnhancement(referenceID.String())
	}

	duplicates, err := s.store.ListDuplicates(ctx, referenceID)
	if err != nil {
		return err
	}

	if len(e.DerivedFrom) > 0 {
		valid := map[uuid.UUID]struct{}{referenceID: {}}
		for _, d := range duplicates {
			valid[d.ID] = struct{}{}
		}
		for _, parentID := range e.DerivedFrom {
			parentEnh, ok := findEnhancement(ref, duplicates, parentID)
			if !ok {
				return sharederr.NewInvalidParentEnhancement(parentID.String())
			}
			if _, ok := valid[parentEnh.ReferenceID]; !ok {
				return sharederr.NewInvalidParentEnhancement(parentID.String())
			}
		}
	}

	e.ReferenceID = referenceID
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	ref.Enhancements = append(ref.Enhancements, e)

	if err := s.store.MergeReference(ctx, ref); err != nil {
		return err
	}

	if s.reindex != nil {
		return s.reindex.SyncReference(ctx, referenceID)
	}
	return nil
}

// findEnhancement looks for an enhancement by id on ref itself or any of
// its preloaded duplicates, so a DerivedFrom parent can be validated
// against the whole duplicate tree, not just ref's own enhancements.
func findEnhancement(ref reference.Reference, duplicates []reference.Reference, id uuid.UUID) (reference.Enhancement, bool) {
	for _, e := range ref.Enhancements {
		if e.ID == id {
			return e, true
		}
	}
	for _, d := range duplicates {
		for _, e := range d.Enhancements {
			if e.ID == id {
				return e, true
			}
		}
	}
	return reference.Enhancement{}, false
}

// Merge replaces r's aggregate in place, an idempotent upsert used when a
// caller holds an updated domain reference with refreshed
// identifiers/enhancements (§4.5's closing paragraph).
func (s *Service) Merge(ctx context.Context, r reference.Reference) error {
	return s.store.MergeReference(ctx, r)
}
