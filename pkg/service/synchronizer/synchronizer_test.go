package synchronizer

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/destiny-evidence/reference-repository/pkg/capability"
	"github.com/destiny-evidence/reference-repository/pkg/domain/dedup"
	"github.com/destiny-evidence/reference-repository/pkg/domain/reference"
)

// fakeStore implements capability.ReferenceStore by embedding the
// interface (nil) and overriding only the methods these tests exercise;
// any unoverridden method panics if called, which is the point.
type fakeStore struct {
	capability.ReferenceStore
	refs       map[uuid.UUID]reference.Reference
	decisions  map[uuid.UUID]*dedup.Decision
	duplicates map[uuid.UUID][]reference.Reference
}

func (f *fakeStore) GetReference(ctx context.Context, id uuid.UUID) (reference.Reference, error) {
	return f.refs[id], nil
}

func (f *fakeStore) ActiveDecision(ctx context.Context, referenceID uuid.UUID) (*dedup.Decision, error) {
	return f.decisions[referenceID], nil
}

func (f *fakeStore) ListDuplicates(ctx context.Context, canonicalID uuid.UUID) ([]reference.Reference, error) {
	return f.duplicates[canonicalID], nil
}

type fakeSearch struct {
	capability.SearchStore
	upserted map[uuid.UUID]interface{}
	deleted  map[uuid.UUID]bool
}

func (f *fakeSearch) UpsertReference(ctx context.Context, id uuid.UUID, projection interface{}) error {
	f.upserted[id] = projection
	return nil
}

func (f *fakeSearch) DeleteReference(ctx context.Context, id uuid.UUID) error {
	f.deleted[id] = true
	return nil
}

func TestSyncReferenceCanonicalIndexesItself(t *testing.T) {
	canonicalID := uuid.New()
	canonical := reference.Reference{ID: canonicalID, Visibility: reference.VisibilityPublic}

	store := &fakeStore{
		refs:       map[uuid.UUID]reference.Reference{canonicalID: canonical},
		decisions:  map[uuid.UUID]*dedup.Decision{},
		duplicates: map[uuid.UUID][]reference.Reference{},
	}
	search := &fakeSearch{upserted: map[uuid.UUID]interface{}{}, deleted: map[uuid.UUID]bool{}}

	sync := New(store, search)
	if err := sync.SyncReference(context.Background(), canonicalID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := search.upserted[canonicalID]; !ok {
		t.Error("expected the canonical to be indexed under its own id")
	}
}

func TestSyncReferenceDuplicateDelegatesToCanonical(t *testing.T) {
	canonicalID := uuid.New()
	duplicateID := uuid.New()
	canonical := reference.Reference{ID: canonicalID, Visibility: reference.VisibilityPublic}
	duplicate := reference.Reference{ID: duplicateID, Visibility: reference.VisibilityPublic}

	store := &fakeStore{
		refs: map[uuid.UUID]reference.Reference{canonicalID: canonical, duplicateID: duplicate},
		decisions: map[uuid.UUID]*dedup.Decision{
			duplicateID: {Determination: dedup.Duplicate, CanonicalReferenceID: &canonicalID},
		},
		duplicates: map[uuid.UUID][]reference.Reference{canonicalID: {duplicate}},
	}
	search := &fakeSearch{upserted: map[uuid.UUID]interface{}{}, deleted: map[uuid.UUID]bool{}}

	sync := New(store, search)
	if err := sync.SyncReference(context.Background(), duplicateID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !search.deleted[duplicateID] {
		t.Error("expected the duplicate's own index entry to be deleted")
	}
	if _, ok := search.upserted[canonicalID]; !ok {
		t.Error("expected the canonical to be re-indexed instead")
	}
}
