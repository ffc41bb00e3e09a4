package referencing

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/destiny-evidence/reference-repository/pkg/capability"
	"github.com/destiny-evidence/reference-repository/pkg/domain/reference"
	"github.com/destiny-evidence/reference-repository/pkg/sharederr"
)

type fakeStore struct {
	capability.ReferenceStore
	refs       map[uuid.UUID]reference.Reference
	duplicates map[uuid.UUID][]reference.Reference
	merged     reference.Reference
}

func (f *fakeStore) GetReference(ctx context.Context, id uuid.UUID) (reference.Reference, error) {
	return f.refs[id], nil
}

func (f *fakeStore) ListDuplicates(ctx context.Context, canonicalID uuid.UUID) ([]reference.Reference, error) {
	return f.duplicates[canonicalID], nil
}

func (f *fakeStore) MergeReference(ctx context.Context, r reference.Reference) error {
	f.merged = r
	return nil
}

func TestAddEnhancementAppliesNewContent(t *testing.T) {
	refID := uuid.New()
	store := &fakeStore{refs: map[uuid.UUID]reference.Reference{refID: {ID: refID}}}
	svc := New(store, nil)

	e := reference.Enhancement{Content: reference.AbstractContent{Abstract: "hello"}}
	if err := svc.AddEnhancement(context.Background(), refID, e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.merged.Enhancements) != 1 {
		t.Fatalf("expected one enhancement merged, got %d", len(store.merged.Enhancements))
	}
}

func TestAddEnhancementDiscardsExactDuplicate(t *testing.T) {
	refID := uuid.New()
	existing := reference.Enhancement{ID: uuid.New(), Content: reference.AbstractContent{Abstract: "hello"}}
	store := &fakeStore{refs: map[uuid.UUID]reference.Reference{
		refID: {ID: refID, Enhancements: []reference.Enhancement{existing}},
	}}
	svc := New(store, nil)

	e := reference.Enhancement{Content: reference.AbstractContent{Abstract: "hello"}}
	err := svc.AddEnhancement(context.Background(), refID, e)
	if sharederr.KindOf(err) != sharederr.KindDuplicateEnhancement {
		t.Fatalf("expected a duplicate-enhancement error, got %v", err)
	}
}

func TestAddEnhancementRejectsParentOutsideDuplicateTree(t *testing.T) {
	refID := uuid.New()
	outsiderID := uuid.New()
	store := &fakeStore{refs: map[uuid.UUID]reference.Reference{refID: {ID: refID}}}
	svc := New(store, nil)

	e := reference.Enhancement{Content: reference.AbstractContent{Abstract: "x"}, DerivedFrom: []uuid.UUID{outsiderID}}
	err := svc.AddEnhancement(context.Background(), refID, e)
	if sharederr.KindOf(err) != sharederr.KindInvalidParentEnhancement {
		t.Fatalf("expected an invalid-parent-enhancement error, got %v", err)
	}
}

func TestAddEnhancementAcceptsParentFromDuplicate(t *testing.T) {
	refID := uuid.New()
	dupID := uuid.New()
	parentEnhID := uuid.New()
	store := &fakeStore{
		refs: map[uuid.UUID]reference.Reference{refID: {ID: refID}},
		duplicates: map[uuid.UUID][]reference.Reference{
			refID: {{ID: dupID, Enhancements: []reference.Enhancement{{ID: parentEnhID, ReferenceID: dupID}}}},
		},
	}
	svc := New(store, nil)

	e := reference.Enhancement{Content: reference.AbstractContent{Abstract: "x"}, DerivedFrom: []uuid.UUID{parentEnhID}}
	if err := svc.AddEnhancement(context.Background(), refID, e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
