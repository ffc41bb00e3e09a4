package automation

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/destiny-evidence/reference-repository/pkg/capability"
	"github.com/destiny-evidence/reference-repository/pkg/domain/enhancement"
)

type fakeStore struct {
	capability.ReferenceStore
	created []enhancement.PendingEnhancement
}

func (f *fakeStore) CreatePendingEnhancement(ctx context.Context, p enhancement.PendingEnhancement) error {
	f.created = append(f.created, p)
	return nil
}

type fakeSearch struct {
	capability.SearchStore
	matchesByCall [][]capability.AutomationMatch
	calls         int
}

func (f *fakeSearch) PercolateChangeset(ctx context.Context, changeset interface{}) ([]capability.AutomationMatch, error) {
	m := f.matchesByCall[f.calls]
	f.calls++
	return m, nil
}

func TestRunMergesMatchesByRobotAndSkipsSelfLoop(t *testing.T) {
	robotA := uuid.New()
	robotB := uuid.New()
	ref1 := uuid.New()
	ref2 := uuid.New()

	store := &fakeStore{}
	search := &fakeSearch{matchesByCall: [][]capability.AutomationMatch{
		{
			{RobotID: robotA, ReferenceIDs: []uuid.UUID{ref1}},
			{RobotID: robotB, ReferenceIDs: []uuid.UUID{ref2}},
		},
	}}

	p := New(store, search, 10)
	err := p.Run(context.Background(), []Changeset{{CanonicalID: ref1, Document: map[string]string{}, Source: "DuplicateDecision:x"}}, &robotB)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.created) != 1 {
		t.Fatalf("expected exactly one pending enhancement (robotB skipped), got %d", len(store.created))
	}
	if store.created[0].RobotID != robotA {
		t.Errorf("expected the surviving pending enhancement to target robotA, got %v", store.created[0].RobotID)
	}
}

func TestRunChunksChangesets(t *testing.T) {
	robotA := uuid.New()
	ref1 := uuid.New()
	ref2 := uuid.New()

	store := &fakeStore{}
	search := &fakeSearch{matchesByCall: [][]capability.AutomationMatch{
		{{RobotID: robotA, ReferenceIDs: []uuid.UUID{ref1}}},
		{{RobotID: robotA, ReferenceIDs: []uuid.UUID{ref2}}},
	}}

	p := New(store, search, 1)
	err := p.Run(context.Background(), []Changeset{
		{CanonicalID: ref1, Document: map[string]string{}, Source: "s1"},
		{CanonicalID: ref2, Document: map[string]string{}, Source: "s2"},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if search.calls != 2 {
		t.Errorf("expected one percolate call per chunk, got %d", search.calls)
	}
	if len(store.created) != 2 {
		t.Fatalf("expected one pending enhancement per reference across both chunks, got %d", len(store.created))
	}
}
