// Package synchronizer implements the sql_to_es synchronization described
// in spec.md §4.7: keeping the search index's deduplicated projection of a
// canonical reference consistent with the transactional store.
package synchronizer

import (
	"context"

	"github.com/google/uuid"

	"github.com/destiny-evidence/reference-repository/pkg/capability"
	"github.com/destiny-evidence/reference-repository/pkg/domain/dedup"
	"github.com/destiny-evidence/reference-repository/pkg/domain/projections"
	"github.com/destiny-evidence/reference-repository/pkg/domain/reference"
)

// References is the References.sql_to_es synchronizer (§4.7).
type References struct {
	store  capability.ReferenceStore
	search capability.SearchStore
}

// New constructs a References synchronizer over the given stores.
func New(store capability.ReferenceStore, search capability.SearchStore) *References {
	return &References{store: store, search: search}
}

// SyncReference re-indexes id's deduplicated projection (§4.7 steps 1-3).
// When id is not canonical-like but has a canonical reference, its own
// index entry is removed and the canonical is synced instead.
func (r *References) SyncReference(ctx context.Context, id uuid.UUID) error {
	ref, err := r.store.GetReference(ctx, id)
	if err != nil {
		return err
	}

	decision, err := r.store.ActiveDecision(ctx, id)
	if err != nil {
		return err
	}

	var determination *dedup.Determination
	if decision != nil {
		determination = &decision.Determination
	}

	if !dedup.CanonicalLike(determination) && decision != nil && decision.CanonicalReferenceID != nil {
		if err := r.search.DeleteReference(ctx, id); err != nil {
			return err
		}
		return r.SyncReference(ctx, *decision.CanonicalReferenceID)
	}

	tree, err := r.loadTree(ctx, ref)
	if err != nil {
		return err
	}
	projection := projections.Project(tree)
	return r.search.UpsertReference(ctx, id, projection)
}

// loadTree recursively preloads ref's duplicate tree (§4.8's DuplicateTree
// input), one level of ListDuplicates per hop so chain depths beyond the
// configured maximum are still projected correctly if ever encountered.
func (r *References) loadTree(ctx context.Context, ref reference.Reference) (projections.DuplicateTree, error) {
	duplicates, err := r.store.ListDuplicates(ctx, ref.ID)
	if err != nil {
		return projections.DuplicateTree{}, err
	}

	tree := projections.DuplicateTree{Reference: ref}
	for _, dup := range duplicates {
		child, err := r.loadTree(ctx, dup)
		if err != nil {
			return projections.DuplicateTree{}, err
		}
		tree.Duplicates = append(tree.Duplicates, child)
	}
	return tree, nil
}

// Automations is the RobotAutomations.sql_to_es mirror (§4.7): the index's
// native percolator subsystem owns query storage, so this is a thin
// pass-through onto SearchStore.UpsertAutomation.
type Automations struct {
	store  capability.ReferenceStore
	search capability.SearchStore
}

// NewAutomations constructs an Automations synchronizer.
func NewAutomations(store capability.ReferenceStore, search capability.SearchStore) *Automations {
	return &Automations{store: store, search: search}
}

// SyncAutomation re-mirrors a saved robot automation's percolator query.
func (a *Automations) SyncAutomation(ctx context.Context, id uuid.UUID) error {
	automation, err := a.store.GetRobotAutomation(ctx, id)
	if err != nil {
		return err
	}
	return a.search.UpsertAutomation(ctx, automation)
}
