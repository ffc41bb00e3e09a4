// Package automation implements AutomationPercolator (spec.md §4.6): after
// any change to a canonical reference's deduplicated projection, matching
// changesets against the robot_automations percolator index and dispatching
// the resulting pending enhancements.
package automation

import (
	"context"

	"github.com/google/uuid"

	"github.com/destiny-evidence/reference-repository/pkg/capability"
	"github.com/destiny-evidence/reference-repository/pkg/domain/enhancement"
)

// Changeset is one ReferenceWithChangeset input: the full deduplicated
// canonical plus the sub-reference whose change triggered this run.
type Changeset struct {
	CanonicalID uuid.UUID
	Document    interface{}
	Source      string // e.g. "RobotEnhancementBatch:<id>", "DuplicateDecision:<id>"
}

// Percolator is the concrete AutomationPercolator.
type Percolator struct {
	store     capability.ReferenceStore
	search    capability.SearchStore
	chunkSize int
}

// New constructs a Percolator. chunkSize bounds how many changesets are
// presented to the percolator per call (§9's configured percolation chunk
// size).
func New(store capability.ReferenceStore, search capability.SearchStore, chunkSize int) *Percolator {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	return &Percolator{store: store, search: search, chunkSize: chunkSize}
}

// RunOne wraps a single triggering changeset into the Run slice form,
// satisfying deduplication.AutomationRunner and enhancement.AutomationRunner
// for call sites that only ever have one changeset at a time (a duplicate
// decision, a single merged enhancement).
func (p *Percolator) RunOne(ctx context.Context, canonicalID uuid.UUID, document interface{}, source string, skipRobotID *uuid.UUID) error {
	return p.Run(ctx, []Changeset{{CanonicalID: canonicalID, Document: document, Source: source}}, skipRobotID)
}

// Run percolates changesets, merges matches by robot id, and for every
// matched robot other than skipRobotID creates a PendingEnhancement batch
// sourced from each changeset's Source (§4.6). skipRobotID prevents a
// robot's own result ingestion from re-triggering itself.
func (p *Percolator) Run(ctx context.Context, changesets []Changeset, skipRobotID *uuid.UUID) error {
	for start := 0; start < len(changesets); start += p.chunkSize {
		end := start + p.chunkSize
		if end > len(changesets) {
			end = len(changesets)
		}
		if err := p.runChunk(ctx, changesets[start:end], skipRobotID); err != nil {
			return err
		}
	}
	return nil
}

func (p *Percolator) runChunk(ctx context.Context, chunk []Changeset, skipRobotID *uuid.UUID) error {
	merged := map[uuid.UUID]map[uuid.UUID]string{} // robotID -> referenceID -> source

	for _, cs := range chunk {
		matches, err := p.search.PercolateChangeset(ctx, cs.Document)
		if err != nil {
			return err
		}
		for _, m := range matches {
			if skipRobotID != nil && m.RobotID == *skipRobotID {
				continue
			}
			bucket, ok := merged[m.RobotID]
			if !ok {
				bucket = map[uuid.UUID]string{}
				merged[m.RobotID] = bucket
			}
			for _, refID := range m.ReferenceIDs {
				bucket[refID] = cs.Source
			}
		}
	}

	for robotID, refs := range merged {
		for refID, source := range refs {
			pending := enhancement.NewPendingEnhancement(refID, robotID, nil, source)
			if err := p.store.CreatePendingEnhancement(ctx, pending); err != nil {
				return err
			}
		}
	}
	return nil
}
