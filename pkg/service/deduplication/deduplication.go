// Package deduplication implements DeduplicationService, the four-phase
// pipeline that decides whether an incoming reference is an exact
// duplicate, a fresh canonical, a duplicate of an existing canonical, or
// an unresolvable (blurred or decoupled) case (spec.md §4.2).
package deduplication

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/destiny-evidence/reference-repository/internal/config"
	"github.com/destiny-evidence/reference-repository/pkg/capability"
	"github.com/destiny-evidence/reference-repository/pkg/domain/dedup"
	"github.com/destiny-evidence/reference-repository/pkg/domain/projections"
	"github.com/destiny-evidence/reference-repository/pkg/domain/reference"
	"github.com/destiny-evidence/reference-repository/pkg/metrics"
	"github.com/destiny-evidence/reference-repository/pkg/obslog"
	"github.com/destiny-evidence/reference-repository/pkg/tracing"
)

// Reindexer re-emits a canonical-like reference's deduplicated projection
// to the search index (§4.2 phase D step 1). Satisfied by
// *synchronizer.References.
type Reindexer interface {
	SyncReference(ctx context.Context, id uuid.UUID) error
}

// AutomationRunner detects and dispatches robot automations against a
// single triggering changeset (§4.2 phase D step 2). Satisfied by
// *automation.Percolator.RunOne.
type AutomationRunner interface {
	RunOne(ctx context.Context, canonicalID uuid.UUID, document interface{}, source string, skipRobotID *uuid.UUID) error
}

// Service is the concrete DeduplicationService.
type Service struct {
	store      capability.ReferenceStore
	search     capability.SearchStore
	cfg        *config.Config
	reindex    Reindexer
	automation AutomationRunner
	log        *obslog.Logger
	metrics    *metrics.Metrics
}

// New constructs a Service. reindex and automation may be nil in tests
// that only exercise the decision logic itself.
func New(store capability.ReferenceStore, search capability.SearchStore, cfg *config.Config, reindex Reindexer, automation AutomationRunner, log *obslog.Logger) *Service {
	return &Service{store: store, search: search, cfg: cfg, reindex: reindex, automation: automation, log: log}
}

// SetMetrics attaches Prometheus instrumentation. Optional: a Service with
// no metrics attached simply skips recording.
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// FindExactDuplicate is phase A: it looks for an existing reference that is
// a superset of incoming, by shared identifier values, trying canonical-like
// candidates first (§4.2 phase A).
func (s *Service) FindExactDuplicate(ctx context.Context, incoming reference.Reference) (*uuid.UUID, error) {
	if len(incoming.NonOtherIdentifiers()) == 0 {
		return nil, nil
	}

	candidates, err := s.store.FindReferencesByIdentifierValues(ctx, incoming.IdentifierValues())
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		iLike, jLike := s.isCanonicalLike(ctx, candidates[i].ID), s.isCanonicalLike(ctx, candidates[j].ID)
		return iLike && !jLike
	})

	for _, candidate := range candidates {
		if candidate.ID == incoming.ID {
			continue
		}
		if candidate.IsSupersetOf(incoming) {
			id := candidate.ID
			return &id, nil
		}
	}
	return nil, nil
}

func (s *Service) isCanonicalLike(ctx context.Context, id uuid.UUID) bool {
	decision, err := s.store.ActiveDecision(ctx, id)
	if err != nil {
		return false
	}
	var det *dedup.Determination
	if decision != nil {
		det = &decision.Determination
	}
	return dedup.CanonicalLike(det)
}

// NominateCandidateCanonicals is phase B: it computes incoming's
// Fingerprint and, if searchable, queries the search index for candidate
// canonicals (§4.2 phase B).
func (s *Service) NominateCandidateCanonicals(ctx context.Context, incoming reference.Reference) (dedup.Fingerprint, []capability.FingerprintCandidate, error) {
	sf := projections.BuildSearchFields(incoming.Enhancements, s.cfg.SinglyProjectedAnnotationKeys)
	fp := projections.Fingerprint(sf)
	if !fp.Searchable {
		return fp, nil, nil
	}
	candidates, err := s.search.FindFingerprintCandidates(ctx, fp, s.cfg.FingerprintCandidateLimit)
	if err != nil {
		return fp, nil, err
	}
	return fp, candidates, nil
}

// DetermineCanonicalFromCandidates is phase C: given fingerprint candidates,
// it decides whether incoming is Canonical or Duplicate of one of them,
// tie-breaking by (earlier CreatedAt, lower id) (§4.2 phase C).
func (s *Service) DetermineCanonicalFromCandidates(ctx context.Context, incoming reference.Reference, candidates []capability.FingerprintCandidate) (dedup.Determination, *uuid.UUID, error) {
	var confident []reference.Reference
	for _, c := range candidates {
		if c.Score < s.cfg.ConfidentDuplicateScore {
			continue
		}
		ref, err := s.store.GetReference(ctx, c.ReferenceID)
		if err != nil {
			return dedup.Pending, nil, err
		}
		confident = append(confident, ref)
	}

	if len(confident) == 0 {
		return dedup.Canonical, nil, nil
	}

	sort.SliceStable(confident, func(i, j int) bool {
		return earlierOrLower(confident[i], confident[j])
	})
	winner := confident[0].ID
	return dedup.Duplicate, &winner, nil
}

// earlierOrLower reports whether a sorts before b under the §4.2 phase C
// tie-break: earlier CreatedAt, then lower id.
func earlierOrLower(a, b reference.Reference) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID.String() < b.ID.String()
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// ResolveExactDuplicate runs phase A alone and, on a match, persists the
// resulting ExactDuplicate decision immediately (§4.4 step 3's "Phase A
// short-circuit"). The orchestrator calls this synchronously while
// streaming an import batch; on a miss (matched == false) it persists the
// reference and defers the rest of the pipeline (phases B-D) to an
// asynchronously enqueued decision task, since fingerprint candidacy
// involves a search-index round trip the batch stream should not block on.
func (s *Service) ResolveExactDuplicate(ctx context.Context, incoming reference.Reference) (dedup.Decision, bool, error) {
	canonicalID, err := s.FindExactDuplicate(ctx, incoming)
	if err != nil {
		return dedup.Decision{}, false, err
	}
	if canonicalID == nil {
		return dedup.Decision{}, false, nil
	}
	decision, err := s.persistExactDuplicate(ctx, incoming, canonicalID)
	if err != nil {
		return dedup.Decision{}, false, err
	}
	return decision, true, nil
}

func (s *Service) persistExactDuplicate(ctx context.Context, incoming reference.Reference, canonicalID *uuid.UUID) (dedup.Decision, error) {
	decision, err := dedup.NewDecision(incoming.ID, nil, dedup.ExactDuplicate, canonicalID)
	if err != nil {
		return dedup.Decision{}, err
	}
	if err := s.store.MapDecision(ctx, decision); err != nil {
		return dedup.Decision{}, err
	}
	return decision, nil
}

// Determine runs the full four-phase pipeline for incoming and persists
// the resulting decision (§4.2). Robot automations dispatched after a
// decision change are sourced as "DuplicateDecision:<decision id>".
func (s *Service) Determine(ctx context.Context, incoming reference.Reference) (dedup.Decision, error) {
	ctx, span := tracing.Start(ctx, "deduplication.Determine")
	defer span.End()

	if canonicalID, err := s.FindExactDuplicate(ctx, incoming); err != nil {
		return dedup.Decision{}, err
	} else if canonicalID != nil {
		return s.persistExactDuplicate(ctx, incoming, canonicalID)
	}

	if decision, matched, err := s.tryTrustedShortcut(ctx, incoming); err != nil {
		return dedup.Decision{}, err
	} else if matched {
		s.afterDecisionChange(ctx, decision)
		return decision, nil
	}

	_, candidates, err := s.NominateCandidateCanonicals(ctx, incoming)
	if err != nil {
		return dedup.Decision{}, err
	}
	sf := projections.BuildSearchFields(incoming.Enhancements, s.cfg.SinglyProjectedAnnotationKeys)
	if fp := projections.Fingerprint(sf); !fp.Searchable {
		decision, err := dedup.NewDecision(incoming.ID, nil, dedup.BlurredFingerprint, nil)
		if err != nil {
			return dedup.Decision{}, err
		}
		if err := s.store.MapDecision(ctx, decision); err != nil {
			return dedup.Decision{}, err
		}
		s.afterDecisionChange(ctx, decision)
		return decision, nil
	}

	det, canonicalID, err := s.DetermineCanonicalFromCandidates(ctx, incoming, candidates)
	if err != nil {
		return dedup.Decision{}, err
	}

	if det == dedup.Duplicate {
		depth, err := s.chainDepth(ctx, *canonicalID)
		if err != nil {
			return dedup.Decision{}, err
		}
		if depth+1 > s.cfg.MaxReferenceDuplicateDepth {
			det, canonicalID = dedup.Decoupled, nil
		}
	}

	decision, err := dedup.NewDecision(incoming.ID, nil, det, canonicalID)
	if err != nil {
		return dedup.Decision{}, err
	}
	if err := s.store.MapDecision(ctx, decision); err != nil {
		return dedup.Decision{}, err
	}
	s.afterDecisionChange(ctx, decision)
	return decision, nil
}

// chainDepth walks canonicalID's own active decision chain, counting hops
// through Duplicate determinations, to enforce MAX_REFERENCE_DUPLICATE_DEPTH
// (§3, §4.2 phase D).
func (s *Service) chainDepth(ctx context.Context, canonicalID uuid.UUID) (int, error) {
	depth := 1
	current := canonicalID
	for i := 0; i < s.cfg.MaxReferenceDuplicateDepth+2; i++ {
		decision, err := s.store.ActiveDecision(ctx, current)
		if err != nil {
			return 0, err
		}
		if decision == nil || decision.Determination != dedup.Duplicate || decision.CanonicalReferenceID == nil {
			break
		}
		depth++
		current = *decision.CanonicalReferenceID
	}
	return depth, nil
}

// tryTrustedShortcut implements §4.2 phase C's trusted-identifier-type
// shortcut: a shared trusted identifier pairs the two references directly,
// bypassing fingerprint candidacy entirely. The reference that wins the
// (earlier CreatedAt, lower id) tie-break becomes the canonical and the
// other is paired as its duplicate; the wider duplicate tree either side
// already belongs to is not re-linked (see DESIGN.md).
func (s *Service) tryTrustedShortcut(ctx context.Context, incoming reference.Reference) (dedup.Decision, bool, error) {
	for _, id := range incoming.Identifiers {
		if !isTrustedType(s.cfg.TrustedUniqueIdentifierTypes, id.Type) {
			continue
		}
		matches, err := s.store.FindReferencesByTrustedIdentifier(ctx, id.Type, id.Value)
		if err != nil {
			return dedup.Decision{}, false, err
		}
		for _, m := range matches {
			if m.ID == incoming.ID {
				continue
			}
			if earlierOrLower(incoming, m) {
				// incoming wins the tie-break; pair m as its duplicate.
				canonicalDecision, err := dedup.NewDecision(incoming.ID, nil, dedup.Canonical, nil)
				if err != nil {
					return dedup.Decision{}, false, err
				}
				if err := s.store.MapDecision(ctx, canonicalDecision); err != nil {
					return dedup.Decision{}, false, err
				}
				canonicalID := incoming.ID
				otherDecision, err := dedup.NewDecision(m.ID, nil, dedup.Duplicate, &canonicalID)
				if err != nil {
					return dedup.Decision{}, false, err
				}
				if err := s.store.MapDecision(ctx, otherDecision); err != nil {
					return dedup.Decision{}, false, err
				}
				return canonicalDecision, true, nil
			}

			canonicalID := m.ID
			decision, err := dedup.NewDecision(incoming.ID, nil, dedup.Duplicate, &canonicalID)
			if err != nil {
				return dedup.Decision{}, false, err
			}
			if err := s.store.MapDecision(ctx, decision); err != nil {
				return dedup.Decision{}, false, err
			}
			return decision, true, nil
		}
	}
	return dedup.Decision{}, false, nil
}

func isTrustedType(trusted []string, t reference.IdentifierType) bool {
	for _, x := range trusted {
		if reference.IdentifierType(x) == t {
			return true
		}
	}
	return false
}

// afterDecisionChange re-indexes the resulting canonical-like reference and
// dispatches robot automations (§4.2 phase D). Both are best-effort:
// percolation and re-index failures are logged and do not poison the
// decision, which is already durably persisted (§4.2 "Failure semantics").
func (s *Service) afterDecisionChange(ctx context.Context, decision dedup.Decision) {
	if s.metrics != nil {
		s.metrics.DedupDecisions.WithLabelValues(string(decision.Determination)).Inc()
	}

	canonicalLikeID := decision.ReferenceID
	if decision.Determination == dedup.Duplicate && decision.CanonicalReferenceID != nil {
		canonicalLikeID = *decision.CanonicalReferenceID
	}

	if s.reindex != nil {
		if err := s.reindex.SyncReference(ctx, canonicalLikeID); err != nil && s.log != nil {
			s.log.Warn("failed to re-index reference after duplicate decision", obslog.Fields{}.
				Component("deduplication").Operation("determine").
				Resource("reference", canonicalLikeID.String()).Error(err))
		}
	}
	if s.automation != nil {
		source := "DuplicateDecision:" + decision.ID.String()
		document := map[string]string{"reference_id": canonicalLikeID.String()}
		if err := s.automation.RunOne(ctx, canonicalLikeID, document, source, nil); err != nil && s.log != nil {
			s.log.Warn("failed to detect robot automations after duplicate decision", obslog.Fields{}.
				Component("deduplication").Operation("determine").
				Resource("reference", canonicalLikeID.String()).Error(err))
		}
	}
}
