// Package ingestion implements IngestionService (spec.md §4.1): parsing one
// JSONL line of a reference file into a minted Reference aggregate.
package ingestion

import (
	"fmt"

	"github.com/destiny-evidence/reference-repository/pkg/capability"
	"github.com/destiny-evidence/reference-repository/pkg/domain/reference"
)

// ReferenceCreateResult is the §4.1 step 3 return value: either a freshly
// minted reference, or a non-empty set of per-entry errors.
type ReferenceCreateResult struct {
	Reference *reference.Reference
	Errors    []EntryError
}

// EntryError carries the line ordinal of the batch entry that failed, so a
// caller streaming a whole file can attribute the failure back to its
// source line (§4.1 step 1).
type EntryError struct {
	LineOrdinal int
	Message     string
}

func (e EntryError) Error() string {
	return fmt.Sprintf("line %d: %s", e.LineOrdinal, e.Message)
}

// Service is the concrete IngestionService.
type Service struct {
	acl capability.ACLTranslator
}

// New constructs a Service over the given anti-corruption translator.
func New(acl capability.ACLTranslator) *Service {
	return &Service{acl: acl}
}

// IngestReference parses one JSONL line at lineOrdinal and, on success,
// mints a fresh Reference with its identifiers and enhancements stamped to
// that id (§4.1).
func (s *Service) IngestReference(line []byte, lineOrdinal int) ReferenceCreateResult {
	parsed, err := s.acl.ParseReferenceFileLine(line)
	if err != nil {
		return ReferenceCreateResult{Errors: []EntryError{{LineOrdinal: lineOrdinal, Message: err.Error()}}}
	}

	input, ok := parsed.(capability.ReferenceFileInput)
	if !ok {
		return ReferenceCreateResult{Errors: []EntryError{{
			LineOrdinal: lineOrdinal,
			Message:     "line did not parse as a new-reference entry",
		}}}
	}

	r := reference.New(input.Visibility, input.Identifiers, input.Enhancements)
	return ReferenceCreateResult{Reference: &r}
}
