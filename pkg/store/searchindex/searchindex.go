// Package searchindex implements capability.SearchStore over Elasticsearch
// 5.x, using the deduplicated-reference index plus a percolator index for
// robot automations (spec.md §4.7, §4.10).
package searchindex

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	elastic "gopkg.in/olivere/elastic.v5"

	"github.com/destiny-evidence/reference-repository/pkg/capability"
	"github.com/destiny-evidence/reference-repository/pkg/domain/dedup"
	"github.com/destiny-evidence/reference-repository/pkg/domain/enhancement"
	"github.com/destiny-evidence/reference-repository/pkg/sharederr"
)

const (
	referencesIndex = "references"
	referencesType  = "reference"

	automationsIndex = "robot_automations"
	automationsType  = "automation"

	// percolatorType is the reserved ".percolator" document type ES 5.x
	// uses for stored percolator queries.
	percolatorType = ".percolator"
)

// Store is the concrete capability.SearchStore implementation.
type Store struct {
	client *elastic.Client
}

// New wraps an already-constructed elastic.Client.
func New(client *elastic.Client) *Store {
	return &Store{client: client}
}

// Connect dials the cluster at the given URLs.
func Connect(urls ...string) (*Store, error) {
	client, err := elastic.NewClient(elastic.SetURL(urls...), elastic.SetSniff(false))
	if err != nil {
		return nil, sharederr.NetworkError("connect to search store", strings.Join(urls, ","), err)
	}
	return New(client), nil
}

func (s *Store) UpsertReference(ctx context.Context, id uuid.UUID, projection interface{}) error {
	_, err := s.client.Index().
		Index(referencesIndex).
		Type(referencesType).
		Id(id.String()).
		BodyJson(projection).
		Do(ctx)
	if err != nil {
		return sharederr.NewMalformedIndexDocument(err.Error())
	}
	return nil
}

func (s *Store) DeleteReference(ctx context.Context, id uuid.UUID) error {
	_, err := s.client.Delete().
		Index(referencesIndex).
		Type(referencesType).
		Id(id.String()).
		Do(ctx)
	if err != nil && !elastic.IsNotFound(err) {
		return sharederr.NewStoreQueryError(err)
	}
	return nil
}

// FindFingerprintCandidates queries by normalized title-token overlap,
// author-surname overlap, and exact year, ranked by relevance (§4.2 phase
// B). Title and author overlap use should-clauses so partial matches still
// score; year is a hard filter when present.
func (s *Store) FindFingerprintCandidates(ctx context.Context, fp dedup.Fingerprint, limit int) ([]capability.FingerprintCandidate, error) {
	boolQuery := elastic.NewBoolQuery()
	for _, tok := range fp.TitleTokens {
		boolQuery = boolQuery.Should(elastic.NewMatchQuery("title", tok))
	}
	for _, surname := range fp.AuthorSurnames {
		boolQuery = boolQuery.Should(elastic.NewMatchQuery("authors.family", surname))
	}
	if fp.Year != nil {
		boolQuery = boolQuery.Filter(elastic.NewTermQuery("publication_year", *fp.Year))
	}

	result, err := s.client.Search().
		Index(referencesIndex).
		Query(boolQuery).
		Size(limit).
		Do(ctx)
	if err != nil {
		return nil, sharederr.NewStoreQueryError(err)
	}

	out := make([]capability.FingerprintCandidate, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		id, err := uuid.Parse(hit.Id)
		if err != nil {
			continue
		}
		score := 0.0
		if hit.Score != nil {
			score = *hit.Score
		}
		out = append(out, capability.FingerprintCandidate{ReferenceID: id, Score: score})
	}
	return out, nil
}

// Query translates a free-text query plus structured filters into a native
// ES query (§4.10): a bare query string with no field-qualified term (no
// "word:" token) is restricted to the default fields; otherwise the query
// string is passed through natively, letting field qualifiers work.
func (s *Store) Query(ctx context.Context, fields []string, text string, filters capability.SearchFilters, offset, limit int) (capability.SearchResult, error) {
	var query elastic.Query
	if text == "" {
		query = elastic.NewMatchAllQuery()
	} else if hasFieldQualifiedTerm(text) {
		query = elastic.NewQueryStringQuery(text)
	} else {
		query = elastic.NewQueryStringQuery(text).Field(fields...)
	}

	boolQuery := elastic.NewBoolQuery().Must(query)
	if filters.PublicationYearStart != nil || filters.PublicationYearEnd != nil {
		rangeQuery := elastic.NewRangeQuery("publication_year")
		if filters.PublicationYearStart != nil {
			rangeQuery = rangeQuery.Gte(*filters.PublicationYearStart)
		}
		if filters.PublicationYearEnd != nil {
			rangeQuery = rangeQuery.Lte(*filters.PublicationYearEnd)
		}
		boolQuery = boolQuery.Filter(rangeQuery)
	}
	for _, a := range filters.Annotations {
		boolQuery = boolQuery.Filter(annotationFilterQuery(a))
	}

	search := s.client.Search().Index(referencesIndex).Query(boolQuery).From(offset).Size(limit)
	for _, sortField := range filters.Sort {
		field, asc := sortField, true
		if strings.HasPrefix(sortField, "-") {
			field, asc = sortField[1:], false
		}
		search = search.Sort(field, asc)
	}

	result, err := search.Do(ctx)
	if err != nil {
		return capability.SearchResult{}, sharederr.NewStoreQueryError(err)
	}

	ids := make([]uuid.UUID, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		if id, err := uuid.Parse(hit.Id); err == nil {
			ids = append(ids, id)
		}
	}

	total := int(result.Hits.TotalHits)
	return capability.SearchResult{ReferenceIDs: ids, Total: total, TotalIsExact: true}, nil
}

func hasFieldQualifiedTerm(text string) bool {
	for _, tok := range strings.Fields(text) {
		if idx := strings.IndexByte(tok, ':'); idx > 0 {
			return true
		}
	}
	return false
}

// annotationFilterQuery builds the §4.10 annotation filter: a scheme-only
// filter matches any positive label in that scheme, a label filter matches
// that specific label, and a score filter matches references whose
// inclusion score is at least the given value.
func annotationFilterQuery(a capability.AnnotationFilter) elastic.Query {
	if a.Score != nil {
		return elastic.NewRangeQuery("singly_projected_scores." + a.Scheme).Gte(*a.Score)
	}
	if a.Label != "" {
		return elastic.NewTermQuery("annotation_labels", a.Scheme+":"+a.Label)
	}
	return elastic.NewPrefixQuery("annotation_labels", a.Scheme+":")
}

func (s *Store) UpsertAutomation(ctx context.Context, a enhancement.RobotAutomation) error {
	doc := percolatorDocument{
		RobotID: a.RobotID.String(),
		Query:   json.RawMessage(a.Query),
	}
	_, err := s.client.Index().
		Index(automationsIndex).
		Type(percolatorType).
		Id(a.ID.String()).
		BodyJson(doc).
		Do(ctx)
	if err != nil {
		return sharederr.NewMalformedIndexDocument(err.Error())
	}
	return nil
}

func (s *Store) DeleteAutomation(ctx context.Context, id uuid.UUID) error {
	_, err := s.client.Delete().
		Index(automationsIndex).
		Type(percolatorType).
		Id(id.String()).
		Do(ctx)
	if err != nil && !elastic.IsNotFound(err) {
		return sharederr.NewStoreQueryError(err)
	}
	return nil
}

// percolatorDocument is the stored shape of a saved automation query: the
// raw query clause plus the robot id it dispatches to, so a percolate hit
// can be mapped back to (robot_id, matched reference ids) without a
// second lookup.
type percolatorDocument struct {
	RobotID string          `json:"robot_id"`
	Query   json.RawMessage `json:"query"`
}

// PercolateChangeset matches a changeset document against the saved
// automation queries, merged by robot id (§4.6).
func (s *Store) PercolateChangeset(ctx context.Context, changeset interface{}) ([]capability.AutomationMatch, error) {
	body, err := json.Marshal(changeset)
	if err != nil {
		return nil, sharederr.ParseError("changeset", "json", err)
	}

	result, err := s.client.Percolate().
		Index(automationsIndex).
		Type(referencesType).
		Doc(json.RawMessage(body)).
		Do(ctx)
	if err != nil {
		return nil, sharederr.NewStoreQueryError(err)
	}

	byRobot := map[uuid.UUID][]uuid.UUID{}
	changesetID, _ := changesetReferenceID(changeset)
	for _, match := range result.Matches {
		robotID, err := s.robotIDForAutomation(ctx, match.Id)
		if err != nil {
			continue
		}
		if changesetID != uuid.Nil {
			byRobot[robotID] = append(byRobot[robotID], changesetID)
		}
	}

	out := make([]capability.AutomationMatch, 0, len(byRobot))
	for robotID, ids := range byRobot {
		out = append(out, capability.AutomationMatch{RobotID: robotID, ReferenceIDs: ids})
	}
	return out, nil
}

// robotIDForAutomation resolves a percolate match's automation id (the
// document's own `Id`, per UpsertAutomation) back to the robot it
// dispatches to. Percolate hits only carry the matched document's id and
// score, not its stored source, so the robot id has to be read back from
// the automation document itself rather than parsed out of the match id.
func (s *Store) robotIDForAutomation(ctx context.Context, automationID string) (uuid.UUID, error) {
	result, err := s.client.Get().
		Index(automationsIndex).
		Type(percolatorType).
		Id(automationID).
		Do(ctx)
	if err != nil {
		return uuid.Nil, sharederr.NewStoreQueryError(err)
	}
	var doc percolatorDocument
	if err := json.Unmarshal(*result.Source, &doc); err != nil {
		return uuid.Nil, sharederr.ParseError("percolator document", "json", err)
	}
	return uuid.Parse(doc.RobotID)
}

// changesetReferenceID best-effort extracts a reference id field from an
// arbitrary changeset document, used to attribute a percolate match back
// to the reference that triggered it.
func changesetReferenceID(changeset interface{}) (uuid.UUID, error) {
	type idCarrier struct {
		ReferenceID string `json:"reference_id"`
	}
	body, err := json.Marshal(changeset)
	if err != nil {
		return uuid.Nil, err
	}
	var carrier idCarrier
	if err := json.Unmarshal(body, &carrier); err != nil || carrier.ReferenceID == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(carrier.ReferenceID)
}

var _ capability.SearchStore = (*Store)(nil)
