package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/destiny-evidence/reference-repository/pkg/capability"
	"github.com/destiny-evidence/reference-repository/pkg/domain/dedup"
	searchsvc "github.com/destiny-evidence/reference-repository/pkg/service/search"
)

// ReferencesRouter serves full-text search and identifier lookup (§6).
type ReferencesRouter struct {
	search *searchsvc.Service
	store  capability.ReferenceStore
}

// NewReferencesRouter constructs a ReferencesRouter.
func NewReferencesRouter(search *searchsvc.Service, store capability.ReferenceStore) *ReferencesRouter {
	return &ReferencesRouter{search: search, store: store}
}

// Routes mounts /references/.
func (rr *ReferencesRouter) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/search/", rr.searchReferences)
	r.Get("/lookup/", rr.lookupReference)
	return r
}

func (rr *ReferencesRouter) searchReferences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := searchsvc.Query{
		Text:   q.Get("q"),
		Offset: atoiOr(q.Get("offset"), 0),
		Limit:  atoiOr(q.Get("limit"), searchsvc.DefaultPageSize),
	}
	if v := q.Get("publication_year_start"); v != "" {
		if year, err := strconv.Atoi(v); err == nil {
			query.PublicationYearStart = &year
		}
	}
	if v := q.Get("publication_year_end"); v != "" {
		if year, err := strconv.Atoi(v); err == nil {
			query.PublicationYearEnd = &year
		}
	}
	if v := q.Get("sort"); v != "" {
		query.Sort = strings.Split(v, ",")
	}
	for _, raw := range q["annotation"] {
		if filter, ok := parseAnnotationFilter(raw); ok {
			query.Annotations = append(query.Annotations, filter)
		}
	}

	page, err := rr.search.Run(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Results       interface{}          `json:"results"`
		Total         int                  `json:"total"`
		TotalRelation searchsvc.TotalRelation `json:"total_relation"`
	}{page.References, page.Total, page.TotalRelation})
}

// parseAnnotationFilter reads "scheme[:label][:score]" per §4.10's
// (scheme, optional label, optional score) filter tuple.
func parseAnnotationFilter(raw string) (capability.AnnotationFilter, bool) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) == 0 || parts[0] == "" {
		return capability.AnnotationFilter{}, false
	}
	filter := capability.AnnotationFilter{Scheme: parts[0]}
	if len(parts) >= 3 {
		if score, err := strconv.ParseFloat(parts[2], 64); err == nil {
			filter.Score = &score
			return filter, true
		}
	}
	if len(parts) >= 2 {
		filter.Label = parts[1]
	}
	return filter, true
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func (rr *ReferencesRouter) lookupReference(w http.ResponseWriter, r *http.Request) {
	identifier := r.URL.Query().Get("identifier")
	if identifier == "" {
		writeError(w, errMissingIdentifier)
		return
	}

	matches, err := rr.store.FindReferencesByIdentifierValues(r.Context(), []string{identifier})
	if err != nil {
		writeError(w, err)
		return
	}
	if len(matches) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	match := matches[0]
	canonicalID := match.ID
	if decision, err := rr.store.ActiveDecision(r.Context(), match.ID); err == nil && decision != nil {
		if decision.Determination == dedup.Duplicate && decision.CanonicalReferenceID != nil {
			canonicalID = *decision.CanonicalReferenceID
		}
	}

	canonical, err := rr.store.GetReference(r.Context(), canonicalID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, canonical)
}

type lookupError struct{ msg string }

func (e *lookupError) Error() string { return e.msg }

var errMissingIdentifier = &lookupError{"identifier query parameter is required"}
