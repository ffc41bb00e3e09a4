package dedup

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	titleTokenSplit = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

// Fingerprint is the normalized (title-tokens, sorted-authors, year) tuple
// used to find candidate canonicals (§4.2 phase B, glossary). Searchable is
// false when title or authors or year is missing, in which case the
// reference resolves to BlurredFingerprint (B2).
type Fingerprint struct {
	TitleTokens   []string
	AuthorSurnames []string
	Year          *int
	Searchable    bool
}

// NormalizeTitle lowercases and tokenizes a title on non-alphanumeric
// boundaries, dropping empty tokens, and returns them sorted+deduplicated
// so token-set equality doesn't depend on word order.
func NormalizeTitle(title string) []string {
	if title == "" {
		return nil
	}
	raw := titleTokenSplit.Split(strings.ToLower(strings.TrimSpace(title)), -1)
	seen := make(map[string]struct{}, len(raw))
	var out []string
	for _, tok := range raw {
		if tok == "" {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

// NormalizeAuthorSurnames lowercases and sorts surnames so the fingerprint
// is invariant to enhancement merge order (R3).
func NormalizeAuthorSurnames(surnames []string) []string {
	if len(surnames) == 0 {
		return nil
	}
	out := make([]string, len(surnames))
	for i, s := range surnames {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	sort.Strings(out)
	return out
}

// NewFingerprint builds a Fingerprint from raw search fields, flagging
// Searchable only when title, authors, and year are all present (B2).
func NewFingerprint(title string, authorSurnames []string, year *int) Fingerprint {
	fp := Fingerprint{
		TitleTokens:    NormalizeTitle(title),
		AuthorSurnames: NormalizeAuthorSurnames(authorSurnames),
		Year:           year,
	}
	fp.Searchable = len(fp.TitleTokens) > 0 && len(fp.AuthorSurnames) > 0 && fp.Year != nil
	return fp
}

// Key returns a deterministic string encoding of the fingerprint, usable as
// a cache or structured-query key.
func (f Fingerprint) Key() string {
	var b strings.Builder
	b.WriteString(strings.Join(f.TitleTokens, " "))
	b.WriteString("|")
	b.WriteString(strings.Join(f.AuthorSurnames, " "))
	b.WriteString("|")
	if f.Year != nil {
		b.WriteString(strconv.Itoa(*f.Year))
	}
	return b.String()
}

// Equal reports whether two fingerprints are identical after
// normalization, used only for tests and exact fingerprint matching; real
// candidate search goes through the SearchStore's relevance scoring
// instead (§4.2 phase B).
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.Key() == other.Key()
}
