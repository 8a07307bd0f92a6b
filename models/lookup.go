package models

import (
	"fmt"
	"strings"
)

// LookupKind selects how a provider is queried.
type LookupKind string

const (
	KindDOI        LookupKind = "doi"
	KindPMID       LookupKind = "pmid"
	KindArXiv      LookupKind = "arxiv"
	KindTitle      LookupKind = "title"
	KindAuthorYear LookupKind = "author_year"
)

// LookupRequest is one query against a bibliographic provider. Value holds
// the identifier for identifier kinds; title searches use Title and
// optionally Year and Authors.
type LookupRequest struct {
	Kind    LookupKind `json:"kind"`
	Value   string     `json:"value,omitempty"`
	Title   string     `json:"title,omitempty"`
	Year    int        `json:"year,omitempty"`
	Authors []string   `json:"authors,omitempty"`
}

// Key returns the normalized cache key for the request.
func (r LookupRequest) Key() string {
	switch r.Kind {
	case KindDOI:
		return "doi:" + strings.ToLower(strings.TrimSpace(r.Value))
	case KindPMID, KindArXiv:
		return string(r.Kind) + ":" + strings.ToLower(strings.TrimSpace(r.Value))
	case KindAuthorYear:
		surname := ""
		if len(r.Authors) > 0 {
			surname = strings.ToLower(r.Authors[0])
		}
		return fmt.Sprintf("author:%s|%d", surname, r.Year)
	default:
		return fmt.Sprintf("title:%s|%d", strings.Join(strings.Fields(strings.ToLower(r.Title)), " "), r.Year)
	}
}

// LookupResult is a candidate work returned by a provider. Confidence and
// Strategy are filled in by the resolver once the candidate is scored.
type LookupResult struct {
	Provider   string   `json:"provider"`
	Title      string   `json:"title"`
	Authors    []string `json:"authors"`
	Year       int      `json:"year,omitempty"`
	Journal    string   `json:"journal,omitempty"`
	DOI        string   `json:"doi,omitempty"`
	PMID       string   `json:"pmid,omitempty"`
	ArXivID    string   `json:"arxiv_id,omitempty"`
	URL        string   `json:"url,omitempty"`
	Abstract   string   `json:"abstract,omitempty"`
	Confidence float64  `json:"confidence"`
	Strategy   string   `json:"strategy,omitempty"`
}

// Clone returns a deep copy so cached results are never mutated.
func (r *LookupResult) Clone() *LookupResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Authors = append([]string(nil), r.Authors...)
	return &c
}

// FieldCount counts populated metadata fields, used to break exact score ties.
func (r *LookupResult) FieldCount() int {
	n := 0
	for _, s := range []string{r.Title, r.Journal, r.DOI, r.PMID, r.ArXivID, r.URL, r.Abstract} {
		if s != "" {
			n++
		}
	}
	if len(r.Authors) > 0 {
		n++
	}
	if r.Year > 0 {
		n++
	}
	return n
}

// Metadata converts the result into citation metadata.
func (r *LookupResult) Metadata() CitationMetadata {
	return CitationMetadata{
		Title:    r.Title,
		Authors:  append([]string(nil), r.Authors...),
		Year:     r.Year,
		Journal:  r.Journal,
		DOI:      r.DOI,
		PMID:     r.PMID,
		ArXivID:  r.ArXivID,
		URL:      r.URL,
		Abstract: r.Abstract,
	}
}
