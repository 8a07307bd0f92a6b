package models

// CitationMetadata holds the normalized attributes of one reference entry.
// Authors are surnames in citation order.
type CitationMetadata struct {
	Title    string   `json:"title,omitempty"`
	Authors  []string `json:"authors"`
	Year     int      `json:"year,omitempty"`
	Journal  string   `json:"journal,omitempty"`
	Volume   string   `json:"volume,omitempty"`
	Pages    string   `json:"pages,omitempty"`
	DOI      string   `json:"doi,omitempty"`
	PMID     string   `json:"pmid,omitempty"`
	ArXivID  string   `json:"arxiv_id,omitempty"`
	URL      string   `json:"url,omitempty"`
	Abstract string   `json:"abstract,omitempty"`
}

// HasIdentifier reports whether a DOI, PMID or arXiv id is present.
func (m CitationMetadata) HasIdentifier() bool {
	return m.DOI != "" || m.PMID != "" || m.ArXivID != ""
}

// Eligible reports whether the entry carries enough to be looked up.
func (m CitationMetadata) Eligible() bool {
	return m.Title != "" || m.HasIdentifier()
}

// FieldCount counts populated fields. Used to prefer the richer of two
// otherwise equivalent entries.
func (m CitationMetadata) FieldCount() int {
	n := 0
	for _, s := range []string{m.Title, m.Journal, m.Volume, m.Pages, m.DOI, m.PMID, m.ArXivID, m.URL, m.Abstract} {
		if s != "" {
			n++
		}
	}
	if len(m.Authors) > 0 {
		n++
	}
	if m.Year > 0 {
		n++
	}
	return n
}

// Clone returns a deep copy.
func (m CitationMetadata) Clone() CitationMetadata {
	c := m
	c.Authors = append([]string(nil), m.Authors...)
	return c
}

// CitationContext is one occurrence of an in-text marker.
type CitationContext struct {
	PageNumber      *int   `json:"page_number"`
	Section         string `json:"section"`
	SurroundingText string `json:"surrounding_text"`
	ClaimStatement  string `json:"claim_statement"`
}

// MarkerFamily names the in-text citation style a marker was recognised as.
type MarkerFamily string

const (
	FamilyNumbered    MarkerFamily = "numbered"
	FamilyHarvard     MarkerFamily = "harvard"
	FamilyAuthorYear  MarkerFamily = "author_year"
	FamilyNarrative   MarkerFamily = "narrative"
	FamilySuperscript MarkerFamily = "superscript"
)

// CitationMarker is an in-text token referring to one or more entries,
// either by number or by first-author surname and year.
type CitationMarker struct {
	Text    string          `json:"text"`
	Family  MarkerFamily    `json:"family"`
	Offset  int             `json:"offset"`
	Numbers []int           `json:"numbers,omitempty"`
	Cites   []AuthorYear    `json:"cites,omitempty"`
	Context CitationContext `json:"context"`
}

// AuthorYear identifies a reference by first-author surname and year.
type AuthorYear struct {
	Surname string `json:"surname"`
	Year    int    `json:"year"`
	Pages   string `json:"pages,omitempty"`
}

// Reference is one bibliography entry together with the contexts that cite it.
type Reference struct {
	Key      string            `json:"key"`
	Number   int               `json:"number,omitempty"`
	RawText  string            `json:"raw_text"`
	Metadata CitationMetadata  `json:"metadata"`
	Contexts []CitationContext `json:"contexts"`
}
