// Package semanticscholar looks up papers in the Semantic Scholar Graph API.
package semanticscholar

// Paper is a Graph API paper record restricted to the requested fields.
type Paper struct {
	PaperID     string `json:"paperId"`
	Title       string `json:"title"`
	Year        int    `json:"year"`
	Venue       string `json:"venue"`
	Abstract    string `json:"abstract"`
	URL         string `json:"url"`
	ExternalIDs struct {
		DOI    string `json:"DOI"`
		PubMed string `json:"PubMed"`
		ArXiv  string `json:"ArXiv"`
	} `json:"externalIds"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
}

// SearchResponse is the answer of /paper/search.
type SearchResponse struct {
	Total int     `json:"total"`
	Data  []Paper `json:"data"`
}

const paperFields = "title,year,venue,abstract,url,externalIds,authors"
