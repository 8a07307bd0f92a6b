// Package crossref resolves DOIs and searches works via the CrossRef REST API.
package crossref

import "regexp"

// WorkResponse is the envelope of /works/{doi}.
type WorkResponse struct {
	Status  string `json:"status"`
	Message Work   `json:"message"`
}

// SearchResponse is the envelope of /works?query...
type SearchResponse struct {
	Status  string `json:"status"`
	Message struct {
		Items []Work `json:"items"`
	} `json:"message"`
}

// Work is a single CrossRef work record.
type Work struct {
	DOI            string   `json:"DOI"`
	URL            string   `json:"URL"`
	Title          []string `json:"title"`
	ContainerTitle []string `json:"container-title"`
	Abstract       string   `json:"abstract"`
	Author         []struct {
		Given  string `json:"given"`
		Family string `json:"family"`
		Name   string `json:"name"`
	} `json:"author"`
	Issued         DateParts `json:"issued"`
	PublishedPrint DateParts `json:"published-print"`
	Score          float64   `json:"score"`
}

// DateParts is CrossRef's {"date-parts": [[year, month, day]]} encoding.
type DateParts struct {
	DateParts [][]int `json:"date-parts"`
}

// Year returns the first year in the date parts, or 0.
func (d DateParts) Year() int {
	if len(d.DateParts) > 0 && len(d.DateParts[0]) > 0 {
		return d.DateParts[0][0]
	}
	return 0
}

var jatsTagRe = regexp.MustCompile(`<[^>]+>`)

// stripJATS removes the JATS markup CrossRef embeds in abstracts.
func stripJATS(s string) string {
	return jatsTagRe.ReplaceAllString(s, "")
}
