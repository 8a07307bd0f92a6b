package models

import (
	"errors"
	"fmt"
)

// Status is the final classification of one citation.
type Status string

const (
	StatusPass    Status = "PASS"
	StatusSuspect Status = "SUSPECT"
	StatusMissing Status = "MISSING"
)

// ErrReportInvariant is returned when report counts do not add up.
var ErrReportInvariant = errors.New("report counts do not match audited citations")

// Relevance is the 0-5 topical relevance rating of a cited work.
type Relevance struct {
	Score       int             `json:"score"`
	Explanation string          `json:"explanation"`
	Composite   float64         `json:"composite"`
	Signals     RelevanceSignal `json:"signals"`
}

// RelevanceSignal keeps the sub-scores behind a relevance rating. Semantic
// is nil when no embedder was available.
type RelevanceSignal struct {
	TitleSimilarity   float64  `json:"title_similarity"`
	ContentSimilarity float64  `json:"content_similarity"`
	KeywordOverlap    float64  `json:"keyword_overlap"`
	DomainRelevance   float64  `json:"domain_relevance"`
	CitationQuality   float64  `json:"citation_quality"`
	Semantic          *float64 `json:"semantic_similarity,omitempty"`
}

// Justification records whether the cited work supports the claim.
type Justification struct {
	Justified bool   `json:"justified"`
	Rationale string `json:"rationale"`
}

// CitationAudit is the audit outcome for one reference entry.
type CitationAudit struct {
	CitationKey      string            `json:"citation_key"`
	OriginalText     string            `json:"original_text"`
	Metadata         CitationMetadata  `json:"metadata"`
	Contexts         []CitationContext `json:"contexts"`
	ExistsOnline     bool              `json:"exists_online"`
	ExistenceDetails string            `json:"existence_details"`
	Relevance        *Relevance        `json:"relevance,omitempty"`
	Justification    *Justification    `json:"justification,omitempty"`
	Status           Status            `json:"status"`
	SourceDatabase   string            `json:"source_database"`
	Match            *LookupResult     `json:"match,omitempty"`
}

// Diagnostics counts recoverable extraction problems.
type Diagnostics struct {
	DroppedReferences int `json:"dropped_references"`
	MergedDuplicates  int `json:"merged_duplicates"`
	Markers           int `json:"markers"`
	UnresolvedMarkers int `json:"unresolved_markers"`
}

// AnalysisReport is the aggregate outcome of one audit run.
type AnalysisReport struct {
	RunID            string          `json:"run_id"`
	PaperTitle       string          `json:"paper_title"`
	PaperAuthors     []string        `json:"paper_authors"`
	TotalCitations   int             `json:"total_citations"`
	AuditedCitations []CitationAudit `json:"audited_citations"`
	PassedCount      int             `json:"passed_count"`
	SuspectCount     int             `json:"suspect_count"`
	MissingCount     int             `json:"missing_count"`
	Diagnostics      Diagnostics     `json:"diagnostics"`
}

// Tally recomputes the status counts from the audited citations.
func (r *AnalysisReport) Tally() {
	r.TotalCitations = len(r.AuditedCitations)
	r.PassedCount, r.SuspectCount, r.MissingCount = 0, 0, 0
	for _, a := range r.AuditedCitations {
		switch a.Status {
		case StatusPass:
			r.PassedCount++
		case StatusSuspect:
			r.SuspectCount++
		default:
			r.MissingCount++
		}
	}
}

// Validate checks that the counts add up to the number of audited citations.
func (r *AnalysisReport) Validate() error {
	if r.PassedCount+r.SuspectCount+r.MissingCount != r.TotalCitations {
		return fmt.Errorf("%w: %d+%d+%d != %d", ErrReportInvariant,
			r.PassedCount, r.SuspectCount, r.MissingCount, r.TotalCitations)
	}
	if r.TotalCitations != len(r.AuditedCitations) {
		return fmt.Errorf("%w: total %d but %d audited", ErrReportInvariant,
			r.TotalCitations, len(r.AuditedCitations))
	}
	return nil
}
