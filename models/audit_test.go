package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportTallyAndValidate(t *testing.T) {
	r := &AnalysisReport{AuditedCitations: []CitationAudit{
		{Status: StatusPass}, {Status: StatusSuspect}, {Status: StatusMissing}, {Status: StatusPass},
	}}
	r.Tally()

	assert.Equal(t, 4, r.TotalCitations)
	assert.Equal(t, 2, r.PassedCount)
	assert.Equal(t, 1, r.SuspectCount)
	assert.Equal(t, 1, r.MissingCount)
	require.NoError(t, r.Validate())

	r.PassedCount = 3
	assert.ErrorIs(t, r.Validate(), ErrReportInvariant)

	r.Tally()
	r.TotalCitations = 5
	r.MissingCount = 2
	assert.ErrorIs(t, r.Validate(), ErrReportInvariant)
}

func TestReportJSONFieldNames(t *testing.T) {
	page := 2
	r := AnalysisReport{
		PaperTitle:   "A Paper",
		PaperAuthors: []string{"Doe"},
		AuditedCitations: []CitationAudit{{
			CitationKey: "ref_1",
			Contexts:    []CitationContext{{PageNumber: &page, ClaimStatement: "claim"}},
			Status:      StatusPass,
			Relevance:   &Relevance{Score: 4, Explanation: "x"},
		}},
	}
	r.Tally()

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"paper_title", "paper_authors", "total_citations", "audited_citations",
		"passed_count", "suspect_count", "missing_count"} {
		assert.Contains(t, raw, key)
	}
	audit := raw["audited_citations"].([]any)[0].(map[string]any)
	for _, key := range []string{"citation_key", "original_text", "metadata", "contexts", "exists_online",
		"existence_details", "relevance", "status"} {
		assert.Contains(t, audit, key)
	}
	assert.NotContains(t, audit, "justification")
	assert.Equal(t, "PASS", audit["status"])
	ctx := audit["contexts"].([]any)[0].(map[string]any)
	for _, key := range []string{"page_number", "section", "surrounding_text", "claim_statement"} {
		assert.Contains(t, ctx, key)
	}
}

func TestLookupRequestKey(t *testing.T) {
	assert.Equal(t, "doi:10.1038/nature12373", LookupRequest{Kind: KindDOI, Value: " 10.1038/NATURE12373 "}.Key())
	assert.Equal(t, "pmid:123456", LookupRequest{Kind: KindPMID, Value: "123456"}.Key())
	assert.Equal(t, "title:deep residual learning|2016",
		LookupRequest{Kind: KindTitle, Title: "Deep  Residual\nLearning", Year: 2016}.Key())
	assert.Equal(t, "author:he|2016",
		LookupRequest{Kind: KindAuthorYear, Authors: []string{"He"}, Year: 2016}.Key())
}

func TestMetadataEligibility(t *testing.T) {
	assert.False(t, CitationMetadata{Authors: []string{"Smith"}, Year: 2020}.Eligible())
	assert.True(t, CitationMetadata{Title: "A title"}.Eligible())
	assert.True(t, CitationMetadata{PMID: "1"}.Eligible())

	m := CitationMetadata{Title: "t", Authors: []string{"a"}, Year: 2000}
	assert.Equal(t, 3, m.FieldCount())
	c := m.Clone()
	c.Authors[0] = "b"
	assert.Equal(t, "a", m.Authors[0])
}
