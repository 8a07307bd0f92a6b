package services

import (
	"context"
	"strings"

	"paper-auditor/config"
	"paper-auditor/models"

	"go.uber.org/zap"
)

// Strategy names as reported in existence details and LookupResult.Strategy.
const (
	StrategyIdentifier   = "identifier"
	StrategyTitleSearch  = "title_search"
	StrategyRelaxedTitle = "relaxed_title"
	StrategyDOIPrefix    = "doi_prefix"
	StrategyAuthorYear   = "author_year"
)

// ambiguityMargin is the score distance under which two accepted candidates
// are logged as an ambiguous match.
const ambiguityMargin = 0.02

func query(ctx context.Context, q Querier, provider string, req models.LookupRequest, tr *Trace) []*models.LookupResult {
	res := q.Query(ctx, provider, req)
	tr.Queries++
	if res.Err != nil {
		tr.Errors++
		tr.LastErr = res.Err
	}
	return res.Candidates
}

// IdentifierStrategy looks DOI, PMID and arXiv id up directly. A hit is
// accepted at confidence 1.0 without scoring.
type IdentifierStrategy struct {
	q Querier
}

func (s *IdentifierStrategy) Name() string { return StrategyIdentifier }

func (s *IdentifierStrategy) Attempt(ctx context.Context, meta models.CitationMetadata, tr *Trace) (*models.LookupResult, bool) {
	ids := []models.LookupRequest{
		{Kind: models.KindDOI, Value: meta.DOI},
		{Kind: models.KindPMID, Value: meta.PMID},
		{Kind: models.KindArXiv, Value: meta.ArXivID},
	}
	for _, req := range ids {
		if req.Value == "" {
			continue
		}
		for _, p := range s.q.Providers(req.Kind) {
			if ctx.Err() != nil {
				return nil, false
			}
			if cands := query(ctx, s.q, p, req, tr); len(cands) > 0 {
				hit := cands[0].Clone()
				hit.Confidence = 1.0
				return hit, true
			}
		}
	}
	return nil, false
}

// matcher scores search candidates against the cited metadata.
type matcher struct {
	q       Querier
	scoring config.MatchScoring
	logger  *zap.Logger
}

// search queries every provider supporting req.Kind in order and returns the
// best candidate of the first provider that has one at or above threshold.
func (m matcher) search(ctx context.Context, meta models.CitationMetadata, req models.LookupRequest, threshold float64, tr *Trace) (*models.LookupResult, bool) {
	for _, p := range m.q.Providers(req.Kind) {
		if ctx.Err() != nil {
			return nil, false
		}
		cands := query(ctx, m.q, p, req, tr)
		if best, ok := m.best(meta, cands, threshold); ok {
			return best, true
		}
	}
	return nil, false
}

// best picks the highest scoring candidate at or above threshold. Exact
// ties go to the candidate with more populated fields.
func (m matcher) best(meta models.CitationMetadata, cands []*models.LookupResult, threshold float64) (*models.LookupResult, bool) {
	var best *models.LookupResult
	bestScore, runnerUp := -1.0, -1.0
	for _, c := range cands {
		s := ScoreCandidate(meta.Title, meta.Year, meta.Authors,
			candidateFields{title: c.Title, year: c.Year, authors: c.Authors}, m.scoring).Combined
		if s < threshold {
			continue
		}
		switch {
		case s > bestScore:
			runnerUp = bestScore
			best, bestScore = c, s
		case s == bestScore:
			runnerUp = s
			if c.FieldCount() > best.FieldCount() {
				best = c
			}
		case s > runnerUp:
			runnerUp = s
		}
	}
	if best == nil {
		return nil, false
	}
	if runnerUp >= 0 && bestScore-runnerUp < ambiguityMargin {
		m.logger.Debug("Ambiguous match resolved by tie-break",
			zap.String("title", meta.Title),
			zap.Float64("best", bestScore),
			zap.Float64("runner_up", runnerUp))
	}
	hit := best.Clone()
	hit.Confidence = bestScore
	return hit, true
}

// TitleSearchStrategy searches by the cited title and accepts candidates at
// the primary threshold.
type TitleSearchStrategy struct {
	m matcher
}

func (s *TitleSearchStrategy) Name() string { return StrategyTitleSearch }

func (s *TitleSearchStrategy) Attempt(ctx context.Context, meta models.CitationMetadata, tr *Trace) (*models.LookupResult, bool) {
	if strings.TrimSpace(meta.Title) == "" {
		return nil, false
	}
	req := models.LookupRequest{Kind: models.KindTitle, Title: meta.Title, Year: meta.Year, Authors: meta.Authors}
	return s.m.search(ctx, meta, req, s.m.scoring.PrimaryThreshold, tr)
}

var titleStopWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "and": true, "or": true, "in": true, "on": true,
	"for": true, "to": true, "with": true, "by": true, "from": true, "at": true, "as": true, "is": true,
	"are": true, "its": true, "their": true, "via": true, "into": true, "using": true, "towards": true,
	"toward": true, "about": true, "between": true, "through": true, "we": true, "do": true, "does": true,
}

const maxKeywordTerms = 6

// TitleVariants returns relaxed search forms of a title: punctuation
// stripped, stop words removed and keywords only. Variants equal to an
// earlier one are skipped.
func TitleVariants(title string) []string {
	norm := NormalizeTitle(title)
	if norm == "" {
		return nil
	}
	var content, keywords []string
	for _, w := range strings.Fields(norm) {
		if titleStopWords[w] {
			continue
		}
		content = append(content, w)
		if len([]rune(w)) >= 4 && len(keywords) < maxKeywordTerms {
			keywords = append(keywords, w)
		}
	}
	seen := map[string]bool{strings.Join(strings.Fields(strings.ToLower(title)), " "): true}
	var out []string
	for _, v := range []string{norm, strings.Join(content, " "), strings.Join(keywords, " ")} {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// RelaxedTitleStrategy retries the title search with relaxed variants and
// the fallback threshold. Candidates are still scored against the cited
// title.
type RelaxedTitleStrategy struct {
	m matcher
}

func (s *RelaxedTitleStrategy) Name() string { return StrategyRelaxedTitle }

func (s *RelaxedTitleStrategy) Attempt(ctx context.Context, meta models.CitationMetadata, tr *Trace) (*models.LookupResult, bool) {
	for _, v := range TitleVariants(meta.Title) {
		req := models.LookupRequest{Kind: models.KindTitle, Title: v, Year: meta.Year, Authors: meta.Authors}
		if hit, ok := s.m.search(ctx, meta, req, s.m.scoring.FallbackThreshold, tr); ok {
			return hit, true
		}
	}
	return nil, false
}

const maxDOITrims = 3

// DOIPrefixes returns a DOI shortened segment by segment ("10.1/a.b.c" ->
// "10.1/a.b", "10.1/a"). The registrant prefix is never cut.
func DOIPrefixes(doi string) []string {
	slash := strings.IndexByte(doi, '/')
	if slash < 0 {
		return nil
	}
	var out []string
	cur := doi
	for len(out) < maxDOITrims {
		cut := strings.LastIndexAny(cur[slash+1:], "/.-_;")
		if cut <= 0 {
			break
		}
		cur = cur[:slash+1+cut]
		out = append(out, cur)
	}
	return out
}

// DOIPrefixStrategy resolves DOIs carrying trailing junk ("/full", ".pdf",
// supplement suffixes) by looking up shortened forms.
type DOIPrefixStrategy struct {
	m matcher
}

func (s *DOIPrefixStrategy) Name() string { return StrategyDOIPrefix }

func (s *DOIPrefixStrategy) Attempt(ctx context.Context, meta models.CitationMetadata, tr *Trace) (*models.LookupResult, bool) {
	comparable := meta.Title != "" || meta.Year > 0 || len(meta.Authors) > 0
	for _, prefix := range DOIPrefixes(meta.DOI) {
		req := models.LookupRequest{Kind: models.KindDOI, Value: prefix}
		for _, p := range s.m.q.Providers(models.KindDOI) {
			if ctx.Err() != nil {
				return nil, false
			}
			cands := query(ctx, s.m.q, p, req, tr)
			if len(cands) == 0 {
				continue
			}
			if !comparable {
				hit := cands[0].Clone()
				hit.Confidence = s.m.scoring.FallbackThreshold
				return hit, true
			}
			if hit, ok := s.m.best(meta, cands, s.m.scoring.FallbackThreshold); ok {
				return hit, true
			}
		}
	}
	return nil, false
}

// AuthorYearStrategy searches by first-author surname and year. It needs a
// cited title to score against; otherwise any work by the same author in the
// same year would be accepted.
type AuthorYearStrategy struct {
	m matcher
}

func (s *AuthorYearStrategy) Name() string { return StrategyAuthorYear }

func (s *AuthorYearStrategy) Attempt(ctx context.Context, meta models.CitationMetadata, tr *Trace) (*models.LookupResult, bool) {
	if meta.Title == "" || meta.Year <= 0 || len(meta.Authors) == 0 {
		return nil, false
	}
	req := models.LookupRequest{Kind: models.KindAuthorYear, Year: meta.Year, Authors: meta.Authors[:1]}
	return s.m.search(ctx, meta, req, s.m.scoring.FallbackThreshold, tr)
}
