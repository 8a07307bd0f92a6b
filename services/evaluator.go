package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"paper-auditor/config"
	"paper-auditor/llm"
	"paper-auditor/models"

	"go.uber.org/zap"
)

// Evaluator rates how relevant a cited work is to the claims citing it and
// whether it supports them. Heuristic scoring always runs; a language model
// assistant and an embedder refine it when configured.
type Evaluator struct {
	scoring   config.RelevanceScoring
	assistant llm.Assistant
	embedder  llm.Embedder
	logger    *zap.Logger
}

// NewEvaluator creates an evaluator. assistant and embedder may be nil.
func NewEvaluator(scoring config.RelevanceScoring, assistant llm.Assistant, embedder llm.Embedder, logger *zap.Logger) *Evaluator {
	if assistant == nil {
		assistant = llm.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{scoring: scoring, assistant: assistant, embedder: embedder, logger: logger}
}

// EvaluationInput is everything known about one resolved citation.
type EvaluationInput struct {
	Cited         models.CitationMetadata
	Contexts      []models.CitationContext
	PaperTitle    string
	PaperAbstract string
}

// Evaluation is the evaluator's verdict. Degraded is set when an optional
// service failed and the heuristic result was used instead.
type Evaluation struct {
	Relevance     models.Relevance
	Justification models.Justification
	Degraded      bool
}

const (
	maxCompareRunes = 600
	degradedNote    = " (language model unavailable, heuristic assessment only)"
)

type claimCandidate struct {
	context models.CitationContext
	claim   string
	text    string
}

type heuristic struct {
	signals     models.RelevanceSignal
	composite   float64
	score       int
	containment float64
	claim       claimCandidate
}

// Evaluate scores the cited work against every citing context and keeps the
// best one. Without contexts the citing paper's title and abstract stand in
// for the claim.
func (e *Evaluator) Evaluate(ctx context.Context, in EvaluationInput) Evaluation {
	cited, source := citedText(in.Cited)
	claims := claimCandidates(in)

	semantic, semErr := e.semantic(ctx, cited, claims)
	var out Evaluation
	if semErr != nil {
		out.Degraded = true
		e.logger.Warn("Embedding failed, scoring without semantic similarity", zap.Error(semErr))
	}

	var best *heuristic
	for i, c := range claims {
		h := e.score(in.Cited, cited, c)
		if semantic != nil {
			s := semantic[i]
			h.signals.Semantic = &s
			h.composite, h.score = e.combine(h.signals)
		}
		if best == nil || h.composite > best.composite {
			best = &h
		}
	}

	out.Relevance = models.Relevance{
		Score:       best.score,
		Composite:   best.composite,
		Signals:     best.signals,
		Explanation: e.explain(*best, source),
	}
	justified := best.containment >= e.scoring.JustifiedMinContainment && best.score >= e.scoring.JustifiedMinScore
	out.Justification = models.Justification{
		Justified: justified,
		Rationale: e.rationale(*best, justified, len(in.Contexts) == 0),
	}

	if e.refine(ctx, in, *best, &out) {
		out.Degraded = true
	}
	if out.Degraded {
		out.Relevance.Explanation += degradedNote
	}
	return out
}

func claimCandidates(in EvaluationInput) []claimCandidate {
	if len(in.Contexts) == 0 {
		paper := strings.TrimSpace(in.PaperTitle + ". " + in.PaperAbstract)
		return []claimCandidate{{claim: paper, text: paper}}
	}
	out := make([]claimCandidate, 0, len(in.Contexts))
	for _, c := range in.Contexts {
		claim := c.ClaimStatement
		if claim == "" {
			claim = c.SurroundingText
		}
		text := claim
		if c.SurroundingText != "" && !strings.Contains(c.SurroundingText, claim) {
			text = claim + " " + c.SurroundingText
		} else if c.SurroundingText != "" {
			text = c.SurroundingText
		}
		out = append(out, claimCandidate{context: c, claim: claim, text: text})
	}
	return out
}

// citedText is the abstract when present, else the title and venue.
func citedText(m models.CitationMetadata) (text, source string) {
	if strings.TrimSpace(m.Abstract) != "" {
		return strings.TrimSpace(m.Title + ". " + m.Abstract), "abstract"
	}
	return strings.TrimSpace(m.Title + " " + m.Journal), "title and venue"
}

func (e *Evaluator) score(meta models.CitationMetadata, cited string, c claimCandidate) heuristic {
	contextWords := contentWordSet(c.text, 1)
	citedWords := contentWordSet(cited, 1)

	s := models.RelevanceSignal{
		TitleSimilarity:   containment(contentWordSet(meta.Title, 3), contextWords),
		ContentSimilarity: contentSimilarity(c.text, cited),
		KeywordOverlap:    jaccard(contentWordSet(c.text, 4), contentWordSet(cited, 4)),
		DomainRelevance:   domainRelevance(contextWords, citedWords),
		CitationQuality:   citationQuality(c.claim),
	}
	h := heuristic{signals: s, claim: c}
	h.composite, h.score = e.combine(s)
	h.containment = containment(contentWordSet(c.claim, 4), citedWords)
	return h
}

// combine blends the available signals with the configured weights,
// renormalized over the terms present.
func (e *Evaluator) combine(s models.RelevanceSignal) (float64, int) {
	w := e.scoring
	terms := []struct{ weight, value float64 }{
		{w.TitleWeight, s.TitleSimilarity},
		{w.ContentWeight, s.ContentSimilarity},
		{w.KeywordWeight, s.KeywordOverlap},
		{w.DomainWeight, s.DomainRelevance},
		{w.QualityWeight, s.CitationQuality},
	}
	if s.Semantic != nil {
		terms = append(terms, struct{ weight, value float64 }{w.SemanticWeight, *s.Semantic})
	}
	var sum, total float64
	for _, t := range terms {
		sum += t.weight * t.value
		total += t.weight
	}
	if total <= 0 {
		return 0, 0
	}
	composite := clamp01(sum / total)
	return composite, w.BucketScore(composite)
}

func (e *Evaluator) semantic(ctx context.Context, cited string, claims []claimCandidate) ([]float64, error) {
	if e.embedder == nil || cited == "" {
		return nil, nil
	}
	texts := make([]string, 0, len(claims)+1)
	texts = append(texts, cited)
	for _, c := range claims {
		texts = append(texts, c.text)
	}
	vecs, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(claims))
	for i := range claims {
		out[i] = llm.Cosine(vecs[0], vecs[i+1])
	}
	return out, nil
}

// refine asks the assistant for explanation and verdict text. It reports
// whether the assistant failed.
func (e *Evaluator) refine(ctx context.Context, in EvaluationInput, best heuristic, out *Evaluation) bool {
	degraded := false
	rel, err := e.assistant.Relevance(ctx, llm.RelevanceInput{
		PaperTitle:    in.PaperTitle,
		PaperAbstract: in.PaperAbstract,
		Cited:         in.Cited,
	})
	switch {
	case errors.Is(err, llm.ErrUnavailable):
		return false
	case err != nil:
		e.logger.Warn("Relevance assessment by language model failed", zap.Error(err))
		degraded = true
	case rel.Explanation != "":
		out.Relevance.Explanation = fmt.Sprintf("%s Model rating %d/5. [heuristic: %s]",
			rel.Explanation, rel.Score, out.Relevance.Explanation)
	}

	jus, err := e.assistant.Justification(ctx, llm.JustificationInput{
		Context: models.CitationContext{
			ClaimStatement:  best.claim.claim,
			SurroundingText: best.claim.context.SurroundingText,
		},
		Cited: in.Cited,
	})
	if err != nil {
		if !errors.Is(err, llm.ErrUnavailable) {
			e.logger.Warn("Justification check by language model failed", zap.Error(err))
			degraded = true
		}
		return degraded
	}
	out.Justification.Justified = jus.Justified && out.Relevance.Score >= e.scoring.JustifiedMinScore
	rationale := jus.Rationale
	if rationale == "" {
		rationale = "The language model gave no rationale."
	}
	out.Justification.Rationale = fmt.Sprintf("%s [heuristic: %s]", rationale, out.Justification.Rationale)
	return degraded
}

func (e *Evaluator) explain(h heuristic, source string) string {
	type named struct {
		name  string
		value float64
	}
	signals := []named{
		{"title match", h.signals.TitleSimilarity},
		{"content overlap", h.signals.ContentSimilarity},
		{"keyword overlap", h.signals.KeywordOverlap},
		{"domain match", h.signals.DomainRelevance},
		{"citation wording", h.signals.CitationQuality},
	}
	if h.signals.Semantic != nil {
		signals = append(signals, named{"semantic similarity", *h.signals.Semantic})
	}
	sort.SliceStable(signals, func(i, j int) bool { return signals[i].value > signals[j].value })
	top, low := signals[0], signals[len(signals)-1]
	return fmt.Sprintf("Relevance %d/5 (composite %.2f) against the cited %s; strongest signal %s (%.2f), weakest %s (%.2f).",
		h.score, h.composite, source, top.name, top.value, low.name, low.value)
}

func (e *Evaluator) rationale(h heuristic, justified, paperLevel bool) string {
	var b strings.Builder
	if paperLevel {
		b.WriteString("No in-text citation found; assessed against the paper title and abstract. ")
	}
	if justified {
		fmt.Fprintf(&b, "%.0f%% of the claim's keywords appear in the cited work and relevance %d/5 meets the threshold of %d.",
			h.containment*100, h.score, e.scoring.JustifiedMinScore)
		return b.String()
	}
	var problems []string
	if h.containment < e.scoring.JustifiedMinContainment {
		problems = append(problems, fmt.Sprintf("only %.0f%% of the claim's keywords appear in the cited work", h.containment*100))
	}
	if h.score < e.scoring.JustifiedMinScore {
		problems = append(problems, fmt.Sprintf("relevance %d/5 is below the threshold of %d", h.score, e.scoring.JustifiedMinScore))
	}
	fmt.Fprintf(&b, "The cited work does not appear to support the claim: %s.", strings.Join(problems, " and "))
	return b.String()
}

// contentWordSet returns the normalized non-stop words of s with at least
// minLen runes.
func contentWordSet(s string, minLen int) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(NormalizeTitle(s)) {
		if titleStopWords[w] || len([]rune(w)) < minLen {
			continue
		}
		set[w] = true
	}
	return set
}

// containment is the share of want found in have.
func containment(want, have map[string]bool) float64 {
	if len(want) == 0 {
		return 0
	}
	n := 0
	for w := range want {
		if have[w] {
			n++
		}
	}
	return float64(n) / float64(len(want))
}

func contentSimilarity(a, b string) float64 {
	na, nb := clipRunes(NormalizeTitle(a), maxCompareRunes), clipRunes(NormalizeTitle(b), maxCompareRunes)
	if na == "" || nb == "" {
		return 0
	}
	return 0.4*SequenceRatio(na, nb) + 0.6*WordJaccard(na, nb)
}

var domainCategories = map[string][]string{
	"method":      {"method", "methods", "approach", "technique", "algorithm", "procedure", "framework"},
	"result":      {"result", "results", "finding", "findings", "outcome", "outcomes", "conclusion", "evidence", "data"},
	"comparison":  {"compare", "compared", "comparison", "versus", "vs", "similar", "different"},
	"theory":      {"theory", "model", "models", "hypothesis", "concept", "principle"},
	"application": {"application", "applications", "implementation", "use", "applied", "practice"},
	"analysis":    {"analysis", "study", "studies", "investigation", "examination", "evaluation"},
}

func categoriesOf(words map[string]bool) map[string]bool {
	out := map[string]bool{}
	for cat, terms := range domainCategories {
		for _, t := range terms {
			if words[t] {
				out[cat] = true
				break
			}
		}
	}
	return out
}

// domainRelevance is the share of the claim's domain categories that the
// cited text shares, 0.5 when the claim names none.
func domainRelevance(claimWords, citedWords map[string]bool) float64 {
	claimCats := categoriesOf(claimWords)
	if len(claimCats) == 0 {
		return 0.5
	}
	return containment(claimCats, categoriesOf(citedWords))
}

var (
	strongIndicatorRe = regexp.MustCompile(`(?i)\b(?:show(?:s|ed|n)?|demonstrat(?:e|es|ed)|according to|found|reported|established|prove[dn]?)\b`)
	weakIndicatorRe   = regexp.MustCompile(`(?i)(?:\bsee\b|\balso\b|\be\.g\.|\bcf\.)`)
	numberRe          = regexp.MustCompile(`\d`)
)

// citationQuality rates the wording that introduces a citation.
func citationQuality(claim string) float64 {
	q := 0.5
	if strongIndicatorRe.MatchString(claim) {
		q += 0.2
	}
	if weakIndicatorRe.MatchString(claim) {
		q -= 0.1
	}
	if n := len(strings.Fields(claim)); n >= 5 && n <= 40 {
		q += 0.1
	}
	if numberRe.MatchString(claim) {
		q += 0.1
	}
	return clamp01(q)
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

func clipRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
