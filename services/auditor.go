package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"paper-auditor/gateway"
	"paper-auditor/metrics"
	"paper-auditor/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrEmptyInput is returned when the document text is empty.
var ErrEmptyInput = errors.New("input text is empty")

const cancelledDetails = "audit cancelled before lookup completed"

// ReferenceResolver decides whether a reference exists.
type ReferenceResolver interface {
	Resolve(ctx context.Context, meta models.CitationMetadata) Resolution
}

// CitationEvaluator rates relevance and justification of a resolved reference.
type CitationEvaluator interface {
	Evaluate(ctx context.Context, in EvaluationInput) Evaluation
}

// Input is one document to audit. References, when set, replace the parsed
// reference section. PaperTitle and PaperAuthors override the front matter.
type Input struct {
	Text         string
	References   []models.Reference
	PaperTitle   string
	PaperAuthors []string
}

// Auditor runs extraction, resolution, evaluation and classification for
// every reference of a document.
type Auditor struct {
	extractor   *CitationExtractor
	resolver    ReferenceResolver
	evaluator   CitationEvaluator
	concurrency int
	logger      *zap.Logger
}

// NewAuditor wires the pipeline. concurrency bounds how many references are
// processed at once.
func NewAuditor(extractor *CitationExtractor, resolver ReferenceResolver, evaluator CitationEvaluator, concurrency int, logger *zap.Logger) *Auditor {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{
		extractor:   extractor,
		resolver:    resolver,
		evaluator:   evaluator,
		concurrency: concurrency,
		logger:      logger,
	}
}

type paperInfo struct {
	title    string
	abstract string
}

// Audit produces the report for in. Only empty input fails the run;
// every per-reference problem degrades that reference instead. A cancelled
// ctx stops new lookups and reports the remaining references as MISSING.
func (a *Auditor) Audit(ctx context.Context, in Input) (*models.AnalysisReport, error) {
	if strings.TrimSpace(in.Text) == "" {
		metrics.Audits.WithLabelValues("rejected").Inc()
		return nil, ErrEmptyInput
	}

	runID := uuid.NewString()
	ctx = gateway.WithRunID(ctx, runID)
	logger := a.logger.With(zap.String("run_id", runID))
	start := time.Now()

	var ex *Extraction
	if len(in.References) > 0 {
		ex = a.extractor.ExtractWithReferences(in.Text, in.References)
	} else {
		ex = a.extractor.Extract(in.Text)
	}

	report := &models.AnalysisReport{
		RunID:        runID,
		PaperTitle:   firstNonEmpty(in.PaperTitle, ex.PaperTitle),
		PaperAuthors: in.PaperAuthors,
		Diagnostics:  ex.Diagnostics,
	}
	if len(report.PaperAuthors) == 0 {
		report.PaperAuthors = ex.PaperAuthors
	}
	if report.PaperAuthors == nil {
		report.PaperAuthors = []string{}
	}
	paper := paperInfo{title: report.PaperTitle, abstract: ex.Abstract}

	logger.Info("Starting audit",
		zap.String("paper_title", report.PaperTitle),
		zap.Int("references", len(ex.References)),
		zap.Int("concurrency", a.concurrency))

	results := make([]models.CitationAudit, len(ex.References))
	sem := make(chan struct{}, a.concurrency)
	var wg sync.WaitGroup

	for i, ref := range ex.References {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results[i] = cancelledAudit(ref)
			continue
		}
		wg.Add(1)
		go func(i int, ref models.Reference) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = a.auditReference(ctx, ref, paper, logger)
		}(i, ref)
	}
	wg.Wait()

	report.AuditedCitations = results
	report.Tally()
	for _, r := range results {
		metrics.CitationsClassified.WithLabelValues(string(r.Status)).Inc()
	}
	if err := report.Validate(); err != nil {
		return nil, err
	}

	outcome := "completed"
	if ctx.Err() != nil {
		outcome = "cancelled"
	}
	metrics.Audits.WithLabelValues(outcome).Inc()
	logger.Info("Audit finished",
		zap.String("outcome", outcome),
		zap.Int("total", report.TotalCitations),
		zap.Int("passed", report.PassedCount),
		zap.Int("suspect", report.SuspectCount),
		zap.Int("missing", report.MissingCount),
		zap.Duration("duration", time.Since(start)))
	return report, nil
}

// auditReference moves one reference through resolution, evaluation and
// classification. A panic degrades the reference to MISSING.
func (a *Auditor) auditReference(ctx context.Context, ref models.Reference, paper paperInfo, logger *zap.Logger) (audit models.CitationAudit) {
	audit = baseAudit(ref)
	logger = logger.With(zap.String("citation_key", ref.Key))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Citation audit panicked", zap.Any("panic", r))
			audit = baseAudit(ref)
			audit.ExistenceDetails = fmt.Sprintf("Audit failed for this citation: %v", r)
		}
	}()

	if ctx.Err() != nil {
		audit.ExistenceDetails = cancelledDetails
		return audit
	}

	logger.Debug("Resolving citation")
	res := a.resolver.Resolve(ctx, ref.Metadata)
	audit.ExistenceDetails = res.Details
	if res.Cancelled {
		audit.ExistenceDetails = cancelledDetails
		return audit
	}
	if !res.Found {
		logger.Debug("Citation unmatched", zap.String("details", res.Details))
		return audit
	}

	audit.ExistsOnline = true
	audit.SourceDatabase = res.Result.Provider
	audit.Match = res.Result
	audit.Metadata = enrichMetadata(ref.Metadata, res.Result)
	logger.Debug("Citation matched",
		zap.String("provider", res.Result.Provider),
		zap.String("strategy", res.Result.Strategy),
		zap.Float64("confidence", res.Result.Confidence))

	ev := a.evaluator.Evaluate(ctx, EvaluationInput{
		Cited:         audit.Metadata,
		Contexts:      ref.Contexts,
		PaperTitle:    paper.title,
		PaperAbstract: paper.abstract,
	})
	audit.Relevance = &ev.Relevance
	audit.Justification = &ev.Justification
	audit.Status = Classify(true, audit.Relevance, audit.Justification)
	logger.Debug("Citation classified", zap.String("status", string(audit.Status)), zap.Int("relevance", ev.Relevance.Score))
	return audit
}

// Classify applies the PASS/SUSPECT/MISSING rule.
func Classify(found bool, rel *models.Relevance, jus *models.Justification) models.Status {
	switch {
	case !found:
		return models.StatusMissing
	case rel == nil || jus == nil:
		return models.StatusSuspect
	case rel.Score < 3 || !jus.Justified:
		return models.StatusSuspect
	default:
		return models.StatusPass
	}
}

func baseAudit(ref models.Reference) models.CitationAudit {
	contexts := ref.Contexts
	if contexts == nil {
		contexts = []models.CitationContext{}
	}
	return models.CitationAudit{
		CitationKey:  ref.Key,
		OriginalText: ref.RawText,
		Metadata:     ref.Metadata.Clone(),
		Contexts:     contexts,
		Status:       models.StatusMissing,
	}
}

func cancelledAudit(ref models.Reference) models.CitationAudit {
	a := baseAudit(ref)
	a.ExistenceDetails = cancelledDetails
	return a
}

// enrichMetadata fills fields the citation lacks from the matched record.
// Values from the citation itself are kept.
func enrichMetadata(m models.CitationMetadata, r *models.LookupResult) models.CitationMetadata {
	out := m.Clone()
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&out.Title, r.Title)
	fill(&out.Journal, r.Journal)
	fill(&out.DOI, r.DOI)
	fill(&out.PMID, r.PMID)
	fill(&out.ArXivID, r.ArXivID)
	fill(&out.URL, r.URL)
	fill(&out.Abstract, r.Abstract)
	if out.Year == 0 {
		out.Year = r.Year
	}
	if len(out.Authors) == 0 {
		out.Authors = append([]string(nil), r.Authors...)
	}
	return out
}
