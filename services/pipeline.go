package services

import (
	"context"
	"strings"

	"paper-auditor/config"
	"paper-auditor/llm"

	"go.uber.org/zap"
)

// Pipeline holds the process-wide audit components. Auditors created from
// it share one lookup gateway, so cache and rate limits apply across runs.
type Pipeline struct {
	Config    *config.Config
	Scoring   config.Scoring
	Extractor *CitationExtractor
	Resolver  *Resolver
	Embedder  llm.Embedder
	Logger    *zap.Logger
}

// NewPipeline builds the shared components on top of q.
func NewPipeline(cfg *config.Config, scoring config.Scoring, q Querier, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		Config:    cfg,
		Scoring:   scoring,
		Extractor: NewCitationExtractor(scoring.Match, logger),
		Resolver:  NewResolver(q, scoring.Match, logger),
		Embedder:  llm.NewEmbedder(cfg),
		Logger:    logger,
	}
}

// Auditor returns an auditor using modelID for the assisted evaluation, or
// the configured default model when modelID is empty. The close function
// releases the model client.
func (p *Pipeline) Auditor(ctx context.Context, modelID string) (*Auditor, func() error, error) {
	if strings.TrimSpace(modelID) == "" {
		modelID = p.Config.LLMModel
	}
	assistant, closeFn, err := llm.NewAssistant(ctx, p.Config, modelID, p.Logger)
	if err != nil {
		return nil, closeFn, err
	}
	evaluator := NewEvaluator(p.Scoring.Relevance, assistant, p.Embedder, p.Logger)
	return NewAuditor(p.Extractor, p.Resolver, evaluator, p.Config.AuditConcurrency, p.Logger), closeFn, nil
}
