package services

import (
	"context"
	"fmt"
	"strings"

	"paper-auditor/config"
	"paper-auditor/gateway"
	"paper-auditor/models"

	"go.uber.org/zap"
)

// Querier is the part of the lookup gateway the resolver depends on.
type Querier interface {
	Providers(kind models.LookupKind) []string
	Query(ctx context.Context, provider string, req models.LookupRequest) gateway.Result
}

// Strategy is one step of the existence cascade. Attempt returns the accepted
// candidate, or false when the strategy does not apply or finds nothing.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, meta models.CitationMetadata, tr *Trace) (*models.LookupResult, bool)
}

// Trace collects what happened while resolving one reference.
type Trace struct {
	Queries int
	Errors  int
	LastErr error
	Tried   []string
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Result    *models.LookupResult
	Found     bool
	Cancelled bool
	Details   string
}

// Resolver runs the strategy cascade for a reference entry.
type Resolver struct {
	strategies []Strategy
	logger     *zap.Logger
}

// NewResolver builds a resolver over q. Without explicit strategies the
// default cascade is used: identifier lookup, title search, relaxed title
// search, DOI prefix search and author/year search.
func NewResolver(q Querier, scoring config.MatchScoring, logger *zap.Logger, strategies ...Strategy) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(strategies) == 0 {
		strategies = DefaultStrategies(q, scoring, logger)
	}
	return &Resolver{strategies: strategies, logger: logger}
}

// DefaultStrategies returns the standard cascade in evaluation order.
func DefaultStrategies(q Querier, scoring config.MatchScoring, logger *zap.Logger) []Strategy {
	m := matcher{q: q, scoring: scoring, logger: logger}
	return []Strategy{
		&IdentifierStrategy{q: q},
		&TitleSearchStrategy{m: m},
		&RelaxedTitleStrategy{m: m},
		&DOIPrefixStrategy{m: m},
		&AuthorYearStrategy{m: m},
	}
}

// Resolve returns the first acceptable match of the cascade. Provider
// failures only count towards the trace; they never abort the cascade.
func (r *Resolver) Resolve(ctx context.Context, meta models.CitationMetadata) Resolution {
	var tr Trace
	for _, s := range r.strategies {
		if ctx.Err() != nil {
			return Resolution{Cancelled: true, Details: "audit cancelled before lookup completed"}
		}
		tr.Tried = append(tr.Tried, s.Name())
		res, ok := s.Attempt(ctx, meta, &tr)
		if !ok {
			continue
		}
		res.Strategy = s.Name()
		return Resolution{
			Result:  res,
			Found:   true,
			Details: fmt.Sprintf("Found in %s via %s (confidence %.2f)", res.Provider, s.Name(), res.Confidence),
		}
	}
	if ctx.Err() != nil {
		return Resolution{Cancelled: true, Details: "audit cancelled before lookup completed"}
	}

	details := fmt.Sprintf("Not found in any database after %d queries (%s)", tr.Queries, strings.Join(tr.Tried, ", "))
	if tr.Errors > 0 {
		details += fmt.Sprintf("; %d provider errors, last: %v", tr.Errors, tr.LastErr)
	}
	if !meta.Eligible() {
		details = "Reference has neither title nor identifier"
	}
	return Resolution{Details: details}
}
