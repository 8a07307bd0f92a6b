package gateway

import (
	"fmt"
	"time"

	"paper-auditor/config"
	"paper-auditor/providers"
	"paper-auditor/providers/arxiv"
	"paper-auditor/providers/crossref"
	"paper-auditor/providers/europepmc"
	"paper-auditor/providers/pubmed"
	"paper-auditor/providers/semanticscholar"
	"paper-auditor/providers/unpaywall"

	"go.uber.org/zap"
)

// NewProviders builds the adapters listed in ENABLED_PROVIDERS, in order.
func NewProviders(cfg *config.Config, logger *zap.Logger) ([]providers.Provider, error) {
	var ps []providers.Provider
	for _, name := range cfg.ProviderNames() {
		var p providers.Provider
		switch name {
		case "crossref":
			p = crossref.NewFetcher(cfg, logger)
		case "pubmed":
			p = pubmed.NewFetcher(cfg, logger)
		case "arxiv":
			p = arxiv.NewFetcher(cfg, logger)
		case "europepmc":
			p = europepmc.NewFetcher(cfg, logger)
		case "semanticscholar":
			p = semanticscholar.NewFetcher(cfg, logger)
		case "unpaywall":
			p = unpaywall.NewFetcher(cfg, logger)
		default:
			return nil, fmt.Errorf("unknown provider %q in ENABLED_PROVIDERS", name)
		}
		ps = append(ps, p)
	}
	if len(ps) == 0 {
		return nil, fmt.Errorf("no providers enabled")
	}
	return ps, nil
}

// NewFromConfig wires providers, cache, rate gates and the given sink.
func NewFromConfig(cfg *config.Config, sink CallSink, logger *zap.Logger) (*Gateway, error) {
	ps, err := NewProviders(cfg, logger)
	if err != nil {
		return nil, err
	}
	return New(ps, Options{
		Cache:   NewCache(cfg.CacheTTL, cfg.CacheMaxEntries),
		Gates:   NewRateGates(cfg.ProviderDelays(), time.Second),
		Sink:    sink,
		Timeout: cfg.ProviderTimeout,
		Logger:  logger,
	}), nil
}
