// Package gateway is the single entry point for outbound bibliographic
// lookups. It adds caching, per-provider rate limiting, call logging and
// metrics around the provider adapters.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paper-auditor/metrics"
	"paper-auditor/models"
	"paper-auditor/providers"

	"go.uber.org/zap"
)

// Result is the answer of one gateway query. A failed call yields no
// candidates and a non-nil Err; callers treat it like not-found.
type Result struct {
	Candidates []*models.LookupResult
	FromCache  bool
	Err        error
}

// Found reports whether at least one candidate was returned.
func (r Result) Found() bool {
	return len(r.Candidates) > 0
}

// Gateway routes lookups to providers.
type Gateway struct {
	providers map[string]providers.Provider
	order     []string
	cache     *Cache
	gates     *RateGates
	sink      CallSink
	timeout   time.Duration
	logger    *zap.Logger
}

// Options configures a Gateway. Zero values get sensible defaults.
type Options struct {
	Cache   *Cache
	Gates   *RateGates
	Sink    CallSink
	Timeout time.Duration
	Logger  *zap.Logger
}

// New creates a gateway over the given providers. The order of ps is the
// order returned by Providers.
func New(ps []providers.Provider, opts Options) *Gateway {
	g := &Gateway{
		providers: make(map[string]providers.Provider, len(ps)),
		cache:     opts.Cache,
		gates:     opts.Gates,
		sink:      opts.Sink,
		timeout:   opts.Timeout,
		logger:    opts.Logger,
	}
	for _, p := range ps {
		if _, dup := g.providers[p.Name()]; dup {
			continue
		}
		g.providers[p.Name()] = p
		g.order = append(g.order, p.Name())
	}
	if g.cache == nil {
		g.cache = NewCache(time.Hour, 1000)
	}
	if g.gates == nil {
		g.gates = NewRateGates(nil, 0)
	}
	if g.timeout <= 0 {
		g.timeout = 10 * time.Second
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	if g.sink == nil {
		g.sink = LogSink{Logger: g.logger}
	}
	return g
}

// Cache exposes the lookup cache, e.g. for scheduled cleanup.
func (g *Gateway) Cache() *Cache {
	return g.cache
}

// Providers returns the names of the configured providers that support kind,
// in configuration order.
func (g *Gateway) Providers(kind models.LookupKind) []string {
	var names []string
	for _, name := range g.order {
		if g.providers[name].Supports(kind) {
			names = append(names, name)
		}
	}
	return names
}

// Query asks one provider. Cached answers (including not-found) are served
// without a call. Once ctx is cancelled no new calls are started; a call
// already running finishes within the provider timeout.
//
// Concurrent queries for the same key share one provider call. The call is
// logged under the run that made it; every other run gets its own cache-hit
// entry.
func (g *Gateway) Query(ctx context.Context, provider string, req models.LookupRequest) Result {
	p, ok := g.providers[provider]
	if !ok {
		return Result{Err: fmt.Errorf("unknown provider %q", provider)}
	}
	if !p.Supports(req.Kind) {
		return Result{}
	}

	key := provider + ":" + req.Key()
	var (
		entry  *CacheEntry
		hit    bool
		loaded bool
		err    error
	)
	for attempt := 0; attempt < maxJoinAttempts; attempt++ {
		loaded = false
		entry, hit, err = g.cache.GetOrLoad(key, func() ([]*models.LookupResult, error) {
			loaded = true
			return g.call(ctx, p, req)
		})
		var abandoned *abandonedError
		if err == nil || loaded || ctx.Err() != nil || !errors.As(err, &abandoned) {
			break
		}
		// The run that started the shared call was cancelled, this one was not.
	}

	if !loaded {
		shared := &models.APICall{
			RunID:     RunID(ctx),
			Timestamp: time.Now(),
			Service:   provider,
			Method:    string(req.Kind),
			Params:    req.Key(),
			CacheHit:  true,
		}
		if err != nil {
			shared.Error = err.Error()
		} else {
			shared.Success = true
			shared.ResultCount = len(entry.Results)
		}
		result := "shared"
		if hit {
			result = "hit"
		}
		metrics.CacheLookups.WithLabelValues(result).Inc()
		g.sink.Record(ctx, shared)
	}
	if err != nil {
		return Result{Err: err}
	}

	out := make([]*models.LookupResult, 0, len(entry.Results))
	for _, r := range entry.Results {
		out = append(out, r.Clone())
	}
	return Result{Candidates: out, FromCache: hit}
}

// maxJoinAttempts bounds how often a query retries after joining an in-flight
// call whose own run was cancelled.
const maxJoinAttempts = 3

// abandonedError marks a call that never reached the provider because the
// calling run was cancelled. Other runs waiting on the same key retry.
type abandonedError struct {
	err error
}

func (e *abandonedError) Error() string { return e.err.Error() }

func (e *abandonedError) Unwrap() error { return e.err }

// call performs the provider request behind the rate gate and logs it.
func (g *Gateway) call(ctx context.Context, p providers.Provider, req models.LookupRequest) ([]*models.LookupResult, error) {
	metrics.CacheLookups.WithLabelValues("miss").Inc()
	if err := ctx.Err(); err != nil {
		return nil, &abandonedError{err: err}
	}
	if err := g.gates.Wait(ctx, p.Name()); err != nil {
		return nil, &abandonedError{err: err}
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.Lookup(callCtx, req)
	elapsed := time.Since(start)
	metrics.ProviderLatency.WithLabelValues(p.Name()).Observe(elapsed.Seconds())

	entry := &models.APICall{
		RunID:          RunID(ctx),
		Timestamp:      start,
		Service:        p.Name(),
		Method:         string(req.Kind),
		Params:         req.Key(),
		ResponseTimeMs: elapsed.Milliseconds(),
	}
	if resp != nil {
		entry.URL = resp.URL
		entry.ResponseStatus = resp.Status
	}
	if err != nil {
		entry.Error = err.Error()
		g.sink.Record(ctx, entry)
		metrics.ProviderCalls.WithLabelValues(p.Name(), "error").Inc()
		return nil, err
	}

	var results []*models.LookupResult
	if resp != nil {
		results = resp.Results
	}
	for _, r := range results {
		if r.Provider == "" {
			r.Provider = p.Name()
		}
	}
	entry.Success = true
	entry.ResultCount = len(results)
	g.sink.Record(ctx, entry)

	outcome := "found"
	if len(results) == 0 {
		outcome = "not_found"
	}
	metrics.ProviderCalls.WithLabelValues(p.Name(), outcome).Inc()
	return results, nil
}
