package gateway

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateGates enforces a minimum delay between calls per provider. Callers
// over budget wait in line; nothing is dropped.
type RateGates struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	delays   map[string]time.Duration
	fallback time.Duration
}

// NewRateGates creates gates from per-provider delays. Providers without an
// entry use fallback.
func NewRateGates(delays map[string]time.Duration, fallback time.Duration) *RateGates {
	d := make(map[string]time.Duration, len(delays))
	for k, v := range delays {
		d[k] = v
	}
	return &RateGates{
		limiters: make(map[string]*rate.Limiter),
		delays:   d,
		fallback: fallback,
	}
}

// Delay returns the configured minimum delay for a provider.
func (g *RateGates) Delay(provider string) time.Duration {
	if d, ok := g.delays[provider]; ok {
		return d
	}
	return g.fallback
}

// Wait blocks until provider may be called again, or ctx is done.
func (g *RateGates) Wait(ctx context.Context, provider string) error {
	return g.limiter(provider).Wait(ctx)
}

func (g *RateGates) limiter(provider string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.limiters[provider]
	if !ok {
		limit := rate.Inf
		if d := g.Delay(provider); d > 0 {
			limit = rate.Every(d)
		}
		l = rate.NewLimiter(limit, 1)
		g.limiters[provider] = l
	}
	return l
}
