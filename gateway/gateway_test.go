package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"paper-auditor/models"
	"paper-auditor/providers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name    string
	kinds   []models.LookupKind
	calls   atomic.Int32
	results []*models.LookupResult
	err     error
	delay   time.Duration

	mu       sync.Mutex
	callTime []time.Time
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Supports(kind models.LookupKind) bool {
	for _, k := range f.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (f *fakeProvider) Lookup(ctx context.Context, req models.LookupRequest) (*providers.Response, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.callTime = append(f.callTime, time.Now())
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return &providers.Response{URL: "https://example.test/" + req.Key(), Status: 500}, f.err
	}
	var out []*models.LookupResult
	for _, r := range f.results {
		out = append(out, r.Clone())
	}
	return &providers.Response{URL: "https://example.test/" + req.Key(), Status: 200, Results: out}, nil
}

func doiReq(doi string) models.LookupRequest {
	return models.LookupRequest{Kind: models.KindDOI, Value: doi}
}

func TestQueryCachesResultsAndReturnsCopies(t *testing.T) {
	p := &fakeProvider{name: "crossref", kinds: []models.LookupKind{models.KindDOI},
		results: []*models.LookupResult{{Title: "Nanometre-scale thermometry in a living cell"}}}
	sink := &MemorySink{}
	g := New([]providers.Provider{p}, Options{Sink: sink})

	first := g.Query(context.Background(), "crossref", doiReq("10.1038/nature12373"))
	require.True(t, first.Found())
	assert.False(t, first.FromCache)
	assert.Equal(t, "crossref", first.Candidates[0].Provider)
	first.Candidates[0].Title = "mutated"

	second := g.Query(context.Background(), "crossref", doiReq("10.1038/NATURE12373"))
	require.True(t, second.Found())
	assert.True(t, second.FromCache)
	assert.Equal(t, "Nanometre-scale thermometry in a living cell", second.Candidates[0].Title)
	assert.EqualValues(t, 1, p.calls.Load())

	calls := sink.Calls("")
	require.Len(t, calls, 2)
	assert.False(t, calls[0].CacheHit)
	assert.True(t, calls[1].CacheHit)
}

func TestNotFoundIsCachedUntilExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	p := &fakeProvider{name: "arxiv", kinds: []models.LookupKind{models.KindArXiv}}
	g := New([]providers.Provider{p}, Options{Cache: NewCache(time.Hour, 10, WithClock(clock))})
	req := models.LookupRequest{Kind: models.KindArXiv, Value: "1512.03385"}

	res := g.Query(context.Background(), "arxiv", req)
	assert.False(t, res.Found())
	assert.NoError(t, res.Err)

	now = now.Add(59 * time.Minute)
	res = g.Query(context.Background(), "arxiv", req)
	assert.True(t, res.FromCache)
	assert.EqualValues(t, 1, p.calls.Load())

	now = now.Add(2 * time.Minute)
	g.Query(context.Background(), "arxiv", req)
	assert.EqualValues(t, 2, p.calls.Load())
}

func TestErrorsAreLoggedNotCached(t *testing.T) {
	p := &fakeProvider{name: "pubmed", kinds: []models.LookupKind{models.KindPMID}, err: errors.New("boom")}
	sink := &MemorySink{}
	g := New([]providers.Provider{p}, Options{Sink: sink})
	ctx := WithRunID(context.Background(), "run-1")
	req := models.LookupRequest{Kind: models.KindPMID, Value: "123"}

	res := g.Query(ctx, "pubmed", req)
	assert.False(t, res.Found())
	assert.EqualError(t, res.Err, "boom")

	g.Query(ctx, "pubmed", req)
	assert.EqualValues(t, 2, p.calls.Load())

	calls := sink.Calls("run-1")
	require.Len(t, calls, 2)
	assert.False(t, calls[0].Success)
	assert.Equal(t, "boom", calls[0].Error)
	assert.Equal(t, 500, calls[0].ResponseStatus)
	assert.Empty(t, sink.Calls("other-run"))
}

func TestUnsupportedKindMakesNoCall(t *testing.T) {
	p := &fakeProvider{name: "unpaywall", kinds: []models.LookupKind{models.KindDOI}}
	g := New([]providers.Provider{p}, Options{})

	res := g.Query(context.Background(), "unpaywall", models.LookupRequest{Kind: models.KindTitle, Title: "x"})
	assert.False(t, res.Found())
	assert.NoError(t, res.Err)
	assert.Zero(t, p.calls.Load())

	res = g.Query(context.Background(), "nope", doiReq("10.1/x"))
	assert.Error(t, res.Err)
}

func TestProvidersKeepsConfigurationOrder(t *testing.T) {
	a := &fakeProvider{name: "crossref", kinds: []models.LookupKind{models.KindDOI, models.KindTitle}}
	b := &fakeProvider{name: "arxiv", kinds: []models.LookupKind{models.KindArXiv, models.KindTitle}}
	c := &fakeProvider{name: "unpaywall", kinds: []models.LookupKind{models.KindDOI}}
	g := New([]providers.Provider{a, b, c}, Options{})

	assert.Equal(t, []string{"crossref", "arxiv"}, g.Providers(models.KindTitle))
	assert.Equal(t, []string{"crossref", "unpaywall"}, g.Providers(models.KindDOI))
	assert.Empty(t, g.Providers(models.KindPMID))
}

func TestRateGateSpacesCalls(t *testing.T) {
	delay := 60 * time.Millisecond
	p := &fakeProvider{name: "arxiv", kinds: []models.LookupKind{models.KindArXiv}}
	g := New([]providers.Provider{p}, Options{Gates: NewRateGates(map[string]time.Duration{"arxiv": delay}, 0)})

	for _, id := range []string{"1", "2", "3"} {
		g.Query(context.Background(), "arxiv", models.LookupRequest{Kind: models.KindArXiv, Value: id})
	}

	require.Len(t, p.callTime, 3)
	for i := 1; i < len(p.callTime); i++ {
		assert.GreaterOrEqual(t, p.callTime[i].Sub(p.callTime[i-1]), delay-time.Millisecond)
	}
}

func TestCancelledContextStartsNoCalls(t *testing.T) {
	p := &fakeProvider{name: "crossref", kinds: []models.LookupKind{models.KindDOI}}
	g := New([]providers.Provider{p}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := g.Query(ctx, "crossref", doiReq("10.1/x"))
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Zero(t, p.calls.Load())
}

func TestInFlightCallSurvivesCancellation(t *testing.T) {
	p := &fakeProvider{name: "crossref", kinds: []models.LookupKind{models.KindDOI},
		delay: 50 * time.Millisecond, results: []*models.LookupResult{{Title: "T"}}}
	g := New([]providers.Provider{p}, Options{Timeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan Result, 1)
	go func() { done <- g.Query(ctx, "crossref", doiReq("10.1/x")) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	res := <-done
	assert.NoError(t, res.Err)
	assert.True(t, res.Found())
}

func TestConcurrentQueriesCollapse(t *testing.T) {
	p := &fakeProvider{name: "crossref", kinds: []models.LookupKind{models.KindDOI},
		delay: 30 * time.Millisecond, results: []*models.LookupResult{{Title: "T"}}}
	g := New([]providers.Provider{p}, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, g.Query(context.Background(), "crossref", doiReq("10.1/x")).Found())
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, p.calls.Load())
}

func TestSharedCallIsAttributedPerRun(t *testing.T) {
	p := &fakeProvider{name: "crossref", kinds: []models.LookupKind{models.KindDOI},
		delay: 50 * time.Millisecond, results: []*models.LookupResult{{Title: "T"}}}
	sink := &MemorySink{}
	g := New([]providers.Provider{p}, Options{Sink: sink})

	done := make(chan Result, 2)
	go func() { done <- g.Query(WithRunID(context.Background(), "run-a"), "crossref", doiReq("10.1/x")) }()
	time.Sleep(10 * time.Millisecond)
	go func() { done <- g.Query(WithRunID(context.Background(), "run-b"), "crossref", doiReq("10.1/x")) }()

	for range 2 {
		assert.True(t, (<-done).Found())
	}
	assert.EqualValues(t, 1, p.calls.Load())

	first := sink.Calls("run-a")
	require.Len(t, first, 1)
	assert.False(t, first[0].CacheHit)
	second := sink.Calls("run-b")
	require.Len(t, second, 1)
	assert.True(t, second[0].CacheHit)
	assert.True(t, second[0].Success)
	assert.Equal(t, 1, second[0].ResultCount)
}

func TestCancelledRunDoesNotFailSharedQuery(t *testing.T) {
	p := &fakeProvider{name: "crossref", kinds: []models.LookupKind{models.KindDOI},
		results: []*models.LookupResult{{Title: "T"}}}
	sink := &MemorySink{}
	gates := NewRateGates(map[string]time.Duration{"crossref": 200 * time.Millisecond}, 0)
	g := New([]providers.Provider{p}, Options{Sink: sink, Gates: gates})

	// Takes the gate token so the next call has to wait.
	require.True(t, g.Query(context.Background(), "crossref", doiReq("10.1/warmup")).Found())

	ctxA, cancelA := context.WithCancel(WithRunID(context.Background(), "run-a"))
	defer cancelA()
	resA := make(chan Result, 1)
	resB := make(chan Result, 1)
	go func() { resA <- g.Query(ctxA, "crossref", doiReq("10.1/x")) }()
	time.Sleep(20 * time.Millisecond)
	go func() { resB <- g.Query(WithRunID(context.Background(), "run-b"), "crossref", doiReq("10.1/x")) }()
	time.Sleep(20 * time.Millisecond)
	cancelA()

	a := <-resA
	assert.ErrorIs(t, a.Err, context.Canceled)
	b := <-resB
	require.NoError(t, b.Err)
	assert.True(t, b.Found())
	assert.EqualValues(t, 2, p.calls.Load())

	assert.Empty(t, sink.Calls("run-a"))
	calls := sink.Calls("run-b")
	require.Len(t, calls, 1)
	assert.False(t, calls[0].CacheHit)
	assert.True(t, calls[0].Success)
}

func TestCacheCleanupAndBound(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCache(time.Minute, 2, WithClock(func() time.Time { return now }))
	c.Set("a", nil)
	now = now.Add(10 * time.Second)
	c.Set("b", nil)
	c.Set("c", nil)
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, c.Cleanup())
	assert.Zero(t, c.Len())
}
