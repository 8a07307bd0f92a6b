package gateway

import (
	"context"
	"sync"

	"paper-auditor/models"

	"go.uber.org/zap"
)

// CallSink receives one entry per provider call. Recording is a side effect
// only; implementations must not block the caller for long and must not fail it.
type CallSink interface {
	Record(ctx context.Context, call *models.APICall)
}

type runIDKey struct{}

// WithRunID tags every call made with ctx with the given audit run id.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunID returns the audit run id carried by ctx.
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// LogSink writes call entries to a zap logger.
type LogSink struct {
	Logger *zap.Logger
}

// Record implements CallSink.
func (s LogSink) Record(_ context.Context, call *models.APICall) {
	fields := []zap.Field{
		zap.String("run_id", call.RunID),
		zap.String("service", call.Service),
		zap.String("method", call.Method),
		zap.String("params", call.Params),
		zap.Int("status", call.ResponseStatus),
		zap.Int64("response_time_ms", call.ResponseTimeMs),
		zap.Int("result_count", call.ResultCount),
		zap.Bool("cache_hit", call.CacheHit),
	}
	if call.Error != "" {
		s.Logger.Warn("Provider call failed", append(fields, zap.String("error", call.Error))...)
		return
	}
	s.Logger.Debug("Provider call", fields...)
}

// MemorySink keeps call entries in memory.
type MemorySink struct {
	mu    sync.Mutex
	calls []models.APICall
}

// Record implements CallSink.
func (s *MemorySink) Record(_ context.Context, call *models.APICall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, *call)
}

// Calls returns a copy of the recorded entries, optionally filtered by run id.
func (s *MemorySink) Calls(runID string) []models.APICall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.APICall
	for _, c := range s.calls {
		if runID == "" || c.RunID == runID {
			out = append(out, c)
		}
	}
	return out
}

// MultiSink fans an entry out to several sinks.
type MultiSink []CallSink

// Record implements CallSink.
func (m MultiSink) Record(ctx context.Context, call *models.APICall) {
	for _, s := range m {
		if s != nil {
			s.Record(ctx, call)
		}
	}
}
