// Package metrics holds the Prometheus collectors of the audit service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citeaudit_provider_calls_total",
			Help: "External provider calls by provider and outcome (found, not_found, error).",
		},
		[]string{"provider", "outcome"},
	)

	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "citeaudit_provider_call_duration_seconds",
			Help:    "Latency of external provider calls.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 9),
		},
		[]string{"provider"},
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citeaudit_cache_lookups_total",
			Help: "Lookup cache hits and misses.",
		},
		[]string{"result"},
	)

	CitationsClassified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citeaudit_citations_classified_total",
			Help: "Audited citations by final status.",
		},
		[]string{"status"},
	)

	Audits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citeaudit_audits_total",
			Help: "Audit runs by outcome (completed, cancelled, rejected).",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(ProviderCalls, ProviderLatency, CacheLookups, CitationsClassified, Audits)
}
