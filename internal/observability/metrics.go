// Package observability exposes Prometheus metrics for the Discogs client
// and the importer. Counters are wired through the hook types those
// packages expose, keeping the metrics dependency out of the hot paths.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"discosync/internal/core"
	"discosync/internal/discogs"
	"discosync/internal/importer"
)

// Metrics holds the registered collectors.
type Metrics struct {
	upstreamRequests *prometheus.CounterVec
	upstreamErrors   *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
	rateLimited      *prometheus.CounterVec
	imports          *prometheus.CounterVec
}

// New registers the collectors on the given registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discosync_upstream_requests_total",
			Help: "Discogs API requests that reached the network, by operation.",
		}, []string{"operation"}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discosync_upstream_errors_total",
			Help: "Discogs API failures by operation and error kind.",
		}, []string{"operation", "kind"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discosync_cache_hits_total",
			Help: "Responses served from cache, by operation.",
		}, []string{"operation"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discosync_rate_limited_total",
			Help: "Calls blocked or delayed by the rate limiter, by operation.",
		}, []string{"operation"}),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discosync_imports_total",
			Help: "Import outcomes: created, updated, skipped, failed.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.upstreamRequests, m.upstreamErrors, m.cacheHits, m.rateLimited, m.imports)
	return m
}

// ClientHooks adapts the metrics to the Discogs client hook points.
func (m *Metrics) ClientHooks() discogs.Hooks {
	return discogs.Hooks{
		OnRequest: func(operation string) {
			m.upstreamRequests.WithLabelValues(operation).Inc()
		},
		OnCacheHit: func(operation string) {
			m.cacheHits.WithLabelValues(operation).Inc()
		},
		OnRateLimited: func(operation string) {
			m.rateLimited.WithLabelValues(operation).Inc()
		},
		OnError: func(operation string, kind core.ErrorKind) {
			m.upstreamErrors.WithLabelValues(operation, string(kind)).Inc()
		},
	}
}

// ImporterHooks adapts the metrics to the importer hook points.
func (m *Metrics) ImporterHooks() importer.Hooks {
	return importer.Hooks{
		OnImport: func(outcome string) {
			m.imports.WithLabelValues(outcome).Inc()
		},
	}
}
