package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	ProxyRequests    *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec
	RegistryLookups  *prometheus.CounterVec
	RegistryLatency  *prometheus.HistogramVec
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	AuditEventsTotal prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		ProxyRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "casegate_proxy_requests_total",
			Help: "Case proxy requests by operation and outcome",
		}, []string{"operation", "outcome"}),
		UpstreamLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "casegate_upstream_latency_seconds",
			Help:    "Latency of forwarded calls to the KYC record service",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		RegistryLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "casegate_registry_lookups_total",
			Help: "Third-party registry lookups by source and outcome",
		}, []string{"source", "outcome"}),
		RegistryLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "casegate_registry_latency_seconds",
			Help:    "Latency of registry aggregate fetches",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "casegate_cache_hits_total",
			Help: "Query cache hits by namespace",
		}, []string{"namespace"}),
		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "casegate_cache_misses_total",
			Help: "Query cache misses by namespace",
		}, []string{"namespace"}),
		AuditEventsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "casegate_audit_events_total",
			Help: "Audit events emitted for case mutations",
		}),
	}
}

// ObserveUpstream records the latency of one forwarded backend call.
func (m *Metrics) ObserveUpstream(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveRegistry records the latency of one registry aggregate fetch.
func (m *Metrics) ObserveRegistry(source string, d time.Duration) {
	if m == nil {
		return
	}
	m.RegistryLatency.WithLabelValues(source).Observe(d.Seconds())
}
