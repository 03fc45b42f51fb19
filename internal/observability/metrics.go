// Package observability provides the engine's fire-and-forget metrics sink.
// The engine calls the sink but never blocks on it; a sink outage must not
// fail a query, so every implementation here is non-blocking and
// failure-tolerant.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSink receives counters and latency observations from the engine.
type MetricsSink interface {
	IncRequests(table, strategy string)
	IncErrors(table, kind string)
	IncCacheHit(level string)
	IncCacheMiss()
	IncPromotion()
	IncBreakerTransition(key, from, to string)
	ObserveStageLatency(stage string, elapsed time.Duration)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) IncRequests(string, string)                 {}
func (NopSink) IncErrors(string, string)                   {}
func (NopSink) IncCacheHit(string)                         {}
func (NopSink) IncCacheMiss()                              {}
func (NopSink) IncPromotion()                              {}
func (NopSink) IncBreakerTransition(string, string, string) {}
func (NopSink) ObserveStageLatency(string, time.Duration)  {}

// Collector is the Prometheus-backed sink. It registers against its own
// registry; the host process decides whether and where to expose it.
type Collector struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	errors       *prometheus.CounterVec
	cacheHits    *prometheus.CounterVec
	cacheMisses  prometheus.Counter
	promotions   prometheus.Counter
	transitions  *prometheus.CounterVec
	stageLatency *prometheus.HistogramVec
}

// NewCollector creates a Prometheus sink under the given namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total requests executed, by table and strategy",
		}, []string{"table", "strategy"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total failed requests, by table and error kind",
		}, []string{"table", "kind"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Cache hits, by serving tier",
		}, []string{"level"}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Requests no cache tier could serve",
		}),
		promotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_promotions_total",
			Help:      "Remote hits copied into the local tier",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions",
		}, []string{"key", "from", "to"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Per-stage execution latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}

	registry.MustRegister(
		c.requests, c.errors, c.cacheHits, c.cacheMisses,
		c.promotions, c.transitions, c.stageLatency,
	)
	return c
}

// Registry exposes the private registry for the host to mount.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) IncRequests(table, strategy string) {
	c.requests.WithLabelValues(table, strategy).Inc()
}

func (c *Collector) IncErrors(table, kind string) {
	c.errors.WithLabelValues(table, kind).Inc()
}

func (c *Collector) IncCacheHit(level string) {
	c.cacheHits.WithLabelValues(level).Inc()
}

func (c *Collector) IncCacheMiss() {
	c.cacheMisses.Inc()
}

func (c *Collector) IncPromotion() {
	c.promotions.Inc()
}

func (c *Collector) IncBreakerTransition(key, from, to string) {
	c.transitions.WithLabelValues(key, from, to).Inc()
}

func (c *Collector) ObserveStageLatency(stage string, elapsed time.Duration) {
	c.stageLatency.WithLabelValues(stage).Observe(elapsed.Seconds())
}
