package generator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the pipeline's Prometheus collectors, on a registry of their own.
type Metrics struct {
	registry *prometheus.Registry

	cacheLookups     *prometheus.CounterVec
	cacheWriteErrors prometheus.Counter
	generations      *prometheus.CounterVec
	rateLimitRetries prometheus.Counter
	tokens           prometheus.Counter
	duration         prometheus.Histogram
}

// NewMetrics creates and registers the pipeline collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sparkmango",
			Name:      "cache_lookups_total",
			Help:      "Artifact cache lookups by result (hit, miss, error).",
		}, []string{"result"}),
		cacheWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sparkmango",
			Name:      "cache_write_errors_total",
			Help:      "Accepted implementations that could not be stored.",
		}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sparkmango",
			Name:      "generations_total",
			Help:      "Generation attempts by outcome (accepted, rejected, failed, budget).",
		}, []string{"outcome"}),
		rateLimitRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sparkmango",
			Name:      "rate_limit_retries_total",
			Help:      "Completion calls retried after a rate limit.",
		}),
		tokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sparkmango",
			Name:      "tokens_total",
			Help:      "Tokens consumed by successful completions.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sparkmango",
			Name:      "generation_duration_seconds",
			Help:      "Wall time of generation calls, retries included.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
	m.registry.MustRegister(
		m.cacheLookups,
		m.cacheWriteErrors,
		m.generations,
		m.rateLimitRetries,
		m.tokens,
		m.duration,
	)
	return m
}

// Registry exposes the collectors for scraping or export.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RateLimitRetry counts one retry; pass it to llm.WithRetryHook.
func (m *Metrics) RateLimitRetry() { m.rateLimitRetries.Inc() }

// WriteTextfile writes the current values in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
