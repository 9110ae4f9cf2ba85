// Package metrics exposes Prometheus instrumentation for the ingestion
// pipeline and HTTP surface.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	IngestRuns      prometheus.Counter
	IngestFailures  *prometheus.CounterVec
	AnalyzeDuration prometheus.Histogram
	HTTPRequests    *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		IngestRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "splitbill_ingest_runs_total",
			Help: "Receipt ingestion pipeline runs.",
		}),
		IngestFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splitbill_ingest_failures_total",
			Help: "Ingestion failures by pipeline stage.",
		}, []string{"stage"}),
		AnalyzeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "splitbill_analyze_duration_seconds",
			Help:    "Wall time of receipt analysis including polling.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splitbill_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
	}
	registry.MustRegister(m.IngestRuns, m.IngestFailures, m.AnalyzeDuration, m.HTTPRequests)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
