// Package metrics exposes Prometheus collectors for grading activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Grading outcomes.
const (
	OutcomeParsed   = "parsed"
	OutcomeFallback = "fallback"
	OutcomeCached   = "cached"
	OutcomeError    = "error"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	gradings    *prometheus.CounterVec
	llmDuration prometheus.Histogram
	tokens      *prometheus.CounterVec
	httpLatency *prometheus.HistogramVec
}

// New registers collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		gradings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grader",
			Name:      "gradings_total",
			Help:      "Gradings by outcome.",
		}, []string{"outcome"}),
		llmDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "grader",
			Name:      "llm_duration_seconds",
			Help:      "Latency of model chat calls.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 60, 90, 120},
		}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grader",
			Name:      "llm_tokens_total",
			Help:      "Tokens reported by the model.",
		}, []string{"kind"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "grader",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP handler latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(
		m.gradings, m.llmDuration, m.tokens, m.httpLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveGrading counts one grading with the given outcome.
func (m *Metrics) ObserveGrading(outcome string) {
	if m == nil {
		return
	}
	m.gradings.WithLabelValues(outcome).Inc()
}

// ObserveLLM records a chat call.
func (m *Metrics) ObserveLLM(d time.Duration, promptTokens, completionTokens int) {
	if m == nil {
		return
	}
	m.llmDuration.Observe(d.Seconds())
	m.tokens.WithLabelValues("prompt").Add(float64(promptTokens))
	m.tokens.WithLabelValues("completion").Add(float64(completionTokens))
}

// ObserveHTTP records one handled request.
func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpLatency.WithLabelValues(method, route, status).Observe(d.Seconds())
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
