// Package metrics owns the Prometheus collectors exported by the portal.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "portal"

// Registry bundles the collectors on a private Prometheus registry so each server
// instance (and each test) gets its own set.
type Registry struct {
	reg  *prometheus.Registry
	HTTP *HTTP
	Auth *Auth
}

// HTTP holds request level collectors.
type HTTP struct {
	Requests     *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	ResponseSize *prometheus.HistogramVec
}

// Auth holds collectors for calls made to the authentication provider.
type Auth struct {
	Attempts *prometheus.CounterVec
	InFlight *prometheus.GaugeVec
	Latency  *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		HTTP: &HTTP{
			Requests: factory.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests.",
			}, []string{"method", "route", "status"}),
			Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method", "route", "status"}),
			ResponseSize: factory.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "Size of HTTP responses in bytes.",
				Buckets:   prometheus.ExponentialBuckets(256, 4, 6),
			}, []string{"method", "route", "status"}),
		},
		Auth: &Auth{
			Attempts: factory.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_attempts_total",
				Help:      "Login and registration attempts by outcome.",
			}, []string{"operation", "outcome"}),
			InFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "auth_in_flight",
				Help:      "Provider calls currently in flight.",
			}, []string{"operation"}),
			Latency: factory.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "auth_latency_seconds",
				Help:      "Latency of provider calls in seconds.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
		},
	}
}

// Handler exposes the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer returns the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Begin marks a provider call as started and returns a function that records its outcome.
func (a *Auth) Begin(operation string) func(outcome string) {
	if a == nil {
		return func(string) {}
	}
	start := time.Now()
	gauge := a.InFlight.WithLabelValues(operation)
	gauge.Inc()
	return func(outcome string) {
		gauge.Dec()
		a.Latency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		a.Attempts.WithLabelValues(operation, outcome).Inc()
	}
}
