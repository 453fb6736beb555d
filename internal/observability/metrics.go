// Package observability exposes Prometheus metrics for the gateway.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	tokensTotal      *prometheus.CounterVec
	rateLimitedTotal prometheus.Counter
}

// New registers the gateway metrics on the given registerer (the default
// registry when nil) and returns them.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "modelgate_requests_total",
			Help: "Total requests handled, by endpoint and response status.",
		}, []string{"endpoint", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "modelgate_request_duration_seconds",
			Help:    "Request latency by endpoint.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		tokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "modelgate_tokens_total",
			Help: "Tokens processed, by endpoint and direction.",
		}, []string{"endpoint", "direction"}),
		rateLimitedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "modelgate_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}),
	}
}

// ObserveRequest records one completed request.
func (m *Metrics) ObserveRequest(endpoint, status string, seconds float64) {
	m.requestsTotal.WithLabelValues(endpoint, status).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(seconds)
}

// ObserveTokens records token throughput for one request.
func (m *Metrics) ObserveTokens(endpoint string, input, output int) {
	if input > 0 {
		m.tokensTotal.WithLabelValues(endpoint, "input").Add(float64(input))
	}
	if output > 0 {
		m.tokensTotal.WithLabelValues(endpoint, "output").Add(float64(output))
	}
}

// ObserveRateLimited counts one rate-limited rejection.
func (m *Metrics) ObserveRateLimited() {
	m.rateLimitedTotal.Inc()
}
