package monitoring

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's prometheus collectors on a private registry so
// tests can build as many instances as they need.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	PredictionsTotal    *prometheus.CounterVec
	ExplanationFailures prometheus.Counter
	RateLimitRejections prometheus.Counter
	RateLimitRedisError prometheus.Counter
	RateLimitFallback   prometheus.Counter
}

// NewMetrics registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scorewise_http_requests_total",
			Help: "HTTP requests handled, by method, path and status.",
		}, []string{"method", "path", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scorewise_http_request_duration_seconds",
			Help:    "HTTP request latency by path.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
		PredictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scorewise_predictions_total",
			Help: "Predictions served, by derived label.",
		}, []string{"label"}),
		ExplanationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scorewise_explanation_failures_total",
			Help: "Predictions that degraded to a score without attributions.",
		}),
		RateLimitRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scorewise_ratelimit_rejections_total",
			Help: "Requests rejected by the per-IP rate limiter.",
		}),
		RateLimitRedisError: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scorewise_ratelimit_redis_errors_total",
			Help: "Redis rate limit checks that fell back to the in-memory limiter.",
		}),
		RateLimitFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scorewise_ratelimit_fallback_total",
			Help: "Rate limit checks served by the in-memory fallback.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.RequestsTotal,
		m.RequestDuration,
		m.PredictionsTotal,
		m.ExplanationFailures,
		m.RateLimitRejections,
		m.RateLimitRedisError,
		m.RateLimitFallback,
	)
	return m
}

// ObservePrediction counts one served prediction by label.
func (m *Metrics) ObservePrediction(label int) {
	m.PredictionsTotal.WithLabelValues(strconv.Itoa(label)).Inc()
}

// Handler exposes the registry for GET /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
