package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics provides observability for the file server's request and
// connection lifecycle.
//
// Implementations collect per-status request counts and latency, connection
// churn, and rate-limit rejections. The interface is optional - the server
// accepts a no-op implementation with zero overhead.
type HTTPMetrics interface {
	// RecordRequest records a completed request with its response status
	// and processing duration.
	RecordRequest(status int, duration time.Duration)

	// RecordRateLimited increments the admission-rejection counter.
	RecordRateLimited()

	// SetActiveConnections updates the current connection gauge.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the accepted-connection counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the closed-connection counter.
	RecordConnectionClosed()
}

// httpMetrics is the Prometheus implementation of HTTPMetrics.
type httpMetrics struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	rateLimitedTotal    prometheus.Counter
	activeConnections   prometheus.Gauge
	connectionsAccepted prometheus.Counter
	connectionsClosed   prometheus.Counter
}

// NewHTTPMetrics creates a Prometheus-backed HTTPMetrics instance registered
// with the global registry (or the default registerer if InitRegistry was
// not called).
func NewHTTPMetrics() HTTPMetrics {
	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	if registry != nil {
		reg = registry
	}
	auto := promauto.With(reg)

	return &httpMetrics{
		requestsTotal: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fileserver",
			Name:      "requests_total",
			Help:      "Total HTTP requests served, by response status.",
		}, []string{"status"}),
		requestDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fileserver",
			Name:      "request_duration_seconds",
			Help:      "Request processing time in seconds, by response status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		rateLimitedTotal: auto.NewCounter(prometheus.CounterOpts{
			Namespace: "fileserver",
			Name:      "rate_limited_total",
			Help:      "Connections rejected at admission by the rate limiter.",
		}),
		activeConnections: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: "fileserver",
			Name:      "active_connections",
			Help:      "Currently open client connections.",
		}),
		connectionsAccepted: auto.NewCounter(prometheus.CounterOpts{
			Namespace: "fileserver",
			Name:      "connections_accepted_total",
			Help:      "Total accepted client connections.",
		}),
		connectionsClosed: auto.NewCounter(prometheus.CounterOpts{
			Namespace: "fileserver",
			Name:      "connections_closed_total",
			Help:      "Total closed client connections.",
		}),
	}
}

func (m *httpMetrics) RecordRequest(status int, duration time.Duration) {
	label := strconv.Itoa(status)
	m.requestsTotal.WithLabelValues(label).Inc()
	m.requestDuration.WithLabelValues(label).Observe(duration.Seconds())
}

func (m *httpMetrics) RecordRateLimited() {
	m.rateLimitedTotal.Inc()
}

func (m *httpMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *httpMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *httpMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

// noopHTTPMetrics discards all observations.
type noopHTTPMetrics struct{}

// NewNoopHTTPMetrics returns an HTTPMetrics implementation that does
// nothing. Used when metrics collection is disabled.
func NewNoopHTTPMetrics() HTTPMetrics {
	return noopHTTPMetrics{}
}

func (noopHTTPMetrics) RecordRequest(status int, duration time.Duration) {}
func (noopHTTPMetrics) RecordRateLimited()                               {}
func (noopHTTPMetrics) SetActiveConnections(count int32)                 {}
func (noopHTTPMetrics) RecordConnectionAccepted()                        {}
func (noopHTTPMetrics) RecordConnectionClosed()                          {}
