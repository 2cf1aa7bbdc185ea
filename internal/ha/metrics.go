package ha

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records request counts and latencies per client operation
type Metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hassrest_requests_total",
				Help: "Home Assistant REST requests by operation and response code.",
			},
			[]string{"operation", "code"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hassrest_request_duration_seconds",
				Help:    "Home Assistant REST request latency by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.requests, m.latency)
	}
	return m
}

// observe records one round trip. statusCode is 0 when no response arrived.
func (m *Metrics) observe(op string, statusCode int, elapsed time.Duration) {
	if m == nil {
		return
	}

	code := "error"
	if statusCode > 0 {
		code = strconv.Itoa(statusCode)
	}
	m.requests.WithLabelValues(op, code).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}
