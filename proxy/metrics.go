package proxy

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors. Each Gateway owns its
// own registry so rebuilding the gateway on a config change never trips
// duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	activeStreams   prometheus.Gauge
}

func newMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "infergate_requests_total",
				Help: "Total inbound requests by route and response status",
			},
			[]string{"route", "status"},
		),

		upstreamLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "infergate_upstream_latency_seconds",
				Help:    "Time until the upstream call completed (buffered) or began streaming",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),

		activeStreams: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "infergate_active_streams",
				Help: "Streaming responses currently being relayed",
			},
		),
	}

	m.registry.MustRegister(m.requests, m.upstreamLatency, m.activeStreams)
	return m
}

func (m *Metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeRequest(route string, status int) {
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

func (m *Metrics) observeUpstream(route string, elapsed time.Duration) {
	m.upstreamLatency.WithLabelValues(route).Observe(elapsed.Seconds())
}
