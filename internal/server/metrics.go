package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	upstreamSeconds prometheus.Histogram
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "njt",
			Name:      "requests_total",
			Help:      "API requests by endpoint and response code.",
		}, []string{"endpoint", "code"}),
		upstreamSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "njt",
			Name:      "upstream_fetch_seconds",
			Help:      "Latency of federation page fetches, retries included.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(m.requests, m.upstreamSeconds)
	return m
}
