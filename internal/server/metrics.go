package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics are registered on their own registry so several servers can live
// in one process (tests).
type Metrics struct {
	Registry        *prometheus.Registry
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	CacheLookups    *prometheus.CounterVec
	Sessions        prometheus.Gauge
	Transitions     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tariffsim_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "method", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tariffsim_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"route"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tariffsim_view_cache_lookups_total",
				Help: "View cache lookups by view and result",
			},
			[]string{"view", "result"},
		),
		Sessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tariffsim_sessions_active",
				Help: "Selection sessions currently held in memory",
			},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tariffsim_selection_transitions_total",
				Help: "Selection state transitions by kind",
			},
			[]string{"kind"},
		),
	}

	m.Registry.MustRegister(
		m.Requests,
		m.RequestDuration,
		m.CacheLookups,
		m.Sessions,
		m.Transitions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}
