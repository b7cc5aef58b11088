package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "huddle_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	// Relay metrics
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "huddle_relay_connected_clients",
			Help: "Connections currently admitted to the presence table",
		},
	)

	SignalsRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_relay_signals_routed_total",
			Help: "Signaling messages forwarded to their target",
		},
		[]string{"kind"},
	)

	SignalsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_relay_signals_dropped_total",
			Help: "Signaling messages dropped by the relay",
		},
		[]string{"reason"}, // "protocol", "unknown_target", "unknown_sender", "send_failed", "rate_limited", "too_large"
	)

	HeartbeatTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_relay_heartbeat_timeouts_total",
			Help: "Connections removed for missing heartbeats",
		},
	)

	// Provider metrics
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "huddle_provider_request_duration_seconds",
			Help:    "Room provider request latency",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"op"},
	)

	ICEFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_provider_ice_fallbacks_total",
			Help: "Credential fetches answered from the fallback list",
		},
	)
)
