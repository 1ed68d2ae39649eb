package nip46

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics replaces the teacher's hand-rolled atomic counters (metrics.go)
// with prometheus client_golang gauges/counters, matching the ambient
// observability stack used elsewhere in the example pack.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bunker",
		Name:      "requests_total",
		Help:      "Inbound NIP-46 requests by method and outcome.",
	}, []string{"method", "outcome"})

	rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bunker",
		Name:      "rate_limited_total",
		Help:      "Requests dropped by the rate limiter.",
	})

	replayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bunker",
		Name:      "replayed_requests_total",
		Help:      "Requests rejected as replays of a seen request id.",
	})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bunker",
		Name:      "active_sessions",
		Help:      "Currently connected client sessions.",
	})

	signDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bunker",
		Name:      "sign_event_duration_seconds",
		Help:      "Time spent producing a Schnorr signature for sign_event.",
		Buckets:   prometheus.DefBuckets,
	})
)
