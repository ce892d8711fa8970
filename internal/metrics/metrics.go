package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackrelay_events_received_total",
		Help: "Total number of tracking events accepted from clients, labelled by category.",
	}, []string{"category"})

	EventsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackrelay_events_enqueued_total",
		Help: "Total number of events placed on the dispatch queue.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackrelay_events_dropped_total",
		Help: "Total number of events rejected due to a full queue.",
	})

	BackendCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackrelay_backend_calls_total",
		Help: "Total number of calls into analytics backends, labelled by backend, call and status.",
	}, []string{"backend", "call", "status"})

	RateFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackrelay_rate_fetches_total",
		Help: "Total number of SOL/USD rate fetches, labelled by status.",
	}, []string{"status"})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trackrelay_sessions_active",
		Help: "Number of tracking sessions currently held in memory.",
	})

	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trackrelay_dispatch_duration_ms",
		Help:    "Time to fan one event out to every enabled backend, in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trackrelay_queue_utilization_ratio",
		Help: "Current dispatch queue utilization (0–1).",
	})
)
