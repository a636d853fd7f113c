package requestqueue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sopr_queue_dispatched_total",
		Help: "Requests dispatched by the rate-limited queue.",
	})
	deferralsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sopr_queue_deferrals_total",
		Help: "Times draining paused because the window quota was exhausted.",
	})
	skippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sopr_queue_skipped_total",
		Help: "Requests completed without dispatch because the caller context was done.",
	})
	failuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sopr_queue_task_failures_total",
		Help: "Dispatched requests that completed with an error.",
	})
	pendingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sopr_queue_pending",
		Help: "Requests waiting in the queue.",
	})
	waitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sopr_queue_wait_seconds",
		Help:    "Time from submission to dispatch.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
	})
)
