package analytics

import (
	"context"
	"errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"sopr-stats-sol/internal/sopr/types"
	"time"
)

var (
	computeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sopr_compute_total",
		Help: "SOPR computations by result.",
	}, []string{"result"})

	computeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sopr_compute_seconds",
		Help:    "Wall time of a SOPR computation.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	holderOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sopr_holder_outcomes_total",
		Help: "Per-holder evaluation outcomes.",
	}, []string{"outcome"})
)

func observeCompute(start time.Time, err error) {
	computeSeconds.Observe(time.Since(start).Seconds())

	label := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrTokenNotFound):
		label = "not_found"
	case errors.Is(err, ErrUpstreamUnavailable):
		label = "upstream_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		label = "cancelled"
	default:
		label = "error"
	}
	computeTotal.WithLabelValues(label).Inc()
}

func outcomeLabel(skip types.SkipReason) string {
	if skip == types.SkipNone {
		return "valid"
	}
	return string(skip)
}
