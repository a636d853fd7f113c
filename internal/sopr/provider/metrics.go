package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sopr_provider_rate_limited_total",
		Help: "429 responses honoured with Retry-After, by upstream host.",
	}, []string{"host"})

	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sopr_provider_cache_hits_total",
		Help: "Provider cache hits by cache name.",
	}, []string{"cache"})
)
