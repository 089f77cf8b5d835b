package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by namespace
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgg_cache_hits_total",
			Help: "Total number of BGG cache hits",
		},
		[]string{"namespace"}, // "metadata", "search"
	)

	// CacheMisses tracks cache misses by namespace, expired reads included
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgg_cache_misses_total",
			Help: "Total number of BGG cache misses",
		},
		[]string{"namespace"},
	)

	// CacheEvictions tracks entries removed before being read again
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgg_cache_evictions_total",
			Help: "Total number of BGG cache evictions",
		},
		[]string{"namespace", "reason"}, // "expired", "capacity"
	)

	// CacheEntries tracks the current number of entries per namespace
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgg_cache_entries",
			Help: "Current number of entries in the BGG cache",
		},
		[]string{"namespace"},
	)
)
