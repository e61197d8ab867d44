package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks responses served from the store, by path identifier.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewcache_hits_total",
			Help: "Total number of responses served from cache",
		},
		[]string{"path_id"},
	)

	// CacheMisses tracks cacheable requests that had to run the handler.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewcache_misses_total",
			Help: "Total number of cacheable requests not found in cache",
		},
		[]string{"path_id"},
	)

	// CacheStores tracks responses written to the store.
	CacheStores = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewcache_stores_total",
			Help: "Total number of responses written to cache",
		},
		[]string{"path_id"},
	)

	// CacheBypasses tracks requests or responses the policy refused.
	CacheBypasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewcache_bypass_total",
			Help: "Total number of requests or responses not eligible for caching",
		},
		[]string{"reason"}, // see BypassReason
	)

	// CacheErrors tracks store failures by operation.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewcache_store_errors_total",
			Help: "Total number of cache store errors",
		},
		[]string{"operation"}, // "generation", "get", "set"
	)

	// CurrentGeneration reports the last generation number observed.
	CurrentGeneration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "viewcache_generation",
			Help: "Last observed cache generation number",
		},
	)
)
