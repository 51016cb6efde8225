package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Cache hits by namespace and tier (memory, durable)",
	}, []string{"namespace", "tier"})

	metricMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Cache misses by namespace",
	}, []string{"namespace"})

	metricEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_evictions_total",
		Help: "Entries removed from memory by reason (expired, capacity)",
	}, []string{"namespace", "reason"})

	metricStorageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_storage_errors_total",
		Help: "Durable mirror faults by operation",
	}, []string{"namespace", "op"})

	metricFactoryCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_factory_calls_total",
		Help: "GetOrSet factory invocations by outcome",
	}, []string{"namespace", "status"})
)
