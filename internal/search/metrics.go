package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "search_requests_total",
		Help: "Search requests by outcome (hit, miss, error, invalid)",
	}, []string{"status"})

	metricFetchMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "search_fetch_ms",
		Help:    "Latency of upstream broker fetches in milliseconds",
		Buckets: prometheus.ExponentialBuckets(20, 1.6, 10),
	})
)
