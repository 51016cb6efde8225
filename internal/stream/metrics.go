package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stream_connections",
		Help: "Open websocket event stream connections",
	})

	metricFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_frames_received_total",
		Help: "Inbound client frames by type",
	}, []string{"type"})

	metricDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stream_frames_dropped_total",
		Help: "Outbound frames dropped because a client's buffer was full",
	})
)
