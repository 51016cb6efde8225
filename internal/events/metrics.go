package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_emitted_total",
		Help: "Events emitted on the bus by action",
	}, []string{"action"})

	metricDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_delivered_total",
		Help: "Handler invocations that returned normally",
	}, []string{"action"})

	metricHandlerPanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_handler_panics_total",
		Help: "Handler invocations that panicked and were recovered",
	}, []string{"action"})
)
