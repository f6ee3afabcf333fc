package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "commands_total",
			Help:      "Relayed commands by outcome.",
		},
		[]string{"command", "status"}, // status: "ok" or an error kind
	)

	commandDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "relay",
			Name:      "command_duration_seconds",
			Help:      "Time to answer a relayed command, upstream calls included.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command"},
	)
)
