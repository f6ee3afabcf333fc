package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueDepthGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "queue_depth",
			Help:      "Inbound messages waiting for a worker.",
		},
	)

	tasksRejectedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "queue_rejected_total",
			Help:      "Inbound messages rejected by the queue.",
		},
		[]string{"reason"},
	)

	queueWaitHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "relay",
			Name:      "queue_wait_seconds",
			Help:      "Time between enqueue and a worker picking the message up.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
