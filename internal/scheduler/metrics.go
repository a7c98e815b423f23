package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type schedulerMetrics struct {
	enqueuedCounter  prometheus.Counter
	queueFullCounter prometheus.Counter
	queueDepthGauge  prometheus.Gauge
	triggerCounter   *prometheus.CounterVec
}

var metrics *schedulerMetrics

func init() {
	metrics = new(schedulerMetrics)

	metrics.enqueuedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "psa_sync_scheduler_enqueued_count",
		Help: "The number of connections queued for a scheduled sync",
	})

	metrics.queueFullCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "psa_sync_scheduler_queue_full_count",
		Help: "The number of due connections left for the next tick because the queue was full",
	})

	metrics.queueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "psa_sync_scheduler_queue_depth",
		Help: "The number of connections waiting for a sync worker",
	})

	metrics.triggerCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "psa_sync_scheduler_trigger_count",
		Help: "The number of scheduled triggers, by result",
	}, []string{"result"})
}
