package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type reconcileMetrics struct {
	reconcileDuration       *prometheus.HistogramVec
	reconcileOutcomeCounter *prometheus.CounterVec
}

var metrics *reconcileMetrics

func init() {
	metrics = new(reconcileMetrics)

	metrics.reconcileDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "psa_sync_reconcile_record_duration",
		Help: "The amount of time it took to reconcile one record",
	}, []string{"entity_type"})

	metrics.reconcileOutcomeCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "psa_sync_reconcile_outcome_count",
		Help: "The number of reconciled records by outcome",
	}, []string{"entity_type", "outcome"})
}
