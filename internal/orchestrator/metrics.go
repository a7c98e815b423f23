package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type orchestratorMetrics struct {
	runDuration          *prometheus.HistogramVec
	runStatusCounter     *prometheus.CounterVec
	runSkippedCounter    *prometheus.CounterVec
	stateTransitionCount *prometheus.CounterVec
	entityFailureCounter *prometheus.CounterVec
	activeRunsGauge      prometheus.Gauge
}

var metrics *orchestratorMetrics

func init() {
	metrics = new(orchestratorMetrics)

	metrics.runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "psa_sync_run_duration",
		Help:    "The amount of time a sync run took, by provider",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
	}, []string{"provider"})

	metrics.runStatusCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "psa_sync_run_count",
		Help: "The number of finished sync runs, by provider and status",
	}, []string{"provider", "status"})

	metrics.runSkippedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "psa_sync_run_skipped_count",
		Help: "The number of triggers that did not start a run, by reason",
	}, []string{"reason"})

	metrics.stateTransitionCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "psa_sync_orchestrator_state_transition_count",
		Help: "The number of times a run entered each orchestrator state",
	}, []string{"state"})

	metrics.entityFailureCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "psa_sync_entity_type_failure_count",
		Help: "The number of entity types abandoned during a run, by provider, entity type and error kind",
	}, []string{"provider", "entity_type", "kind"})

	metrics.activeRunsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "psa_sync_active_run_count",
		Help: "The number of sync runs in progress",
	})
}
