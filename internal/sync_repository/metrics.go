package sync_repository

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type syncRepositoryMetrics struct {
	sqlLookupConnectionDuration   prometheus.Histogram
	sqlListConnectionsDuration    prometheus.Histogram
	sqlUpdateSyncStateDuration    prometheus.Histogram
	sqlRecordRunDuration          prometheus.Histogram
	sqlLookupRunsDuration         prometheus.Histogram
	sqlClaimMappingDuration       prometheus.Histogram
	sqlOrganizationQueryDuration  prometheus.Histogram
	advisoryLockContentionCounter prometheus.Counter
}

var metrics *syncRepositoryMetrics

func init() {
	metrics = new(syncRepositoryMetrics)

	metrics.sqlLookupConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "psa_sync_sql_lookup_connection_duration",
		Help: "The amount of time it took to lookup a connection",
	})

	metrics.sqlListConnectionsDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "psa_sync_sql_list_connections_duration",
		Help: "The amount of time it took to list all connections",
	})

	metrics.sqlUpdateSyncStateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "psa_sync_sql_update_sync_state_duration",
		Help: "The amount of time it took to record the sync state of a connection",
	})

	metrics.sqlRecordRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "psa_sync_sql_record_run_duration",
		Help: "The amount of time it took to create or finish a sync run",
	})

	metrics.sqlLookupRunsDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "psa_sync_sql_lookup_runs_duration",
		Help: "The amount of time it took to lookup sync runs",
	})

	metrics.sqlClaimMappingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "psa_sync_sql_claim_mapping_duration",
		Help: "The amount of time it took to claim an identity mapping",
	})

	metrics.sqlOrganizationQueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "psa_sync_sql_organization_query_duration",
		Help: "The amount of time organization import queries took",
	})

	metrics.advisoryLockContentionCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "psa_sync_advisory_lock_contention_count",
		Help: "The number of run triggers skipped because the connection lock was held",
	})
}
