package orgimport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type orgImportMetrics struct {
	importOutcomeCounter *prometheus.CounterVec
}

var metrics *orgImportMetrics

func init() {
	metrics = new(orgImportMetrics)

	metrics.importOutcomeCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "psa_sync_organization_import_outcome_count",
		Help: "The number of companies processed by the organization importer, by outcome",
	}, []string{"outcome"})
}
