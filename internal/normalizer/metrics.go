package normalizer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type normalizerMetrics struct {
	normalizationFailureCounter *prometheus.CounterVec
	vocabularyFallbackCounter   *prometheus.CounterVec
}

var metrics *normalizerMetrics

func init() {
	metrics = new(normalizerMetrics)

	metrics.normalizationFailureCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "psa_sync_normalization_failure_count",
		Help: "The number of vendor records that could not be normalized",
	}, []string{"provider", "entity_type"})

	metrics.vocabularyFallbackCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "psa_sync_normalization_fallback_count",
		Help: "The number of vendor values replaced by a fallback",
	}, []string{"provider", "entity_type", "field"})
}
