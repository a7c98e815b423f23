package retry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type retryMetrics struct {
	retryCounter      *prometheus.CounterVec
	attemptsHistogram *prometheus.HistogramVec
}

var metrics *retryMetrics

func init() {
	metrics = new(retryMetrics)

	metrics.retryCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "psa_sync_vendor_call_retry_count",
		Help: "The number of vendor calls that were retried",
	}, []string{"provider", "reason"})

	metrics.attemptsHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "psa_sync_vendor_call_attempts",
		Help:    "The number of attempts a vendor call needed",
		Buckets: []float64{1, 2, 3, 4, 5, 8},
	}, []string{"provider"})
}
