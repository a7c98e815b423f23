package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type providerMetrics struct {
	vendorCallDuration       *prometheus.HistogramVec
	vendorCallFailureCounter *prometheus.CounterVec
	tokenRefreshCounter      *prometheus.CounterVec
}

var metrics *providerMetrics

func init() {
	metrics = new(providerMetrics)

	metrics.vendorCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "psa_sync_vendor_call_duration",
		Help: "The amount of time a vendor call took, retries included",
	}, []string{"provider"})

	metrics.vendorCallFailureCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "psa_sync_vendor_call_failure_count",
		Help: "The number of vendor calls that failed after retries",
	}, []string{"provider", "kind"})

	metrics.tokenRefreshCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "psa_sync_vendor_token_refresh_count",
		Help: "The number of vendor access tokens obtained",
	}, []string{"provider"})
}
