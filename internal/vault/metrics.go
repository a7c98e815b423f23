package vault

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type vaultMetrics struct {
	decryptDuration       prometheus.Histogram
	decryptFailureCounter prometheus.Counter
}

var metrics *vaultMetrics

func init() {
	metrics = new(vaultMetrics)

	metrics.decryptDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "psa_sync_vault_decrypt_duration",
		Help: "The amount of time it took to decrypt a connection's credentials",
	})

	metrics.decryptFailureCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "psa_sync_vault_decrypt_failure_count",
		Help: "The number of connection credential decryptions that failed",
	})
}
