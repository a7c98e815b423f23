package api

import (
	"context"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/msp-docs/psa-sync/internal/config"
	"github.com/msp-docs/psa-sync/internal/platform/logger"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readinessTimeout = 2 * time.Second

// ReadinessCheck reports whether a backing service (usually the database)
// can be reached.
type ReadinessCheck func(ctx context.Context) error

type MonitoringServer struct {
	router *mux.Router
	config *config.Config
	checks []ReadinessCheck
}

func NewMonitoringServer(r *mux.Router, cfg *config.Config, checks ...ReadinessCheck) *MonitoringServer {
	return &MonitoringServer{
		router: r,
		config: cfg,
		checks: checks,
	}
}

func (s *MonitoringServer) Routes() {
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/liveness", s.handleLiveness()).Methods(http.MethodGet)
	s.router.HandleFunc("/readiness", s.handleReadiness()).Methods(http.MethodGet)

	if s.config.Profile {
		logger.Log.Warn("WARNING: Enabling the profiler endpoint!!")
		s.router.PathPrefix("/debug").Handler(http.DefaultServeMux)
	}
}

func (s *MonitoringServer) handleLiveness() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

func (s *MonitoringServer) handleReadiness() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), readinessTimeout)
		defer cancel()

		for _, check := range s.checks {
			if err := check(ctx); err != nil {
				logger.LogError("Readiness check failed", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
	}
}
