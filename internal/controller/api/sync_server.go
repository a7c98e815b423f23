package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/msp-docs/psa-sync/internal/config"
	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/middlewares"
	"github.com/msp-docs/psa-sync/internal/orchestrator"
	"github.com/msp-docs/psa-sync/internal/platform/logger"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/redhatinsights/platform-go-middlewares/v2/request_id"
	"github.com/sirupsen/logrus"
)

const (
	ALREADY_RUNNING_STATUS = "already_running"
	NOT_DUE_STATUS         = "not_due"
)

type SyncTrigger interface {
	Trigger(ctx context.Context, req orchestrator.TriggerRequest) (*domain.SyncRun, error)
}

type RunHistory interface {
	GetConnection(ctx context.Context, id domain.ConnectionID) (domain.Connection, error)
	GetRun(ctx context.Context, id uuid.UUID) (*domain.SyncRun, error)
	ListRuns(ctx context.Context, connID domain.ConnectionID, offset int, limit int) ([]domain.SyncRun, int, error)
}

type SyncServer struct {
	trigger   SyncTrigger
	history   RunHistory
	router    *mux.Router
	urlPrefix string
	config    *config.Config
}

func NewSyncServer(trigger SyncTrigger, history RunHistory, r *mux.Router, urlPrefix string, cfg *config.Config) *SyncServer {
	return &SyncServer{
		trigger:   trigger,
		history:   history,
		router:    r,
		urlPrefix: urlPrefix,
		config:    cfg,
	}
}

func (s *SyncServer) Routes() {
	mmw := &middlewares.MetricsMiddleware{}
	amw := &middlewares.AuthMiddleware{Secrets: s.config.ServiceToServiceCredentials}

	securedSubRouter := s.router.PathPrefix(s.urlPrefix).Subrouter()
	securedSubRouter.Use(logger.AccessLoggerMiddleware,
		mmw.RecordHTTPMetrics,
		amw.Authenticate)

	securedSubRouter.HandleFunc("/connections/{id}/sync", s.handleSyncNow()).Methods(http.MethodPost)
	securedSubRouter.HandleFunc("/connections/{id}/runs", s.handleRunListing()).Methods(http.MethodGet)
	securedSubRouter.HandleFunc("/runs/{run_id}", s.handleRun()).Methods(http.MethodGet)
}

// syncRequest.Force defaults to true; a manual sync only waits for the
// interval when the caller asks for it.
type syncRequest struct {
	Force *bool `json:"force"`
}

func (r syncRequest) force() bool {
	return r.Force == nil || *r.Force
}

type syncStatusResponse struct {
	Status string `json:"status"`
}

func requestLogger(req *http.Request) *logrus.Entry {
	fields := logrus.Fields{"request_id": request_id.GetReqID(req.Context())}
	if principal, ok := middlewares.GetPrincipal(req.Context()); ok {
		fields["caller"] = principal.Describe()
		fields["org_id"] = principal.GetOrgID()
	}
	return logger.Log.WithFields(fields)
}

func (s *SyncServer) handleSyncNow() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		log := requestLogger(req)

		connID, err := domain.ParseConnectionID(mux.Vars(req)["id"])
		if err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "Invalid connection id")
			return
		}
		log = log.WithFields(logrus.Fields{"connection_id": connID.String()})

		body := http.MaxBytesReader(w, req.Body, maxRequestBodySize)

		var syncReq syncRequest
		if err := decodeJSON(body, &syncReq); err != nil {
			writeErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}

		force := syncReq.force()

		log.WithFields(logrus.Fields{"force": force}).Info("Sync Now requested")

		// The run outlives a dropped client connection; the run budget bounds it
		ctx := context.WithoutCancel(req.Context())

		run, err := s.trigger.Trigger(ctx, orchestrator.TriggerRequest{
			ConnectionID: connID,
			Force:        force,
			Source:       domain.TriggerManual,
		})

		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeErrorResponse(w, http.StatusNotFound, "Connection not found")
		case errors.Is(err, domain.ErrConnectionDisabled):
			writeErrorResponse(w, http.StatusConflict, "Connection is disabled")
		case errors.Is(err, orchestrator.ErrNotDue):
			writeJSONResponse(w, http.StatusAccepted, syncStatusResponse{Status: NOT_DUE_STATUS})
		case err != nil:
			log.WithFields(logrus.Fields{"error": err}).Error("Sync Now failed")
			writeErrorResponse(w, http.StatusInternalServerError, "Unable to run sync")
		case run == nil:
			writeJSONResponse(w, http.StatusAccepted, syncStatusResponse{Status: ALREADY_RUNNING_STATUS})
		default:
			writeJSONResponse(w, http.StatusOK, run)
		}
	}
}

func (s *SyncServer) handleRunListing() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		log := requestLogger(req)

		connID, err := domain.ParseConnectionID(mux.Vars(req)["id"])
		if err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "Invalid connection id")
			return
		}

		offset, limit, err := getOffsetAndLimitFromQueryParams(req)
		if err != nil {
			writeErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}

		if _, err := s.history.GetConnection(req.Context(), connID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeErrorResponse(w, http.StatusNotFound, "Connection not found")
				return
			}
			log.WithFields(logrus.Fields{"error": err}).Error("Unable to look up connection")
			writeErrorResponse(w, http.StatusInternalServerError, "Unable to list runs")
			return
		}

		runs, total, err := s.history.ListRuns(req.Context(), connID, offset, limit)
		if err != nil {
			log.WithFields(logrus.Fields{"error": err, "connection_id": connID.String()}).Error("Unable to list runs")
			writeErrorResponse(w, http.StatusInternalServerError, "Unable to list runs")
			return
		}

		if runs == nil {
			runs = []domain.SyncRun{}
		}

		writeJSONResponse(w, http.StatusOK, buildPaginatedResponse(req.URL, offset, limit, total, runs))
	}
}

func (s *SyncServer) handleRun() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		runID, err := uuid.Parse(mux.Vars(req)["run_id"])
		if err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "Invalid run id")
			return
		}

		run, err := s.history.GetRun(req.Context(), runID)
		if errors.Is(err, domain.ErrNotFound) {
			writeErrorResponse(w, http.StatusNotFound, "Run not found")
			return
		} else if err != nil {
			requestLogger(req).WithFields(logrus.Fields{"error": err, "run_id": runID.String()}).Error("Unable to get run")
			writeErrorResponse(w, http.StatusInternalServerError, "Unable to get run")
			return
		}

		writeJSONResponse(w, http.StatusOK, run)
	}
}
