package api

import (
	"net/http"
	"os"

	"github.com/msp-docs/psa-sync/internal/platform/logger"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type ApiSpecServer struct {
	router       *mux.Router
	urlPrefix    string
	specFileName string
}

func NewApiSpecServer(r *mux.Router, urlPrefix string, f string) *ApiSpecServer {
	return &ApiSpecServer{
		router:       r,
		urlPrefix:    urlPrefix,
		specFileName: f,
	}
}

func (s *ApiSpecServer) Routes() {
	s.router.HandleFunc(s.urlPrefix+"/openapi.json", s.handleApiSpec()).Methods(http.MethodGet)
}

func (s *ApiSpecServer) handleApiSpec() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {
		file, err := os.ReadFile(s.specFileName)
		if err != nil {
			logger.Log.WithFields(logrus.Fields{"spec_file": s.specFileName, "error": err}).Error("Unable to read API spec file")
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(file)
	}
}
