package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/msp-docs/psa-sync/internal/config"
	"github.com/msp-docs/psa-sync/internal/controller/api"
	"github.com/msp-docs/psa-sync/internal/platform/logger"
	"github.com/msp-docs/psa-sync/internal/platform/utils"

	"github.com/gorilla/mux"
	"github.com/redhatinsights/platform-go-middlewares/v2/request_id"
)

func startApiServer(listenAddr string) {

	logger.Log.Info("Starting psa-sync API server")

	cfg := config.GetConfig()
	logger.Log.Info("psa-sync configuration:\n", cfg)

	eng, err := buildEngine(cfg)
	if err != nil {
		logger.LogFatalError("Unable to initialize the sync engine", err)
	}
	defer eng.Close()

	apiMux := mux.NewRouter()
	apiMux.Use(request_id.ConfiguredRequestID(logger.RequestIDHeader))

	apiSpecServer := api.NewApiSpecServer(apiMux, cfg.UrlBasePath, cfg.OpenApiSpecFilePath)
	apiSpecServer.Routes()

	monitoringServer := api.NewMonitoringServer(apiMux, cfg, eng.store.Ping)
	monitoringServer.Routes()

	syncServer := api.NewSyncServer(eng.orchestrator, eng.store, apiMux, cfg.UrlBasePath, cfg)
	syncServer.Routes()

	apiSrv := utils.StartHTTPServer(listenAddrOrPort(listenAddr, cfg.ApiPort), "api", apiMux)

	signalChan := make(chan os.Signal, 1)

	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-signalChan
	logger.Log.Info("Received signal to shutdown: ", sig)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HttpShutdownTimeout)
	defer cancel()

	utils.ShutdownHTTPServer(ctx, "api", apiSrv)

	logger.Log.Info("psa-sync API server shutting down")
}
