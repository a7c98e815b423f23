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
	"github.com/msp-docs/psa-sync/internal/scheduler"

	"github.com/gorilla/mux"
)

func startSyncScheduler(listenAddr string) {

	logger.Log.Info("Starting psa-sync scheduler")

	cfg := config.GetConfig()
	logger.Log.Info("psa-sync configuration:\n", cfg)

	eng, err := buildEngine(cfg)
	if err != nil {
		logger.LogFatalError("Unable to initialize the sync engine", err)
	}
	defer eng.Close()

	syncScheduler := scheduler.New(cfg, eng.store, eng.orchestrator)

	shutdownCtx, shutdownCtxCancel := context.WithCancel(context.Background())
	schedulerStopped := make(chan struct{})

	go func() {
		defer close(schedulerStopped)
		syncScheduler.Run(shutdownCtx)
	}()

	apiMux := mux.NewRouter()

	monitoringServer := api.NewMonitoringServer(apiMux, cfg, eng.store.Ping)
	monitoringServer.Routes()

	apiSrv := utils.StartHTTPServer(listenAddrOrPort(listenAddr, cfg.MetricsPort), "management", apiMux)

	signalChan := make(chan os.Signal, 1)

	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-signalChan
	logger.Log.Info("Received signal to shutdown: ", sig)

	// Runs in progress stop at their next page boundary
	shutdownCtxCancel()
	<-schedulerStopped

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HttpShutdownTimeout)
	defer cancel()

	utils.ShutdownHTTPServer(ctx, "management", apiSrv)

	logger.Log.Info("psa-sync scheduler shutting down")
}
