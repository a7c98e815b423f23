package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/msp-docs/psa-sync/internal/config"
	"github.com/msp-docs/psa-sync/internal/controller/api"
	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/events"
	"github.com/msp-docs/psa-sync/internal/orchestrator"
	"github.com/msp-docs/psa-sync/internal/platform/logger"
	"github.com/msp-docs/psa-sync/internal/platform/queue"
	"github.com/msp-docs/psa-sync/internal/platform/utils"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

func startSyncRequestConsumer(listenAddr string) {

	logger.Log.Info("Starting psa-sync Kafka sync request consumer")

	cfg := config.GetConfig()
	logger.Log.Info("psa-sync configuration:\n", cfg)

	eng, err := buildEngine(cfg)
	if err != nil {
		logger.LogFatalError("Unable to initialize the sync engine", err)
	}
	defer eng.Close()

	kafkaReader, err := queue.StartConsumer(&queue.ConsumerConfig{
		Brokers:    cfg.KafkaBrokers,
		Topic:      cfg.KafkaSyncRequestsTopic,
		GroupID:    cfg.KafkaSyncRequestsGroupID,
		SaslConfig: queue.SaslConfigFromSettings(cfg.KafkaSASLMechanism, cfg.KafkaUsername, cfg.KafkaPassword, cfg.KafkaCA),
	})
	if err != nil {
		logger.LogFatalError("Failed to start Kafka consumer", err)
	}

	shutdownCtx, shutdownCtxCancel := context.WithCancel(context.Background())
	// If the kafka consumer runs into a fatal error, notify the
	// main thread so that it can shutdown the process
	fatalProcessingError := make(chan struct{})
	consumerStopped := make(chan struct{})

	go func() {
		defer close(consumerStopped)

		err := events.ConsumeSyncRequests(shutdownCtx, kafkaReader, handleSyncRequest(eng.orchestrator))
		if err != nil {
			logger.LogError("Error consuming sync requests", err)
			close(fatalProcessingError)
		}

		if err := kafkaReader.Close(); err != nil {
			logger.LogError("Failed to close kafka reader", err)
		}
	}()

	apiMux := mux.NewRouter()

	monitoringServer := api.NewMonitoringServer(apiMux, cfg, eng.store.Ping)
	monitoringServer.Routes()

	apiSrv := utils.StartHTTPServer(listenAddrOrPort(listenAddr, cfg.MetricsPort), "management", apiMux)

	signalChan := make(chan os.Signal, 1)

	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		logger.Log.Info("Received signal to shutdown: ", sig)
	case <-fatalProcessingError:
		logger.Log.Info("Received a fatal processing error...shutting down!")
	}

	shutdownCtxCancel() // Notify the consumer to shutdown
	<-consumerStopped

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HttpShutdownTimeout)
	defer cancel()

	utils.ShutdownHTTPServer(ctx, "management", apiSrv)

	logger.Log.Info("psa-sync sync request consumer shutting down")
}

// handleSyncRequest runs the requested sync.  Requests that cannot start a
// run are logged and dropped; only store failures stop the consumer.
func handleSyncRequest(trigger api.SyncTrigger) events.SyncRequestHandler {
	return func(ctx context.Context, connID domain.ConnectionID, force bool) error {

		log := logger.Log.WithFields(logrus.Fields{"connection_id": connID.String(), "force": force})

		run, err := trigger.Trigger(ctx, orchestrator.TriggerRequest{
			ConnectionID: connID,
			Force:        force,
			Source:       domain.TriggerEvent,
		})

		switch {
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrConnectionDisabled), errors.Is(err, orchestrator.ErrNotDue):
			log.WithFields(logrus.Fields{"reason": err}).Info("Sync request did not start a run")
			return nil
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return err
		case run == nil:
			log.Info("Sync already running for connection; dropping sync request")
			return nil
		default:
			log.WithFields(logrus.Fields{"run_id": run.ID.String(), "status": run.Status}).Info("Requested sync finished")
			return nil
		}
	}
}
