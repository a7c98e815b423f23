package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/platform/logger"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	kafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// SyncRequest is the message the CRUD application produces when a user asks
// for a sync of one connection.
type SyncRequest struct {
	ConnectionID string `json:"connection_id" validate:"required,uuid"`
	Force        bool   `json:"force"`
}

// SyncRequestHandler runs the requested sync.  A returned error is treated as
// fatal for the consumer.
type SyncRequestHandler func(ctx context.Context, connID domain.ConnectionID, force bool) error

var errMalformedSyncRequest = errors.New("malformed sync request")

var requestValidator = validator.New()

func ParseSyncRequest(value []byte) (domain.ConnectionID, bool, error) {
	var request SyncRequest
	if err := json.Unmarshal(value, &request); err != nil {
		return domain.ConnectionID{}, false, fmt.Errorf("%w: %v", errMalformedSyncRequest, err)
	}

	if err := requestValidator.Struct(request); err != nil {
		return domain.ConnectionID{}, false, fmt.Errorf("%w: %v", errMalformedSyncRequest, err)
	}

	connID, err := domain.ParseConnectionID(request.ConnectionID)
	if err != nil {
		return domain.ConnectionID{}, false, fmt.Errorf("%w: %v", errMalformedSyncRequest, err)
	}

	return connID, request.Force, nil
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// ConsumeSyncRequests reads sync requests until ctx is cancelled or a fetch,
// handler or commit error occurs.  Malformed messages are logged and
// committed so they are not redelivered.
func ConsumeSyncRequests(ctx context.Context, reader messageReader, handle SyncRequestHandler) error {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Log.Info("Stopped reading sync request messages")
				return nil
			}
			return err
		}

		log := logger.Log.WithFields(logrus.Fields{"partition": msg.Partition, "offset": msg.Offset, "key": string(msg.Key)})
		log.Debug("Read sync request off of kafka topic")

		connID, force, err := ParseSyncRequest(msg.Value)
		if err != nil {
			log.WithFields(logrus.Fields{"error": err}).Warn("Skipping sync request")
			metrics.syncRequestCounter.With(prometheus.Labels{"result": "malformed"}).Inc()
		} else {
			if err := handle(ctx, connID, force); err != nil {
				metrics.syncRequestCounter.With(prometheus.Labels{"result": "failed"}).Inc()
				return err
			}
			metrics.syncRequestCounter.With(prometheus.Labels{"result": "handled"}).Inc()
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}
