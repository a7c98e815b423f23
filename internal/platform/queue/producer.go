package queue

import (
	"github.com/msp-docs/psa-sync/internal/platform/logger"

	kafka "github.com/segmentio/kafka-go"
)

func StartProducer(cfg *ProducerConfig) (*kafka.Writer, error) {
	logger.Log.Info("Starting a new Kafka producer..")
	logger.Log.Info("Kafka producer configuration: ", cfg.Brokers, " ", cfg.Topic)

	writer := &kafka.Writer{
		Addr:       kafka.TCP(cfg.Brokers...),
		Topic:      cfg.Topic,
		BatchSize:  cfg.BatchSize,
		BatchBytes: int64(cfg.BatchBytes),
	}

	if cfg.SaslConfig != nil {
		transport, err := saslTransport(cfg.SaslConfig)
		if err != nil {
			logger.LogError("Failed to create a new Kafka transport", err)
			return nil, err
		}
		writer.Transport = transport
	}

	if cfg.Balancer == "hash" {
		writer.Balancer = &kafka.Hash{}
	}

	logger.Log.Info("Producing messages to topic: ", cfg.Topic)

	return writer, nil
}
