package queue

import (
	"github.com/msp-docs/psa-sync/internal/platform/logger"

	kafka "github.com/segmentio/kafka-go"
)

func StartConsumer(cfg *ConsumerConfig) (*kafka.Reader, error) {
	logger.Log.Info("Starting Kafka Message consumer...")
	logger.Log.Info("Kafka consumer configuration: ", cfg.Brokers, " ", cfg.Topic, " ", cfg.GroupID)

	readerConfig := kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		StartOffset: cfg.ConsumerOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	}

	if readerConfig.StartOffset == 0 {
		readerConfig.StartOffset = kafka.LastOffset
	}

	if cfg.SaslConfig != nil {
		dialer, err := saslDialer(cfg.SaslConfig)
		if err != nil {
			logger.LogError("Failed to create a new Kafka dialer", err)
			return nil, err
		}
		readerConfig.Dialer = dialer
	}

	if err := readerConfig.Validate(); err != nil {
		return nil, err
	}

	logger.Log.Info("Connected to Kafka")

	return kafka.NewReader(readerConfig), nil
}
