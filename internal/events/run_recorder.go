package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/msp-docs/psa-sync/internal/config"
	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/platform/logger"
	"github.com/msp-docs/psa-sync/internal/platform/queue"

	kafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type EventType string

const (
	SyncRunCompleted EventType = "sync_run_completed"
	SyncError        EventType = "sync_error"

	writeTimeout = 30 * time.Second
)

// RunRecorder publishes the audit trail of a finished run
type RunRecorder interface {
	RecordRun(context.Context, domain.Connection, *domain.SyncRun) error
}

type SyncRunEvent struct {
	Type         EventType                                 `json:"type"`
	RunID        string                                    `json:"run_id"`
	ConnectionID string                                    `json:"connection_id"`
	Provider     domain.ProviderType                       `json:"provider"`
	Trigger      domain.TriggerSource                      `json:"trigger"`
	Status       domain.SyncStatus                         `json:"status"`
	StartedAt    time.Time                                 `json:"started_at"`
	FinishedAt   *time.Time                                `json:"finished_at,omitempty"`
	Counts       map[domain.EntityType]domain.EntityCounts `json:"counts"`
	ErrorCount   int                                       `json:"error_count"`
}

type SyncErrorEvent struct {
	Type         EventType           `json:"type"`
	RunID        string              `json:"run_id"`
	ConnectionID string              `json:"connection_id"`
	Provider     domain.ProviderType `json:"provider"`
	EntityType   domain.EntityType   `json:"entity_type"`
	Kind         string              `json:"kind"`
	ExternalID   string              `json:"external_id,omitempty"`
	Message      string              `json:"message"`
}

func NewRunRecorder(impl string, cfg *config.Config) (RunRecorder, error) {

	switch impl {
	case "kafka":
		kafkaProducerCfg := &queue.ProducerConfig{
			Brokers:    cfg.KafkaBrokers,
			Topic:      cfg.KafkaSyncEventsTopic,
			BatchSize:  cfg.KafkaSyncEventsBatchSize,
			BatchBytes: cfg.KafkaSyncEventsBatchBytes,
			Balancer:   "hash",
			SaslConfig: queue.SaslConfigFromSettings(cfg.KafkaSASLMechanism, cfg.KafkaUsername, cfg.KafkaPassword, cfg.KafkaCA),
		}

		kafkaProducer, err := queue.StartProducer(kafkaProducerCfg)
		if err != nil {
			return nil, err
		}

		return &KafkaBasedRunRecorder{kafkaWriter: kafkaProducer}, nil
	case "fake":
		return &FakeRunRecorder{}, nil
	default:
		return nil, errors.New("Invalid RunRecorder impl requested")
	}
}

// buildMessages renders one completion event plus one event per entity error,
// all keyed by connection id so they land on one partition in order.
func buildMessages(conn domain.Connection, run *domain.SyncRun) ([]kafka.Message, error) {
	key := []byte(conn.ID.String())

	completed := SyncRunEvent{
		Type:         SyncRunCompleted,
		RunID:        run.ID.String(),
		ConnectionID: conn.ID.String(),
		Provider:     conn.ProviderType,
		Trigger:      run.Trigger,
		Status:       run.Status,
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
		Counts:       run.Counts,
		ErrorCount:   len(run.Errors),
	}

	value, err := json.Marshal(completed)
	if err != nil {
		return nil, err
	}

	messages := []kafka.Message{{
		Key:     key,
		Value:   value,
		Headers: []kafka.Header{{Key: "type", Value: []byte(SyncRunCompleted)}},
	}}

	for _, entityErr := range run.Errors {
		value, err := json.Marshal(SyncErrorEvent{
			Type:         SyncError,
			RunID:        run.ID.String(),
			ConnectionID: conn.ID.String(),
			Provider:     conn.ProviderType,
			EntityType:   entityErr.EntityType,
			Kind:         entityErr.Kind,
			ExternalID:   entityErr.ExternalID,
			Message:      entityErr.Message,
		})
		if err != nil {
			return nil, err
		}

		messages = append(messages, kafka.Message{
			Key:     key,
			Value:   value,
			Headers: []kafka.Header{{Key: "type", Value: []byte(SyncError)}},
		})
	}

	return messages, nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaBasedRunRecorder struct {
	kafkaWriter messageWriter
	inFlight    sync.WaitGroup
}

// RecordRun hands the messages to a background writer.  The run has already
// been persisted, so a publishing failure is counted and logged only.
func (r *KafkaBasedRunRecorder) RecordRun(ctx context.Context, conn domain.Connection, run *domain.SyncRun) error {

	log := logger.Log.WithFields(logrus.Fields{"connection_id": conn.ID.String(), "run_id": run.ID.String()})

	messages, err := buildMessages(conn, run)
	if err != nil {
		log.WithFields(logrus.Fields{"error": err}).Error("JSON marshal of sync run event failed")
		return err
	}

	r.inFlight.Add(1)
	go func() {
		defer r.inFlight.Done()

		metrics.kafkaWriterGoRoutineGauge.Inc()
		defer metrics.kafkaWriterGoRoutineGauge.Dec()

		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		defer cancel()

		err := r.kafkaWriter.WriteMessages(writeCtx, messages...)

		log.Debug("Sync run event kafka messages written")

		if err != nil {
			log.WithFields(logrus.Fields{"error": err}).Error("Error writing sync run events to kafka")

			if !errors.Is(err, context.Canceled) {
				metrics.kafkaWriterFailureCounter.Add(float64(len(messages)))
			}
		} else {
			metrics.kafkaWriterSuccessCounter.Add(float64(len(messages)))
		}
	}()

	return nil
}

// Flush waits for background writes that are still in flight
func (r *KafkaBasedRunRecorder) Flush() {
	r.inFlight.Wait()
}

// FakeRunRecorder logs runs and keeps them for inspection
type FakeRunRecorder struct {
	mu   sync.Mutex
	runs []domain.SyncRun
}

func (f *FakeRunRecorder) RecordRun(ctx context.Context, conn domain.Connection, run *domain.SyncRun) error {
	log := logger.Log.WithFields(logrus.Fields{"connection_id": conn.ID.String(), "run_id": run.ID.String()})

	log.Debug("FAKE: sync run completed with status: ", run.Status, " - ", run.Counts)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, *run)

	return nil
}

func (f *FakeRunRecorder) Runs() []domain.SyncRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.SyncRun(nil), f.runs...)
}

type eventsMetrics struct {
	kafkaWriterGoRoutineGauge prometheus.Gauge
	kafkaWriterSuccessCounter prometheus.Counter
	kafkaWriterFailureCounter prometheus.Counter
	syncRequestCounter        *prometheus.CounterVec
}

var metrics *eventsMetrics

func init() {
	metrics = new(eventsMetrics)

	metrics.kafkaWriterGoRoutineGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "psa_sync_event_kafka_writer_go_routine_count",
		Help: "The total number of active kafka event writer go routines",
	})

	metrics.kafkaWriterSuccessCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "psa_sync_event_kafka_writer_success_count",
		Help: "The number of events that were sent to the kafka topic",
	})

	metrics.kafkaWriterFailureCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "psa_sync_event_kafka_writer_failure_count",
		Help: "The number of events that failed to get produced to kafka topic",
	})

	metrics.syncRequestCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "psa_sync_sync_request_message_count",
		Help: "The number of sync request messages read from kafka, by result",
	}, []string{"result"})
}
