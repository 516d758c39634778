// Package events publishes pipeline lifecycle events to Kafka.  Consumers
// feed the adherence-learning jobs and usage analytics; publication is
// always best-effort from the caller's point of view.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dosewise/rxlens/internal/config"
	"github.com/dosewise/rxlens/internal/infrastructure/monitoring/logging"
	apperrors "github.com/dosewise/rxlens/pkg/errors"
)

// Topic names.
const (
	TopicExtractionCompleted = "rx.extraction.completed"
	TopicExtractionFailed    = "rx.extraction.failed"
	TopicMedicationConfirmed = "rx.medication.confirmed"
)

// ExtractionCompleted is emitted after a successful scan.
type ExtractionCompleted struct {
	ImageHash       string    `json:"image_hash"`
	Strategy        string    `json:"strategy"`
	MedicationCount int       `json:"medication_count"`
	FailedCount     int       `json:"failed_count"`
	FromCache       bool      `json:"from_cache"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// ExtractionFailed is emitted when a scan produces no usable result.
type ExtractionFailed struct {
	ImageHash  string    `json:"image_hash"`
	ErrorCode  string    `json:"error_code"`
	OccurredAt time.Time `json:"occurred_at"`
}

// MedicationConfirmed is emitted once per user-confirmed medication.
type MedicationConfirmed struct {
	ImageHash  string    `json:"image_hash"`
	DrugName   string    `json:"drug_name"`
	SafetyFlag string    `json:"safety_flag"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Producer publishes events.  Implementations must be safe for concurrent
// use.
type Producer interface {
	ExtractionCompleted(ctx context.Context, ev ExtractionCompleted) error
	ExtractionFailed(ctx context.Context, ev ExtractionFailed) error
	MedicationConfirmed(ctx context.Context, ev MedicationConfirmed) error
	Close() error
}

// kafkaProducer writes one kafka.Writer per process, routing by message
// topic.
type kafkaProducer struct {
	writer *kafka.Writer
	logger logging.Logger
}

// NewKafkaProducer constructs the production Producer from cfg.
func NewKafkaProducer(cfg config.KafkaConfig, logger logging.Logger) Producer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &kafkaProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			MaxAttempts:  cfg.ProducerRetries,
			BatchTimeout: cfg.BatchTimeout,
			WriteTimeout: cfg.WriteTimeout,
			Async:        cfg.Async,
			RequiredAcks: kafka.RequireOne,
		},
		logger: logger.Named("events"),
	}
}

func (p *kafkaProducer) ExtractionCompleted(ctx context.Context, ev ExtractionCompleted) error {
	return p.publish(ctx, TopicExtractionCompleted, ev.ImageHash, ev)
}

func (p *kafkaProducer) ExtractionFailed(ctx context.Context, ev ExtractionFailed) error {
	return p.publish(ctx, TopicExtractionFailed, ev.ImageHash, ev)
}

func (p *kafkaProducer) MedicationConfirmed(ctx context.Context, ev MedicationConfirmed) error {
	return p.publish(ctx, TopicMedicationConfirmed, ev.ImageHash, ev)
}

func (p *kafkaProducer) publish(ctx context.Context, topic, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeSerialization, "event encode")
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		p.logger.Warn("event publish failed",
			logging.String("topic", topic), logging.Err(err))
		return apperrors.Wrap(err, apperrors.ErrCodeServiceUnavailable, "event publish")
	}
	return nil
}

func (p *kafkaProducer) Close() error {
	return p.writer.Close()
}

// NopProducer discards all events; used in tests and when Kafka is not
// deployed.
type NopProducer struct{}

func (NopProducer) ExtractionCompleted(context.Context, ExtractionCompleted) error { return nil }
func (NopProducer) ExtractionFailed(context.Context, ExtractionFailed) error       { return nil }
func (NopProducer) MedicationConfirmed(context.Context, MedicationConfirmed) error { return nil }
func (NopProducer) Close() error                                                   { return nil }
