// Package kafka publishes per-document detail records to a Kafka topic, one
// JSON message per outcome keyed by bucket and document id.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/cbexpiry/internal/domain/expiry"
	"github.com/ahrav/cbexpiry/pkg/common/logger"
)

// Config configures the producer.
type Config struct {
	Brokers  []string
	Topic    string
	ClientID string
	// MaxRetryElapsed caps how long ConnectWithRetry keeps trying.
	MaxRetryElapsed time.Duration
}

// message is the wire form of a detail record.
type message struct {
	RunID      string `json:"run_id,omitempty"`
	Bucket     string `json:"bucket"`
	DocumentID string `json:"document_id"`
	TTLSeconds int64  `json:"ttl_seconds"`
	Status     string `json:"status"`
	Kind       string `json:"kind,omitempty"`
	Cause      string `json:"cause,omitempty"`
}

var _ expiry.DetailSink = (*Sink)(nil)

// Sink sends every record synchronously so send failures are reported to the
// caller and counted as sink errors.
type Sink struct {
	producer sarama.SyncProducer
	topic    string
	runID    string

	logger *logger.Logger
	tracer trace.Tracer
}

// NewSink wraps an existing producer. runID is stamped on every message.
func NewSink(producer sarama.SyncProducer, topic, runID string, logger *logger.Logger, tracer trace.Tracer) *Sink {
	return &Sink{
		producer: producer,
		topic:    topic,
		runID:    runID,
		logger:   logger.With("component", "kafka_detail_sink", "topic", topic),
		tracer:   tracer,
	}
}

// NewProducerConfig returns the sarama settings used for detail records.
func NewProducerConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = clientID

	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Producer.Retry.Max = 3

	config.Version = sarama.V3_6_0_0
	return config
}

// ConnectWithRetry creates a producer with exponential backoff, starting at
// 5 second intervals, for up to cfg.MaxRetryElapsed (5 minutes by default).
func ConnectWithRetry(cfg Config, runID string, logger *logger.Logger, tracer trace.Tracer) (*Sink, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka detail topic is required")
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = cfg.MaxRetryElapsed
	if expBackoff.MaxElapsedTime == 0 {
		expBackoff.MaxElapsedTime = 5 * time.Minute
	}
	expBackoff.InitialInterval = 5 * time.Second

	var producer sarama.SyncProducer
	operation := func() error {
		var err error
		producer, err = sarama.NewSyncProducer(cfg.Brokers, NewProducerConfig(cfg.ClientID))
		if err != nil {
			return fmt.Errorf("creating producer: %w", err)
		}
		return nil
	}

	if err := backoff.Retry(operation, expBackoff); err != nil {
		return nil, fmt.Errorf("failed to connect to Kafka after retries: %w", err)
	}

	return NewSink(producer, cfg.Topic, runID, logger, tracer), nil
}

// WriteDetail publishes rec and waits for the broker's acknowledgement.
func (s *Sink) WriteDetail(ctx context.Context, rec expiry.DetailRecord) error {
	ctx, span := s.tracer.Start(ctx, "kafka.produce",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", s.topic),
			attribute.String("messaging.operation", "publish"),
			attribute.String("document_id", rec.ID),
		),
	)
	defer span.End()

	msg := message{
		RunID:      s.runID,
		Bucket:     rec.Bucket,
		DocumentID: rec.ID,
		TTLSeconds: rec.TTL.Seconds(),
		Status:     "updated",
	}
	if !rec.Success {
		msg.Status = "failed"
		msg.Kind = string(rec.Kind)
		msg.Cause = rec.Cause
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal detail record")
		return fmt.Errorf("failed to marshal detail record for %s: %w", rec.ID, err)
	}

	carrier := &headerCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	partition, offset, err := s.producer.SendMessage(&sarama.ProducerMessage{
		Topic:   s.topic,
		Key:     sarama.StringEncoder(rec.Bucket + "/" + rec.ID),
		Value:   sarama.ByteEncoder(payload),
		Headers: carrier.headers,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send detail record")
		return fmt.Errorf("failed to send detail record to kafka topic %s: %w", s.topic, err)
	}

	span.SetAttributes(
		attribute.Int64("messaging.kafka.partition", int64(partition)),
		attribute.Int64("messaging.kafka.offset", offset),
	)
	return nil
}

// Close flushes and closes the producer.
func (s *Sink) Close() error {
	if err := s.producer.Close(); err != nil {
		return fmt.Errorf("closing kafka producer: %w", err)
	}
	return nil
}
