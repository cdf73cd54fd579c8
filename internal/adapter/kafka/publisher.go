// Package kafka announces finished products on a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/storm-data-maxprecip/internal/config"
	"github.com/couchcryptid/storm-data-maxprecip/internal/domain"
)

const (
	publishAttempts   = 4
	initialBackoff    = 200 * time.Millisecond
	maxPublishBackoff = 5 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces product events to a Kafka topic.
// It implements pipeline.Publisher.
type Publisher struct {
	writer     messageWriter
	logger     *slog.Logger
	attempts   int
	backoff    time.Duration
	maxBackoff time.Duration
}

// NewPublisher creates a Kafka producer for the configured product topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaProductTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w, logger)
}

func newPublisher(w messageWriter, logger *slog.Logger) *Publisher {
	return &Publisher{
		writer:     w,
		logger:     logger,
		attempts:   publishAttempts,
		backoff:    initialBackoff,
		maxBackoff: maxPublishBackoff,
	}
}

// Publish writes event keyed by its ID, retrying with exponential backoff.
// Products of the same site and day land on the same partition.
func (p *Publisher) Publish(ctx context.Context, event domain.ProductEvent) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	backoff := p.backoff
	for attempt := 1; ; attempt++ {
		err := p.writer.WriteMessages(ctx, msg)
		if err == nil {
			return nil
		}
		if attempt >= p.attempts || ctx.Err() != nil {
			return fmt.Errorf("publish product %s after %d attempts: %w", event.ID, attempt, err)
		}
		p.logger.Warn("publish product event failed, retrying",
			"error", err,
			"product_id", event.ID,
			"attempt", attempt,
			"backoff", backoff,
		)
		if !retry.SleepWithContext(ctx, backoff) {
			return fmt.Errorf("publish product %s: %w", event.ID, ctx.Err())
		}
		backoff = retry.NextBackoff(backoff, p.maxBackoff)
	}
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a ProductEvent into a Kafka message.
func serializeToMessage(event domain.ProductEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize product event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "site_id", Value: []byte(event.SiteID)},
			{Key: "window", Value: []byte(event.Window)},
			{Key: "corrected", Value: []byte(strconv.FormatBool(event.Corrected))},
			{Key: "processed_at", Value: []byte(event.ProcessedAt.Format(time.RFC3339))},
		},
	}, nil
}
