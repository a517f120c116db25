package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"payments-service/models"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventConsumer is the background worker side of the dispatcher hand-off: it
// reads queued payment events from Kafka and runs them through the pipeline.
// Slow third-party calls happen here, never on the webhook response path.
type EventConsumer struct {
	reader   *kafkago.Reader
	pipeline *Pipeline
	logger   *zap.Logger
	topic    string
}

func NewEventConsumer(brokers []string, topic, groupID string, pipeline *Pipeline, logger *zap.Logger) *EventConsumer {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		logger.Fatal("EventConsumer topic is empty")
	}
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	logger.Info("EventConsumer initialized",
		zap.String("topic", topic),
		zap.Strings("brokers", brokers),
		zap.String("group_id", groupID),
	)
	return &EventConsumer{reader: r, pipeline: pipeline, logger: logger, topic: topic}
}

func (c *EventConsumer) Start() {
	c.logger.Info("Starting EventConsumer", zap.String("topic", c.topic))
	ctx := context.Background()
	for {
		// Fetch without committing: the offset only advances once the event
		// has reached durable state. Re-processing after a crash is safe, the
		// whole pipeline is idempotent.
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.logger.Info("EventConsumer reader closed", zap.String("topic", c.topic))
				return
			}
			c.logger.Warn("Error reading payment event", zap.Error(err))
			continue
		}

		if !c.handleMessage(ctx, m) {
			// Transient infrastructure failure; leaving the offset where it
			// is means the broker redelivers the event.
			continue
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.logger.Warn("Failed to commit offset",
				zap.Int64("offset", m.Offset),
				zap.Error(err),
			)
		}
	}
}

// handleMessage processes one fetched message and reports whether its offset
// may be committed. Malformed payloads are committed and dropped; a pipeline
// error holds the offset back for redelivery.
func (c *EventConsumer) handleMessage(ctx context.Context, m kafkago.Message) bool {
	var evt models.PaymentEvent
	if err := json.Unmarshal(m.Value, &evt); err != nil {
		c.logger.Warn("Invalid payment event JSON, dropping",
			zap.Error(err),
			zap.String("payload", string(m.Value)),
		)
		return true
	}

	if err := c.pipeline.HandleEvent(ctx, evt); err != nil {
		c.logger.Error("Failed to process payment event, offset held for redelivery",
			zap.String("external_object_id", evt.ExternalObjectID),
			zap.String("type", evt.Type),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (c *EventConsumer) Close() error {
	c.logger.Info("Closing EventConsumer", zap.String("topic", c.topic))
	return c.reader.Close()
}
