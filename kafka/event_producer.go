package kafka

import (
	"context"
	"encoding/json"

	"payments-service/models"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// PaymentEventProducer writes classified webhook events to the durable queue
// between the dispatcher and the reconciliation worker. Messages are keyed by
// the external object id so duplicate deliveries of the same payment land on
// the same partition, in order.
type PaymentEventProducer struct {
	writer *kafkago.Writer
	topic  string
	logger *zap.Logger
}

func NewPaymentEventProducer(brokers []string, topic string, logger *zap.Logger) *PaymentEventProducer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	logger.Info("PaymentEventProducer initialized",
		zap.String("topic", topic),
		zap.Strings("brokers", brokers),
	)
	return &PaymentEventProducer{writer: w, topic: topic, logger: logger}
}

func (p *PaymentEventProducer) Publish(ctx context.Context, event models.PaymentEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafkago.Message{
		Key:   []byte(event.ExternalObjectID),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to enqueue payment event",
			zap.String("external_object_id", event.ExternalObjectID),
			zap.Error(err),
		)
		return err
	}

	p.logger.Info("Payment event enqueued",
		zap.String("external_object_id", event.ExternalObjectID),
		zap.String("type", event.Type),
	)
	return nil
}

func (p *PaymentEventProducer) Close() {
	_ = p.writer.Close()
	p.logger.Info("Kafka producer closed")
}
