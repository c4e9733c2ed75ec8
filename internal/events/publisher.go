package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/vendora-market/orders-service/internal/config"
	"github.com/vendora-market/orders-service/internal/models"
)

// EventType represents the type of order event.
type EventType string

const (
	EventTypeOrderCreated   EventType = "order.created"
	EventTypeOrderPaid      EventType = "order.paid"
	EventTypeOrderFailed    EventType = "order.failed"
	EventTypeOrderCancelled EventType = "order.cancelled"
	EventTypeOrderDelivered EventType = "order.delivered"
)

// OrderEvent is the envelope published for every order lifecycle change.
// Downstream consumers (notifications, vendor dashboards, analytics) react
// to these; publication is best-effort and never blocks a state transition.
type OrderEvent struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	OrderID   string          `json:"order_id"`
	BuyerID   string          `json:"buyer_id"`
	TxRef     string          `json:"tx_ref"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Publisher publishes order lifecycle events.
type Publisher interface {
	PublishOrderEvent(ctx context.Context, eventType EventType, order *models.Order) error
	Close() error
}

// Ensure KafkaPublisher implements Publisher.
var _ Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher publishes order events to Kafka, keyed by order id so that
// events for one order stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaPublisher creates a new Kafka-based event publisher.
func NewKafkaPublisher(cfg config.KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.OrdersTopic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}

	return &KafkaPublisher{
		writer: writer,
		logger: logger,
	}
}

// PublishOrderEvent publishes a lifecycle event for an order.
func (p *KafkaPublisher) PublishOrderEvent(ctx context.Context, eventType EventType, order *models.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}

	event := OrderEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		OrderID:   order.ID,
		BuyerID:   order.BuyerID,
		TxRef:     order.TxRef,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(order.ID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(eventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish order event",
			zap.String("order_id", order.ID),
			zap.String("event_type", string(eventType)),
			zap.Error(err),
		)
		return err
	}

	p.logger.Debug("order event published",
		zap.String("order_id", order.ID),
		zap.String("event_type", string(eventType)),
	)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
