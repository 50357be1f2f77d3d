package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/order"
	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/stock"
	"github.com/minsoo-kang/commerce-fulfillment/internal/observability"
	"github.com/segmentio/kafka-go"
)

const (
	topicCatalogEvents = "catalog-events"
	topicOrderEvents   = "order-events"
)

// envelope is the wire format shared by all analytics events.
type envelope struct {
	EventID     string          `json:"eventId"`
	EventType   string          `json:"eventType"`
	AggregateID string          `json:"aggregateId"`
	OccurredAt  time.Time       `json:"occurredAt"`
	Payload     json.RawMessage `json:"payload"`
}

// KafkaPublisher ships stock adjustments and completed orders to the
// analytics topics. It satisfies both the stock and order stream ports.
type KafkaPublisher struct {
	catalog *kafka.Writer
	orders  *kafka.Writer
	log     observability.Logger
}

func NewKafkaPublisher(brokers []string, tel observability.Observability) *KafkaPublisher {
	baseLog := observability.NopLogger()
	if tel != nil {
		baseLog = tel.Logger()
	}
	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		}
	}
	return &KafkaPublisher{
		catalog: newWriter(topicCatalogEvents),
		orders:  newWriter(topicOrderEvents),
		log:     baseLog.With(observability.F("component", "kafka_stream")),
	}
}

type stockAdjustedPayload struct {
	ProductID    string `json:"productId"`
	Quantity     int    `json:"quantity"`
	CurrentStock int    `json:"currentStock"`
}

func (p *KafkaPublisher) StockAdjusted(ctx context.Context, adjustments []stock.Adjustment) error {
	msgs := make([]kafka.Message, 0, len(adjustments))
	for _, adj := range adjustments {
		msg, err := p.message("stock.adjusted", adj.ProductID, stockAdjustedPayload{
			ProductID:    adj.ProductID,
			Quantity:     adj.Quantity,
			CurrentStock: adj.CurrentStock,
		})
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := p.catalog.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("stream: write stock adjustments: %w", err)
	}
	return nil
}

type orderCompletedPayload struct {
	OrderID     string `json:"orderId"`
	UserID      string `json:"userId"`
	TotalAmount string `json:"totalAmount"`
	Lines       int    `json:"lines"`
}

func (p *KafkaPublisher) OrderCompleted(ctx context.Context, o *order.Order) error {
	msg, err := p.message("order.completed", o.ID, orderCompletedPayload{
		OrderID:     o.ID,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount.String(),
		Lines:       len(o.Items),
	})
	if err != nil {
		return err
	}
	if err := p.orders.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("stream: write order completed: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) message(eventType, aggregateID string, payload any) (kafka.Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("stream: encode %s payload: %w", eventType, err)
	}
	body, err := json.Marshal(envelope{
		EventID:     uuid.NewString(),
		EventType:   eventType,
		AggregateID: aggregateID,
		OccurredAt:  time.Now().UTC(),
		Payload:     raw,
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("stream: encode %s envelope: %w", eventType, err)
	}
	return kafka.Message{Key: []byte(aggregateID), Value: body}, nil
}

func (p *KafkaPublisher) Close() error {
	if err := p.catalog.Close(); err != nil {
		return err
	}
	return p.orders.Close()
}
