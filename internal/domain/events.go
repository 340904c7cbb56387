package domain

import (
	"encoding/json"
	"time"
)

// Типы агрегатов в outbox.
const (
	AggregateDish  = "dish"
	AggregateOrder = "order"
)

// Типы событий жизненного цикла.
const (
	EventDishCreated  = "dish.created"
	EventDishUpdated  = "dish.updated"
	EventOrderCreated = "order.created"
	EventOrderUpdated = "order.updated"
	EventOrderDeleted = "order.deleted"
)

// EventEnvelope: формат события во внешнем брокере (Kafka или RabbitMQ).
type EventEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEventEnvelope оборачивает outbox-сообщение для публикации.
func NewEventEnvelope(msg OutboxMessage, publishedAt time.Time) EventEnvelope {
	return EventEnvelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		PublishedAt:   publishedAt.UTC(),
	}
}

// RoutingKey: ключ партиционирования: события одного агрегата идут по порядку.
func (e EventEnvelope) RoutingKey() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}

// DeadLetter: полезная нагрузка события, отправленного в DLQ после исчерпания попыток.
type DeadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt time.Time       `json:"dlq_published_at"`
}

// Original восстанавливает исходное outbox-сообщение из записи DLQ.
func (d DeadLetter) Original() OutboxMessage {
	return OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       []byte(d.Payload),
	}
}
