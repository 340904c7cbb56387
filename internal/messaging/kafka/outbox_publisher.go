package kafka

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/grubdash/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	// originalTopic заполняется только у DLQ-паблишера.
	originalTopic string
	now           func() time.Time
}

// NewOutboxPublisher создаёт Kafka-паблишер для outbox. Пустой topic означает TopicEvents.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
		now:      time.Now,
	}
}

// NewDeadLetterPublisher создаёт паблишер DLQ. Каждое сообщение получает заголовок
// HeaderOriginalTopic, по которому dlq-replay возвращает событие на место.
func NewDeadLetterPublisher(producer *Producer, dlqTopic, originalTopic string) *OutboxTopicPublisher {
	if dlqTopic == "" {
		dlqTopic = TopicDeadLetterQueue
	}
	if originalTopic == "" {
		originalTopic = TopicEvents
	}
	p := NewOutboxPublisher(producer, dlqTopic)
	p.originalTopic = originalTopic
	return p
}

// Topic возвращает topic назначения.
func (p *OutboxTopicPublisher) Topic() string {
	return p.topic
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	envelope := domain.NewEventEnvelope(event, p.now())
	headers := []sarama.RecordHeader{
		{Key: []byte(HeaderEventType), Value: []byte(event.EventType)},
		{Key: []byte(HeaderAggregateType), Value: []byte(event.AggregateType)},
	}
	if p.originalTopic != "" {
		headers = append(headers, sarama.RecordHeader{Key: []byte(HeaderOriginalTopic), Value: []byte(p.originalTopic)})
	}
	return p.producer.PublishEvent(p.topic, envelope.RoutingKey(), envelope, headers...)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
