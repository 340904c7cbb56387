package app

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/grubdash/internal/domain"
	"github.com/vladislavdragonenkov/grubdash/internal/health"
	"github.com/vladislavdragonenkov/grubdash/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/grubdash/internal/messaging/rabbitmq"
)

// eventsRuntime описывает выбранный брокер событий. publisher == nil означает,
// что события не публикуются и outbox не заполняется.
type eventsRuntime struct {
	publisher    domain.OutboxPublisher
	dlqPublisher domain.OutboxPublisher
	checker      health.Checker
	closeFn      func() error
}

// initEventPublisher создаёт publisher и DLQ publisher для брокера из конфигурации.
func initEventPublisher(cfg Config, logger *log.Entry) (*eventsRuntime, error) {
	switch cfg.EventsBroker {
	case "", EventsBrokerNone:
		return &eventsRuntime{}, nil

	case EventsBrokerLog:
		eventsLogger := logger.WithField("layer", "events")
		return &eventsRuntime{
			publisher:    logPublisher{logger: eventsLogger, level: log.InfoLevel},
			dlqPublisher: logPublisher{logger: eventsLogger.WithField("dlq", true), level: log.WarnLevel},
		}, nil

	case EventsBrokerKafka:
		producer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
		if err != nil {
			return nil, err
		}
		return &eventsRuntime{
			publisher:    kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
			dlqPublisher: kafka.NewDeadLetterPublisher(producer, kafka.TopicDeadLetterQueue, cfg.KafkaTopic),
			closeFn:      closer(func() { closeKafka(producer, logger) }),
		}, nil

	case EventsBrokerRabbitMQ:
		if cfg.RabbitMQURL == "" {
			return nil, fmt.Errorf("rabbitmq url is required for rabbitmq events broker")
		}
		publisher, err := rabbitmq.Dial(cfg.RabbitMQURL, cfg.RabbitMQExchange, logger.WithField("layer", "rabbitmq"))
		if err != nil {
			return nil, err
		}
		logger.WithField("exchange", cfg.RabbitMQExchange).Info("rabbitmq publisher initialized")
		return &eventsRuntime{
			publisher:    publisher,
			dlqPublisher: publisher.DeadLetters(),
			checker:      health.NewPingChecker("events", publisher.Ping, false),
			closeFn:      publisher.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported events broker %q", cfg.EventsBroker)
	}
}

// initKafkaProducer создаёт Kafka producer для списка брокеров.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required for kafka events broker")
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

func closer(fn func()) func() error {
	return func() error {
		fn()
		return nil
	}
}

// logPublisher пишет события в лог вместо брокера. Удобен для локального запуска.
type logPublisher struct {
	logger *log.Entry
	level  log.Level
}

func (p logPublisher) Publish(event domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"outbox_id":      event.ID,
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"payload":        string(event.Payload),
	}).Log(p.level, "event published")
	return nil
}

var _ domain.OutboxPublisher = logPublisher{}
