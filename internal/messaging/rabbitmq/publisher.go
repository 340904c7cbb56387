// Package rabbitmq публикует outbox-события в topic exchange RabbitMQ с publisher confirms.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/grubdash/internal/domain"
)

const (
	// DefaultExchange: topic exchange для событий GrubDash.
	DefaultExchange = "grubdash.events"
	// DeadLetterPrefix добавляется к routing key событий, отправленных в DLQ.
	DeadLetterPrefix = "dlq."

	defaultConfirmTimeout = 5 * time.Second
)

// ErrNack возвращается, если брокер не подтвердил публикацию.
var ErrNack = errors.New("publish NACK from broker")

// channel: часть *amqp.Channel, которая нужна паблишеру.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher публикует события и ждёт подтверждения брокера на каждое сообщение.
type Publisher struct {
	conn     *amqp.Connection
	ch       channel
	acks     <-chan amqp.Confirmation
	exchange string
	timeout  time.Duration
	logger   *log.Entry
	now      func() time.Time

	// mu сериализует публикации: подтверждения приходят в порядке отправки.
	mu sync.Mutex
}

// Dial подключается к брокеру, включает confirms и объявляет exchange.
func Dial(url, exchange string, logger *log.Entry) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	p := newPublisher(ch, acks, exchange, logger)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, acks <-chan amqp.Confirmation, exchange string, logger *log.Entry) *Publisher {
	if logger == nil {
		logger = log.WithField("component", "rabbitmq-publisher")
	}
	return &Publisher{
		ch:       ch,
		acks:     acks,
		exchange: exchange,
		timeout:  defaultConfirmTimeout,
		logger:   logger,
		now:      time.Now,
	}
}

// Publish отправляет событие с routing key, равным типу события (например, order.created).
func (p *Publisher) Publish(event domain.OutboxMessage) error {
	return p.publish(event.EventType, event)
}

// DeadLetters возвращает паблишер для DLQ того же exchange (routing key dlq.<event_type>).
func (p *Publisher) DeadLetters() domain.OutboxPublisher {
	return deadLetterPublisher{p: p}
}

// Ping сообщает, живо ли соединение.
func (p *Publisher) Ping(context.Context) error {
	if p.conn == nil || p.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

// Close закрывает канал и соединение.
func (p *Publisher) Close() error {
	var errs []error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if p.conn != nil && !p.conn.IsClosed() {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) publish(routingKey string, event domain.OutboxMessage) error {
	envelope := domain.NewEventEnvelope(event, p.now())
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    event.ID,
		Type:         event.EventType,
		Timestamp:    envelope.PublishedAt,
		Headers: amqp.Table{
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID,
		},
		Body: body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	select {
	case conf, ok := <-p.acks:
		if !ok {
			return fmt.Errorf("publish %s: confirmation channel closed", routingKey)
		}
		if !conf.Ack {
			return fmt.Errorf("publish %s: %w", routingKey, ErrNack)
		}
	case <-ctx.Done():
		return fmt.Errorf("publish %s: wait for confirm: %w", routingKey, ctx.Err())
	}

	p.logger.WithFields(log.Fields{
		"exchange":    p.exchange,
		"routing_key": routingKey,
		"outbox_id":   event.ID,
	}).Debug("message confirmed by rabbitmq")
	return nil
}

type deadLetterPublisher struct {
	p *Publisher
}

func (d deadLetterPublisher) Publish(event domain.OutboxMessage) error {
	return d.p.publish(DeadLetterPrefix+event.EventType, event)
}

var (
	_ domain.OutboxPublisher = (*Publisher)(nil)
	_ domain.OutboxPublisher = deadLetterPublisher{}
)
