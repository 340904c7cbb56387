package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/grubdash/internal/domain"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

// fakeChannel подтверждает (или отклоняет) каждую публикацию, как брокер в режиме confirm.
type fakeChannel struct {
	mu        sync.Mutex
	acks      chan amqp.Confirmation
	ack       bool
	publishes []published
	err       error
	tag       uint64
}

func newFakeChannel(ack bool) *fakeChannel {
	return &fakeChannel{acks: make(chan amqp.Confirmation, 8), ack: ack}
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.publishes = append(f.publishes, published{exchange: exchange, key: key, msg: msg})
	f.tag++
	f.acks <- amqp.Confirmation{DeliveryTag: f.tag, Ack: f.ack}
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func event() domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            "m-1",
		AggregateType: domain.AggregateDish,
		AggregateID:   "3",
		EventType:     domain.EventDishCreated,
		Payload:       []byte(`{"id":"3","name":"Pasta"}`),
	}
}

func TestPublisher_PublishConfirmed(t *testing.T) {
	ch := newFakeChannel(true)
	p := newPublisher(ch, ch.acks, DefaultExchange, nil)

	require.NoError(t, p.Publish(event()))

	require.Len(t, ch.publishes, 1)
	got := ch.publishes[0]
	assert.Equal(t, DefaultExchange, got.exchange)
	assert.Equal(t, domain.EventDishCreated, got.key)
	assert.Equal(t, uint8(amqp.Persistent), got.msg.DeliveryMode)
	assert.Equal(t, "m-1", got.msg.MessageId)

	var envelope domain.EventEnvelope
	require.NoError(t, json.Unmarshal(got.msg.Body, &envelope))
	assert.Equal(t, "3", envelope.AggregateID)
	assert.JSONEq(t, `{"id":"3","name":"Pasta"}`, string(envelope.Payload))
}

func TestPublisher_Nack(t *testing.T) {
	ch := newFakeChannel(false)
	p := newPublisher(ch, ch.acks, DefaultExchange, nil)

	err := p.Publish(event())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNack))
}

func TestPublisher_PublishError(t *testing.T) {
	ch := newFakeChannel(true)
	ch.err = amqp.ErrClosed
	p := newPublisher(ch, ch.acks, DefaultExchange, nil)

	err := p.Publish(event())
	require.Error(t, err)
	assert.True(t, errors.Is(err, amqp.ErrClosed))
}

func TestPublisher_ConfirmTimeout(t *testing.T) {
	silent := &silentChannel{}
	p := newPublisher(silent, make(chan amqp.Confirmation), DefaultExchange, nil)
	p.timeout = 20 * time.Millisecond

	err := p.Publish(event())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestPublisher_DeadLetters(t *testing.T) {
	ch := newFakeChannel(true)
	p := newPublisher(ch, ch.acks, "custom", nil)

	require.NoError(t, p.DeadLetters().Publish(event()))
	require.Len(t, ch.publishes, 1)
	assert.Equal(t, "custom", ch.publishes[0].exchange)
	assert.Equal(t, "dlq."+domain.EventDishCreated, ch.publishes[0].key)
}

func TestPublisher_PingWithoutConnection(t *testing.T) {
	ch := newFakeChannel(true)
	p := newPublisher(ch, ch.acks, DefaultExchange, nil)

	assert.Error(t, p.Ping(context.Background()))
	assert.NoError(t, p.Close())
}

type silentChannel struct{}

func (silentChannel) PublishWithContext(context.Context, string, string, bool, bool, amqp.Publishing) error {
	return nil
}

func (silentChannel) Close() error { return nil }
