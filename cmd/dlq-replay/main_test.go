package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/grubdash/internal/domain"
	"github.com/vladislavdragonenkov/grubdash/internal/messaging/kafka"
)

func mapLookup(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func deadLetterMessage(t *testing.T, partition int32, offset int64, headers ...*sarama.RecordHeader) *sarama.ConsumerMessage {
	t.Helper()

	dead, err := json.Marshal(domain.DeadLetter{
		OutboxID:       "outbox-1",
		AggregateType:  domain.AggregateOrder,
		AggregateID:    "7",
		EventType:      domain.EventOrderCreated,
		Payload:        json.RawMessage(`{"id":"7","status":"pending"}`),
		PublishError:   "timeout",
		DLQPublishedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)

	raw, err := json.Marshal(domain.NewEventEnvelope(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "7",
		EventType:     domain.EventOrderCreated,
		Payload:       dead,
	}, time.Now()))
	require.NoError(t, err)

	return &sarama.ConsumerMessage{Partition: partition, Offset: offset, Value: raw, Headers: headers}
}

func mockReplayer(t *testing.T) (*mocks.SyncProducer, *replayer) {
	t.Helper()

	mockProducer := mocks.NewSyncProducer(t, nil)
	return mockProducer, newReplayer(kafka.NewProducerFromSync(mockProducer, log.WithField("test", "dlq-replay")))
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, parseBrokers(" broker-1:9092, ,broker-2:9092 "))
	assert.Empty(t, parseBrokers(" , "))
}

func TestExtractReplay_DeadLetter(t *testing.T) {
	got, err := extractReplay(deadLetterMessage(t, 0, 0), kafka.TopicEvents)
	require.NoError(t, err)

	assert.Equal(t, kafka.TopicEvents, got.topic)
	assert.Equal(t, domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "7",
		EventType:     domain.EventOrderCreated,
		Payload:       []byte(`{"id":"7","status":"pending"}`),
	}, got.event)
}

func TestExtractReplay_OriginalTopicHeader(t *testing.T) {
	msg := deadLetterMessage(t, 0, 0, &sarama.RecordHeader{
		Key:   []byte(kafka.HeaderOriginalTopic),
		Value: []byte("food.events"),
	})

	got, err := extractReplay(msg, kafka.TopicEvents)
	require.NoError(t, err)
	assert.Equal(t, "food.events", got.topic)
}

func TestExtractReplay_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"not json", `not-json`},
		{"no payload", `{"id":"x"}`},
		{"payload not an object", `{"id":"x","payload":"not-an-object"}`},
		{"missing original payload", `{"id":"x","payload":{"outbox_id":"x","event_type":"order.created"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := extractReplay(&sarama.ConsumerMessage{Value: []byte(tt.value)}, kafka.TopicEvents)
			assert.Error(t, err)
		})
	}
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "x", firstNonEmpty("", "  ", "x", "y"))
	assert.Equal(t, "", firstNonEmpty("", " "))
}

func TestReadConfig_FromFlags(t *testing.T) {
	cfg, err := readConfig([]string{
		"-brokers=broker-1:9092,broker-2:9092",
		"-source-topic=food.dlq",
		"-target-topic=food.events",
		"-limit=10",
		"-execute=true",
		"-from-newest=true",
		"-idle-timeout=3s",
	}, mapLookup(nil))
	require.NoError(t, err)

	assert.Equal(t, config{
		brokers:     []string{"broker-1:9092", "broker-2:9092"},
		sourceTopic: "food.dlq",
		targetTopic: "food.events",
		limit:       10,
		execute:     true,
		fromNewest:  true,
		idleTimeout: 3 * time.Second,
	}, cfg)
}

func TestReadConfig_DefaultsAndEnvBrokers(t *testing.T) {
	cfg, err := readConfig(nil, mapLookup(map[string]string{envKafkaBrokers: "kafka:9092"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"kafka:9092"}, cfg.brokers)
	assert.Equal(t, kafka.TopicDeadLetterQueue, cfg.sourceTopic)
	assert.Equal(t, kafka.TopicEvents, cfg.targetTopic)
	assert.Equal(t, defaultReplayLimit, cfg.limit)
	assert.False(t, cfg.execute)
}

func TestReadConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"-brokers="}, "kafka brokers are required"},
		{[]string{"-brokers=b:9092", "-source-topic="}, "source-topic is required"},
		{[]string{"-brokers=b:9092", "-target-topic= "}, "target-topic is required"},
		{[]string{"-brokers=b:9092", "-limit=0"}, "limit must be > 0"},
		{[]string{"-brokers=b:9092", "-idle-timeout=0s"}, "idle-timeout must be > 0"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			_, err := readConfig(tt.args, mapLookup(nil))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestProcessPartition_DryRun(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{0: closedPartitionConsumer(deadLetterMessage(t, 0, 0))},
	}
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicEvents, idleTimeout: 20 * time.Millisecond}

	stats, err := processPartition(context.Background(), cfg, client, consumer, nil, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, replayStats{processed: 1, replayed: 1}, stats)
	require.Len(t, consumer.calls, 1)
	assert.Equal(t, int64(0), consumer.calls[0].offset)
}

func TestProcessPartition_ExecutePublishesOriginalEvent(t *testing.T) {
	mockProducer, replay := mockReplayer(t)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "food.events" {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var envelope domain.EventEnvelope
		if err := json.Unmarshal(value, &envelope); err != nil {
			return err
		}
		if envelope.EventType != domain.EventOrderCreated || string(envelope.Payload) != `{"id":"7","status":"pending"}` {
			return fmt.Errorf("unexpected envelope %+v", envelope)
		}
		return nil
	})

	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{0: closedPartitionConsumer(deadLetterMessage(t, 0, 0, &sarama.RecordHeader{
			Key:   []byte(kafka.HeaderOriginalTopic),
			Value: []byte("food.events"),
		}))},
	}
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicEvents, execute: true, idleTimeout: 20 * time.Millisecond}

	stats, err := processPartition(context.Background(), cfg, client, consumer, replay, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.replayed)
	require.NoError(t, mockProducer.Close())
}

func TestProcessPartition_ErrorBranches(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicEvents, execute: true, idleTimeout: 20 * time.Millisecond}
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}

	t.Run("offset error", func(t *testing.T) {
		broken := &stubOffsetClient{offsetErr: map[int32]error{0: errors.New("offset")}}
		_, err := processPartition(context.Background(), cfg, broken, &stubPartitionConsumerSource{}, nil, 0, 1)
		assert.Error(t, err)
	})

	t.Run("consume error", func(t *testing.T) {
		_, err := processPartition(context.Background(), cfg, client, &stubPartitionConsumerSource{consumeErr: errors.New("consume")}, nil, 0, 1)
		assert.Error(t, err)
	})

	t.Run("consumer error", func(t *testing.T) {
		pc := &stubPartitionConsumer{
			messages: make(chan *sarama.ConsumerMessage),
			errors:   make(chan *sarama.ConsumerError, 1),
		}
		pc.errors <- &sarama.ConsumerError{Err: errors.New("consumer boom")}
		consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: pc}}

		_, err := processPartition(context.Background(), cfg, client, consumer, nil, 0, 1)
		assert.Error(t, err)
	})

	t.Run("bad payload is skipped", func(t *testing.T) {
		consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer(&sarama.ConsumerMessage{Value: []byte(`{"id":"x","payload":"not-an-object"}`)}),
		}}

		stats, err := processPartition(context.Background(), cfg, client, consumer, nil, 0, 1)
		require.NoError(t, err)
		assert.Equal(t, replayStats{processed: 1, skipped: 1}, stats)
	})

	t.Run("publish error", func(t *testing.T) {
		mockProducer, replay := mockReplayer(t)
		mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
		consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer(deadLetterMessage(t, 0, 0)),
		}}

		_, err := processPartition(context.Background(), cfg, client, consumer, replay, 0, 1)
		assert.Error(t, err)
		require.NoError(t, mockProducer.Close())
	})
}

func TestProcessPartition_IdleTimeoutAndContext(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicEvents, idleTimeout: 10 * time.Millisecond}

	idle := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError),
	}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: idle}}
	stats, err := processPartition(context.Background(), cfg, client, consumer, nil, 0, 1)
	require.NoError(t, err)
	assert.Zero(t, stats.processed)
	assert.True(t, idle.closed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = processPartition(ctx, cfg, client, consumer, nil, 0, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessPartition_FromNewest(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 3, newest: 10}}}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: closedPartitionConsumer()}}
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicEvents, fromNewest: true, idleTimeout: 10 * time.Millisecond}

	_, err := processPartition(context.Background(), cfg, client, consumer, nil, 0, 2)
	require.NoError(t, err)
	require.Len(t, consumer.calls, 1)
	assert.Equal(t, int64(8), consumer.calls[0].offset)
}

func TestRunReplay(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicEvents, limit: 1, idleTimeout: 20 * time.Millisecond}

	_, err := runReplay(context.Background(), cfg, nil, nil, nil)
	require.Error(t, err)

	client := &stubOffsetClient{
		partitions: []int32{2, 0},
		offsets: map[int32]offsetRange{
			0: {oldest: 0, newest: 2},
			2: {oldest: 0, newest: 2},
		},
	}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer(deadLetterMessage(t, 0, 0)),
		2: closedPartitionConsumer(deadLetterMessage(t, 2, 0)),
	}}

	stats, err := runReplay(context.Background(), cfg, client, consumer, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.processed)
	require.Len(t, consumer.calls, 1, "limit=1 stops after the first partition")
	assert.Equal(t, int32(0), consumer.calls[0].partition)

	executeCfg := cfg
	executeCfg.execute = true
	_, err = runReplay(context.Background(), executeCfg, client, consumer, nil)
	assert.Error(t, err, "execute mode requires a producer")

	stats, err = runReplay(context.Background(), cfg, &stubOffsetClient{}, consumer, nil)
	require.NoError(t, err)
	assert.Zero(t, stats.processed)
}

func TestRun_UsesDependencies(t *testing.T) {
	oldDeps := newReplayDependencies
	t.Cleanup(func() { newReplayDependencies = oldDeps })

	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicEvents, limit: 1, idleTimeout: 20 * time.Millisecond}

	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, *replayer, error) {
		return nil, nil, nil, errors.New("deps failed")
	}
	err := run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deps failed")

	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer(deadLetterMessage(t, 0, 0)),
	}}
	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, *replayer, error) {
		return client, consumer, nil, nil
	}

	require.NoError(t, run(context.Background(), cfg))
	assert.True(t, client.closed)
	assert.True(t, consumer.closed)
}

func TestFailExits(t *testing.T) {
	if os.Getenv("DLQ_TEST_FAIL_EXIT") == "1" {
		fail("boom")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "DLQ_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	require.Error(t, err, "expected subprocess to exit with error")

	exitErr, ok := err.(*exec.ExitError)
	require.True(t, ok, "unexpected error type %T", err)
	assert.NotZero(t, exitErr.ExitCode())
}

type offsetRange struct {
	oldest int64
	newest int64
}

type stubOffsetClient struct {
	partitions []int32
	offsets    map[int32]offsetRange
	offsetErr  map[int32]error
	closed     bool
}

func (s *stubOffsetClient) GetOffset(_ string, partition int32, marker int64) (int64, error) {
	if err, ok := s.offsetErr[partition]; ok {
		return 0, err
	}

	r := s.offsets[partition]
	switch marker {
	case sarama.OffsetOldest:
		return r.oldest, nil
	case sarama.OffsetNewest:
		return r.newest, nil
	default:
		return 0, fmt.Errorf("unsupported marker %d", marker)
	}
}

func (s *stubOffsetClient) Partitions(string) ([]int32, error) {
	return append([]int32(nil), s.partitions...), nil
}

func (s *stubOffsetClient) Close() error {
	s.closed = true
	return nil
}

type consumeCall struct {
	partition int32
	offset    int64
}

type stubPartitionConsumerSource struct {
	consumers  map[int32]partitionConsumer
	consumeErr error
	calls      []consumeCall
	closed     bool
}

func (s *stubPartitionConsumerSource) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	s.calls = append(s.calls, consumeCall{partition: partition, offset: offset})
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	pc, ok := s.consumers[partition]
	if !ok {
		return nil, fmt.Errorf("partition %d not configured", partition)
	}
	return pc, nil
}

func (s *stubPartitionConsumerSource) Close() error {
	s.closed = true
	return nil
}

type stubPartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
	closed   bool
}

func (s *stubPartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *stubPartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return s.errors }
func (s *stubPartitionConsumer) Close() error {
	s.closed = true
	return nil
}

func closedPartitionConsumer(messages ...*sarama.ConsumerMessage) *stubPartitionConsumer {
	msgCh := make(chan *sarama.ConsumerMessage, len(messages))
	errCh := make(chan *sarama.ConsumerError)
	for _, msg := range messages {
		msgCh <- msg
	}
	close(msgCh)
	close(errCh)
	return &stubPartitionConsumer{messages: msgCh, errors: errCh}
}
