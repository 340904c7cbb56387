package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/grubdash/internal/domain"
	"github.com/vladislavdragonenkov/grubdash/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
	envKafkaBrokers    = "GRUBDASH_KAFKA_BROKERS"
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

// replayCandidate: исходное событие, восстановленное из записи DLQ.
type replayCandidate struct {
	topic string
	event domain.OutboxMessage
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	return a.consumer.ConsumePartition(topic, partition, offset)
}

func (a saramaConsumerAdapter) Close() error {
	return a.consumer.Close()
}

// replayer публикует восстановленные события тем же форматом, что и outbox worker.
type replayer struct {
	producer   *kafka.Producer
	publishers map[string]*kafka.OutboxTopicPublisher
}

func newReplayer(producer *kafka.Producer) *replayer {
	return &replayer{producer: producer, publishers: make(map[string]*kafka.OutboxTopicPublisher)}
}

func (r *replayer) publish(c replayCandidate) error {
	publisher, ok := r.publishers[c.topic]
	if !ok {
		publisher = kafka.NewOutboxPublisher(r.producer, c.topic)
		r.publishers[c.topic] = publisher
	}
	return publisher.Publish(c.event)
}

var newReplayDependencies = func(cfg config) (offsetClient, partitionConsumerSource, *replayer, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	if !cfg.execute {
		return client, saramaConsumerAdapter{consumer: consumer}, nil, nil
	}

	producer, err := kafka.NewProducer(cfg.brokers)
	if err != nil {
		_ = consumer.Close()
		_ = client.Close()
		return nil, nil, nil, err
	}

	return client, saramaConsumerAdapter{consumer: consumer}, newReplayer(producer), nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig(os.Args[1:], os.LookupEnv)
	if err != nil {
		fail("%v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig(args []string, lookup func(string) (string, bool)) (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	fs := flag.NewFlagSet("dlq-replay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: "+envKafkaBrokers+")")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	fs.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicEvents, "target topic when a message has no original topic header")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to scan/replay")
	fs.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw, _ = lookup(envKafkaBrokers)
	}

	cfg.brokers = parseBrokers(brokersRaw)
	switch {
	case len(cfg.brokers) == 0:
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or %s)", envKafkaBrokers)
	case strings.TrimSpace(cfg.sourceTopic) == "":
		return config{}, errors.New("source-topic is required")
	case strings.TrimSpace(cfg.targetTopic) == "":
		return config{}, errors.New("target-topic is required")
	case cfg.limit <= 0:
		return config{}, errors.New("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, errors.New("idle-timeout must be > 0")
	}

	return cfg, nil
}

func parseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	log.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
		"from_newest":  cfg.fromNewest,
	}).Info("starting dlq replay")

	client, consumer, replay, err := newReplayDependencies(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if replay != nil {
			_ = replay.producer.Close()
		}
		_ = consumer.Close()
		_ = client.Close()
	}()

	_, err = runReplay(ctx, cfg, client, consumer, replay)
	return err
}

type replayStats struct {
	processed int
	replayed  int
	skipped   int
}

func (s *replayStats) add(other replayStats) {
	s.processed += other.processed
	s.replayed += other.replayed
	s.skipped += other.skipped
}

func runReplay(ctx context.Context, cfg config, client offsetClient, consumer partitionConsumerSource, replay *replayer) (replayStats, error) {
	var total replayStats

	if client == nil || consumer == nil {
		return total, errors.New("kafka client and consumer are required")
	}
	if cfg.execute && replay == nil {
		return total, errors.New("producer is required in execute mode")
	}

	partitions, err := client.Partitions(cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", cfg.sourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if total.processed >= cfg.limit {
			break
		}
		stats, err := processPartition(ctx, cfg, client, consumer, replay, partition, cfg.limit-total.processed)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":      mode,
		"processed": total.processed,
		"replayed":  total.replayed,
		"skipped":   total.skipped,
	}).Info("dlq replay finished")

	return total, nil
}

func processPartition(
	ctx context.Context,
	cfg config,
	client offsetClient,
	consumer partitionConsumerSource,
	replay *replayer,
	partition int32,
	limit int,
) (replayStats, error) {
	var stats replayStats

	oldest, err := client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	startOffset := oldest
	if cfg.fromNewest {
		startOffset = max(newest-int64(limit), oldest)
	}

	pc, err := consumer.ConsumePartition(cfg.sourceTopic, partition, startOffset)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(cfg.idleTimeout)
	defer idle.Stop()

	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case err := <-pc.Errors():
			if err != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, err)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			idle.Reset(cfg.idleTimeout)
			stats.processed++

			candidate, err := extractReplay(msg, cfg.targetTopic)
			if err != nil {
				stats.skipped++
				log.WithError(err).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("skip unsupported dlq message")
				continue
			}

			entry := log.WithFields(log.Fields{
				"partition":    msg.Partition,
				"offset":       msg.Offset,
				"target_topic": candidate.topic,
				"event_type":   candidate.event.EventType,
				"aggregate_id": candidate.event.AggregateID,
			})
			if cfg.execute {
				if err := replay.publish(candidate); err != nil {
					return stats, fmt.Errorf("publish replay message: %w", err)
				}
				entry.Info("dlq message replayed")
			} else {
				entry.Info("dlq replay candidate")
			}
			stats.replayed++

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		case <-idle.C:
			return stats, nil
		}
	}

	return stats, nil
}

// extractReplay разбирает запись DLQ: конверт события с domain.DeadLetter в payload.
func extractReplay(msg *sarama.ConsumerMessage, defaultTopic string) (replayCandidate, error) {
	var envelope domain.EventEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return replayCandidate{}, fmt.Errorf("decode dlq envelope: %w", err)
	}
	if len(envelope.Payload) == 0 {
		return replayCandidate{}, errors.New("dlq envelope has no payload")
	}

	var dead domain.DeadLetter
	if err := json.Unmarshal(envelope.Payload, &dead); err != nil {
		return replayCandidate{}, fmt.Errorf("decode dead letter: %w", err)
	}
	if len(dead.Payload) == 0 {
		return replayCandidate{}, errors.New("dead letter does not contain original event payload")
	}

	event := dead.Original()
	event.ID = firstNonEmpty(event.ID, envelope.ID)
	event.AggregateType = firstNonEmpty(event.AggregateType, envelope.AggregateType)
	event.AggregateID = firstNonEmpty(event.AggregateID, envelope.AggregateID)
	event.EventType = firstNonEmpty(event.EventType, envelope.EventType)

	topic := defaultTopic
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == kafka.HeaderOriginalTopic && len(h.Value) > 0 {
			topic = string(h.Value)
		}
	}

	return replayCandidate{topic: topic, event: event}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
