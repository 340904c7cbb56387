package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/grubdash/internal/domain"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
)

var (
	publishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grubdash_outbox_publish_attempts_total",
		Help: "Outbox publish attempts by aggregate (dish, order) and result.",
	}, []string{"aggregate_type", "result"})
	pendingRecords = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "grubdash_outbox_pending_records",
		Help: "Pending outbox events by aggregate (dish, order).",
	}, []string{"aggregate_type"})
	oldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "grubdash_outbox_oldest_pending_age_seconds",
		Help: "Age in seconds of the oldest pending outbox event.",
	})
)

// trackedAggregates сбрасываются в 0, когда их backlog пуст.
var trackedAggregates = []string{domain.AggregateDish, domain.AggregateOrder}

// WorkerOptions задаёт параметры outbox worker.
type WorkerOptions struct {
	Logger         *log.Entry
	DLQPublisher   domain.OutboxPublisher
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithDLQPublisher задаёт publisher для отправки в DLQ после исчерпания retry.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(opts *WorkerOptions) {
		opts.DLQPublisher = publisher
	}
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.PollInterval = interval
	}
}

// WithBatchSize задаёт размер батча из outbox.
func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) {
		opts.BatchSize = batchSize
	}
}

// WithMaxAttempts задаёт число попыток публикации перед failed/DLQ.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WorkerOptions) {
		opts.MaxAttempts = maxAttempts
	}
}

// WithRetryBaseDelay задаёт базовый delay для exponential backoff.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.RetryBaseDelay = delay
	}
}

// Worker публикует pending-события блюд и заказов в брокер.
type Worker struct {
	repo           domain.OutboxRepository
	publisher      domain.OutboxPublisher
	dlqPublisher   domain.OutboxPublisher
	logger         *log.Entry
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-worker")
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}

	return &Worker{
		repo:           repo,
		publisher:      publisher,
		dlqPublisher:   opts.DLQPublisher,
		logger:         logger,
		pollInterval:   opts.PollInterval,
		batchSize:      opts.BatchSize,
		maxAttempts:    opts.MaxAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
	}
}

// Run опрашивает outbox до отмены ctx. После отмены делает одну
// финальную попытку выгрузить backlog, ограниченную drainTimeout.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

const drainTimeout = 2 * time.Second

func (w *Worker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	processed := w.ProcessOnce(ctx)
	if processed > 0 {
		w.logger.WithField("processed", processed).Info("outbox drained on shutdown")
	}
}

// delivery описывает исход публикации одного события.
type delivery struct {
	attempts int
	err      error
	// interrupted: ctx отменён между попытками, событие остаётся pending.
	interrupted bool
}

// ProcessOnce выполняет один polling-цикл и возвращает число событий,
// получивших итоговый статус sent или failed.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	w.refreshBacklogMetrics()

	events, err := w.repo.PullPending(w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox events")
		return 0
	}

	var sent, failed int
	for _, event := range events {
		if ctx.Err() != nil {
			break
		}
		d := w.deliver(ctx, event)
		if d.interrupted {
			w.eventLogger(event, d).Info("publish interrupted, event stays pending")
			break
		}
		if w.settle(event, d) {
			sent++
		} else {
			failed++
		}
	}

	processed := sent + failed
	if processed > 0 {
		w.logger.WithFields(log.Fields{
			"pulled": len(events),
			"sent":   sent,
			"failed": failed,
		}).Debug("outbox cycle finished")
		w.refreshBacklogMetrics()
	}
	return processed
}

// deliver публикует событие, повторяя попытки с экспоненциальной задержкой.
func (w *Worker) deliver(ctx context.Context, event domain.OutboxMessage) delivery {
	var d delivery
	for d.attempts < w.maxAttempts {
		d.attempts++
		d.err = w.publisher.Publish(event)
		if d.err == nil {
			publishAttempts.WithLabelValues(event.AggregateType, "sent").Inc()
			return d
		}
		publishAttempts.WithLabelValues(event.AggregateType, "retry_error").Inc()

		if d.attempts < w.maxAttempts && !w.wait(ctx, w.retryBackoff(d.attempts)) {
			d.interrupted = true
			return d
		}
	}
	return d
}

// wait возвращает false, если ctx отменён раньше, чем истекла задержка.
func (w *Worker) wait(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// settle записывает исход доставки в outbox. Возвращает true для sent.
func (w *Worker) settle(event domain.OutboxMessage, d delivery) bool {
	logger := w.eventLogger(event, d)

	if d.err == nil {
		if err := w.repo.MarkSent(event.ID, d.attempts); err != nil {
			logger.WithError(err).Warn("failed to mark outbox event as sent")
		}
		return true
	}

	reason := fmt.Sprintf("publish failed after %d attempts: %v", d.attempts, d.err)
	logger.WithError(d.err).Error("outbox event publish failed after retries")
	publishAttempts.WithLabelValues(event.AggregateType, "failed").Inc()

	if err := w.publishToDLQ(event, reason); err != nil {
		logger.WithError(err).Warn("failed to publish to DLQ")
		publishAttempts.WithLabelValues(event.AggregateType, "dlq_failed").Inc()
	}
	if err := w.repo.MarkFailed(event.ID, d.attempts, reason); err != nil {
		logger.WithError(err).Warn("failed to mark outbox event as failed")
	}
	return false
}

func (w *Worker) eventLogger(event domain.OutboxMessage, d delivery) *log.Entry {
	return w.logger.WithFields(log.Fields{
		"outbox_id":      event.ID,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"event_type":     event.EventType,
		"attempts":       d.attempts,
	})
}

func (w *Worker) refreshBacklogMetrics() {
	stats, err := w.repo.Stats()
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	for _, aggregate := range trackedAggregates {
		pendingRecords.WithLabelValues(aggregate).Set(float64(stats.Pending[aggregate]))
	}
	for aggregate, count := range stats.Pending {
		pendingRecords.WithLabelValues(aggregate).Set(float64(count))
	}

	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		oldestPendingAge.Set(0)
		return
	}
	oldestPendingAge.Set(max(time.Since(stats.OldestPendingAt).Seconds(), 0))
}

func (w *Worker) retryBackoff(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 {
		return 0
	}
	if attempt <= 1 {
		return w.retryBaseDelay
	}

	const maxDuration = time.Duration(1<<63 - 1)
	delay := w.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > maxDuration/2 {
			return maxDuration
		}
		delay *= 2
	}
	return delay
}

func (w *Worker) publishToDLQ(event domain.OutboxMessage, reason string) error {
	if w.dlqPublisher == nil {
		return nil
	}

	payload, err := json.Marshal(domain.DeadLetter{
		OutboxID:       event.ID,
		AggregateType:  event.AggregateType,
		AggregateID:    event.AggregateID,
		EventType:      event.EventType,
		Payload:        json.RawMessage(event.Payload),
		PublishError:   reason,
		DLQPublishedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal dlq payload: %w", err)
	}

	dlqEvent := domain.OutboxMessage{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
	}
	if err := w.dlqPublisher.Publish(dlqEvent); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}

	return nil
}
