package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/grubdash/internal/domain"
)

const (
	outboxSent   = "sent"
	outboxFailed = "failed"

	defaultPullLimit = 100
)

// outboxRepository хранит события блюд и заказов в outbox_messages.
// Выдача идёт по seq, поэтому события одного блюда или заказа уходят
// в брокер в том порядке, в каком были записаны.
type outboxRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewOutboxRepository создаёт PostgreSQL-реализацию OutboxRepository.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *outboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox_messages (id, aggregate_type, aggregate_id, event_type, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, r.now())
	switch {
	case err == nil:
		return msg, nil
	case isUniqueViolation(err):
		return domain.OutboxMessage{}, domain.ErrAlreadyExists
	default:
		return domain.OutboxMessage{}, fmt.Errorf("enqueue %s for %s %s: %w", msg.EventType, msg.AggregateType, msg.AggregateID, err)
	}
}

func (r *outboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = defaultPullLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload
		FROM outbox_messages
		WHERE status = 'pending'
		ORDER BY seq
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("pull pending events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.OutboxMessage, 0, limit)
	for rows.Next() {
		var msg domain.OutboxMessage
		if err := rows.Scan(&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Payload); err != nil {
			return nil, fmt.Errorf("scan pending event: %w", err)
		}
		events = append(events, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending events: %w", err)
	}
	return events, nil
}

// Stats группирует backlog по типу агрегата.
func (r *outboxRepository) Stats() (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT aggregate_type, COUNT(*), MIN(created_at)
		FROM outbox_messages
		WHERE status = 'pending'
		GROUP BY aggregate_type
	`)
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox backlog query: %w", err)
	}
	defer rows.Close()

	var stats domain.OutboxStats
	for rows.Next() {
		var (
			aggregateType string
			count         int
			oldest        time.Time
		)
		if err := rows.Scan(&aggregateType, &count, &oldest); err != nil {
			return domain.OutboxStats{}, fmt.Errorf("scan outbox backlog: %w", err)
		}
		stats.Add(aggregateType, count, oldest.UTC())
	}
	if err := rows.Err(); err != nil {
		return domain.OutboxStats{}, fmt.Errorf("iterate outbox backlog: %w", err)
	}
	return stats, nil
}

func (r *outboxRepository) MarkSent(id string, attempts int) error {
	return r.settle(id, outboxSent, attempts, "")
}

func (r *outboxRepository) MarkFailed(id string, attempts int, reason string) error {
	return r.settle(id, outboxFailed, attempts, reason)
}

// settle закрывает pending-сообщение. Повторная отметка или неизвестный id дают ErrOutboxPublish.
func (r *outboxRepository) settle(id, status string, attempts int, reason string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox_messages
		SET status = $2,
		    attempt_count = $3,
		    last_error = NULLIF($4, ''),
		    updated_at = $5
		WHERE id = $1
		  AND status = 'pending'
	`, id, status, attempts, reason, r.now())
	if err != nil {
		return fmt.Errorf("mark event %s as %s: %w", id, status, err)
	}
	return expectAffected(res, fmt.Errorf("event %s is not pending: %w", id, domain.ErrOutboxPublish))
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
