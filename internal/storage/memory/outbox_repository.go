package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/grubdash/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

type outboxRecord struct {
	msg       domain.OutboxMessage
	status    string
	attempts  int
	lastError string
	createdAt time.Time
	updatedAt time.Time
}

// OutboxRepository хранит события блюд и заказов в памяти процесса.
// PullPending отдаёт их в порядке Enqueue.
type OutboxRepository struct {
	mu      sync.RWMutex
	order   []string
	records map[string]*outboxRecord
	now     func() time.Time
}

// NewOutboxRepository создаёт in-memory реализацию outbox.
func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		records: make(map[string]*outboxRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue сохраняет событие как pending. Пустой ID заменяется на UUID.
func (r *OutboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if _, exists := r.records[msg.ID]; exists {
		return domain.OutboxMessage{}, domain.ErrAlreadyExists
	}
	now := r.now()
	r.records[msg.ID] = &outboxRecord{
		msg:       msg,
		status:    outboxStatusPending,
		createdAt: now,
		updatedAt: now,
	}
	r.order = append(r.order, msg.ID)
	return msg, nil
}

func (r *OutboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	result := make([]domain.OutboxMessage, 0, limit)
	for _, rec := range r.pendingLocked() {
		result = append(result, rec.msg)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Stats считает backlog по типам агрегатов.
func (r *OutboxRepository) Stats() (domain.OutboxStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats domain.OutboxStats
	for _, rec := range r.pendingLocked() {
		stats.Add(rec.msg.AggregateType, 1, rec.createdAt)
	}
	return stats, nil
}

func (r *OutboxRepository) MarkSent(id string, attempts int) error {
	return r.settle(id, outboxStatusSent, attempts, "")
}

func (r *OutboxRepository) MarkFailed(id string, attempts int, reason string) error {
	return r.settle(id, outboxStatusFailed, attempts, reason)
}

func (r *OutboxRepository) settle(id, status string, attempts int, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok || rec.status != outboxStatusPending {
		return fmt.Errorf("event %s is not pending: %w", id, domain.ErrOutboxPublish)
	}
	rec.status = status
	rec.attempts = attempts
	rec.lastError = reason
	rec.updatedAt = r.now()
	return nil
}

// pendingLocked вызывается под mu.
func (r *OutboxRepository) pendingLocked() []*outboxRecord {
	pending := make([]*outboxRecord, 0, len(r.order))
	for _, id := range r.order {
		if rec := r.records[id]; rec.status == outboxStatusPending {
			pending = append(pending, rec)
		}
	}
	return pending
}

// AllPending возвращает копию всех pending-событий (используется в тестах).
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pending := r.pendingLocked()
	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.msg)
	}
	return result
}

// Settlement возвращает итоговый статус события, число попыток и причину отказа (используется в тестах).
func (r *OutboxRepository) Settlement(id string) (status string, attempts int, reason string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return "", 0, ""
	}
	return rec.status, rec.attempts, rec.lastError
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
