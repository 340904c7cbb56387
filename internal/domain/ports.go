package domain

import (
	"context"
	"time"
)

// DishRepository описывает хранилище блюд. Порядок List совпадает с порядком вставки.
type DishRepository interface {
	List(ctx context.Context) ([]Dish, error)
	// Get возвращает блюдо или ErrNotFound.
	Get(ctx context.Context, id string) (Dish, error)
	// Create добавляет блюдо в конец коллекции; ErrAlreadyExists, если ID занят.
	Create(ctx context.Context, dish Dish) error
	// Update перезаписывает блюдо с тем же ID; ErrNotFound, если его нет.
	Update(ctx context.Context, dish Dish) error
}

// OrderRepository описывает хранилище заказов. Порядок List совпадает с порядком вставки.
type OrderRepository interface {
	List(ctx context.Context) ([]Order, error)
	Get(ctx context.Context, id string) (Order, error)
	Create(ctx context.Context, order Order) error
	Update(ctx context.Context, order Order) error
	// Delete удаляет заказ; ErrNotFound, если его нет.
	Delete(ctx context.Context, id string) error
}

// IDGenerator выдаёт идентификаторы, уникальные в пределах процесса.
type IDGenerator interface {
	Next() string
}

// OutboxPublisher публикует события из outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	// MarkSent и MarkFailed переводят только pending-сообщение; attempts
	// записывается как итоговое число попыток, reason хранит последнюю ошибку.
	MarkSent(id string, attempts int) error
	MarkFailed(id string, attempts int, reason string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает backlog outbox: общий и по типам агрегатов (dish, order).
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
	Pending         map[string]int
}

// Add учитывает count pending-сообщений агрегата aggregateType, самое старое из которых создано в oldest.
func (s *OutboxStats) Add(aggregateType string, count int, oldest time.Time) {
	if count <= 0 {
		return
	}
	if s.Pending == nil {
		s.Pending = make(map[string]int)
	}
	s.Pending[aggregateType] += count
	s.PendingCount += count
	if !oldest.IsZero() && (s.OldestPendingAt.IsZero() || oldest.Before(s.OldestPendingAt)) {
		s.OldestPendingAt = oldest
	}
}
