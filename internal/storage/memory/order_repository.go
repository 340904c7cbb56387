package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/grubdash/internal/domain"
)

// orderRepositoryInMemory: простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu    sync.RWMutex
	items []domain.Order
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{}
}

// List возвращает заказы в порядке вставки.
func (r *orderRepositoryInMemory) List(_ context.Context) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		result = append(result, order.Clone())
	}
	return result, nil
}

// Get возвращает заказ или ErrNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pos := r.find(id)
	if pos < 0 {
		return domain.Order{}, domain.ErrNotFound
	}
	return r.items[pos].Clone(), nil
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.find(order.ID) >= 0 {
		return domain.ErrAlreadyExists
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.items = append(r.items, order.Clone())
	return nil
}

// Update перезаписывает заказ на его месте.
func (r *orderRepositoryInMemory) Update(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos := r.find(order.ID)
	if pos < 0 {
		return domain.ErrNotFound
	}
	r.items[pos] = order.Clone()
	return nil
}

// Delete удаляет заказ, сохраняя порядок остальных.
func (r *orderRepositoryInMemory) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos := r.find(id)
	if pos < 0 {
		return domain.ErrNotFound
	}
	r.items = append(r.items[:pos], r.items[pos+1:]...)
	return nil
}

func (r *orderRepositoryInMemory) find(id string) int {
	for i := range r.items {
		if r.items[i].ID == id {
			return i
		}
	}
	return -1
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
