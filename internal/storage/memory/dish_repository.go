package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/grubdash/internal/domain"
)

// dishRepositoryInMemory хранит блюда в слайсе, сохраняя порядок вставки.
type dishRepositoryInMemory struct {
	mu    sync.RWMutex
	items []domain.Dish
	index map[string]int
}

// NewDishRepository возвращает in-memory репозиторий блюд.
func NewDishRepository() domain.DishRepository {
	return &dishRepositoryInMemory{index: make(map[string]int)}
}

// List возвращает копию всех блюд в порядке добавления.
func (r *dishRepositoryInMemory) List(_ context.Context) ([]domain.Dish, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Dish, len(r.items))
	copy(result, r.items)
	return result, nil
}

// Get возвращает блюдо или ErrNotFound.
func (r *dishRepositoryInMemory) Get(_ context.Context, id string) (domain.Dish, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pos, ok := r.index[id]
	if !ok {
		return domain.Dish{}, domain.ErrNotFound
	}
	return r.items[pos], nil
}

// Create добавляет блюдо в конец коллекции.
func (r *dishRepositoryInMemory) Create(_ context.Context, dish domain.Dish) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[dish.ID]; exists {
		return domain.ErrAlreadyExists
	}
	r.index[dish.ID] = len(r.items)
	r.items = append(r.items, dish)
	return nil
}

// Update перезаписывает поля блюда на его месте в коллекции.
func (r *dishRepositoryInMemory) Update(_ context.Context, dish domain.Dish) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.index[dish.ID]
	if !ok {
		return domain.ErrNotFound
	}
	r.items[pos] = dish
	return nil
}

var _ domain.DishRepository = (*dishRepositoryInMemory)(nil)
