// Package ids выдаёт строковые идентификаторы, общие для блюд и заказов.
package ids

import (
	"strconv"
	"sync"

	"github.com/vladislavdragonenkov/grubdash/internal/domain"
)

// Allocator: монотонный счётчик. Он стартует выше максимального числового ID
// среди уже известных записей и пропускает любые занятые строковые ID.
type Allocator struct {
	mu    sync.Mutex
	last  uint64
	taken map[string]struct{}
}

// NewAllocator создаёт аллокатор и сразу учитывает переданные ID.
func NewAllocator(existing ...string) *Allocator {
	a := &Allocator{taken: make(map[string]struct{})}
	a.Observe(existing...)
	return a
}

// Observe регистрирует ID предзагруженных записей.
// Числовые ID поднимают счётчик, любые ID запоминаются как занятые.
func (a *Allocator) Observe(existing ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, id := range existing {
		if id == "" {
			continue
		}
		a.taken[id] = struct{}{}
		if n, err := strconv.ParseUint(id, 10, 64); err == nil && n > a.last {
			a.last = n
		}
	}
}

// Next возвращает следующий свободный ID. Выданный ID больше не повторяется.
func (a *Allocator) Next() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	for {
		a.last++
		id := strconv.FormatUint(a.last, 10)
		if _, busy := a.taken[id]; busy {
			continue
		}
		a.taken[id] = struct{}{}
		return id
	}
}

var _ domain.IDGenerator = (*Allocator)(nil)
