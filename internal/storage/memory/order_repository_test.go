package memory_test

import (
	"context"
	"testing"

	"github.com/vladislavdragonenkov/grubdash/internal/domain"
	"github.com/vladislavdragonenkov/grubdash/internal/storage/memory"
)

func newOrder(id string) domain.Order {
	return domain.Order{
		ID:           id,
		DeliverTo:    "308 Negra Arroyo Lane, Albuquerque, NM",
		MobileNumber: "(505) 143-3369",
		Status:       domain.OrderStatusPending,
		Dishes: []domain.LineItem{
			{DishID: "d351db2b49b69679bd5b2b2b6f7a4c33", Quantity: 2},
		},
	}
}

func TestOrderRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	order := newOrder("1")

	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := repo.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.ID != order.ID {
		t.Fatalf("expected id %s, got %s", order.ID, stored.ID)
	}

	if err := repo.Create(ctx, order); err != domain.ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestOrderRepository_GetMissing(t *testing.T) {
	repo := memory.NewOrderRepository()
	if _, err := repo.Get(context.Background(), "missing"); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOrderRepository_ListKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	for _, id := range []string{"b", "a", "c"} {
		if err := repo.Create(ctx, newOrder(id)); err != nil {
			t.Fatalf("create %s failed: %v", id, err)
		}
	}

	orders, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(orders))
	}
	for i, want := range []string{"b", "a", "c"} {
		if orders[i].ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, orders[i].ID)
		}
	}
}

func TestOrderRepository_Update(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	if err := repo.Create(ctx, newOrder("1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, _ := repo.Get(ctx, "1")
	stored.Status = domain.OrderStatusPreparing
	if err := repo.Update(ctx, stored); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	updated, _ := repo.Get(ctx, "1")
	if updated.Status != domain.OrderStatusPreparing {
		t.Fatalf("expected status preparing, got %s", updated.Status)
	}

	if err := repo.Update(ctx, newOrder("missing")); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOrderRepository_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	if err := repo.Create(ctx, newOrder("1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, _ := repo.Get(ctx, "1")
	stored.Dishes[0].Quantity = 99

	again, _ := repo.Get(ctx, "1")
	if again.Dishes[0].Quantity != 2 {
		t.Fatalf("stored order was mutated through a returned copy: %d", again.Dishes[0].Quantity)
	}
}

func TestOrderRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	for _, id := range []string{"1", "2", "3"} {
		if err := repo.Create(ctx, newOrder(id)); err != nil {
			t.Fatalf("create %s failed: %v", id, err)
		}
	}

	if err := repo.Delete(ctx, "2"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := repo.Get(ctx, "2"); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	orders, _ := repo.List(ctx)
	if len(orders) != 2 || orders[0].ID != "1" || orders[1].ID != "3" {
		t.Fatalf("unexpected orders after delete: %+v", orders)
	}

	if err := repo.Delete(ctx, "2"); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
