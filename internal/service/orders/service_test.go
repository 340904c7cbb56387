package orders_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/grubdash/internal/domain"
	"github.com/vladislavdragonenkov/grubdash/internal/ids"
	"github.com/vladislavdragonenkov/grubdash/internal/service/orders"
	"github.com/vladislavdragonenkov/grubdash/internal/service/outbox"
	"github.com/vladislavdragonenkov/grubdash/internal/storage/memory"
)

const statusMessage = "Order must have a status of pending, preparing, out-for-delivery"

type fixture struct {
	service *orders.Service
	repo    domain.OrderRepository
	outbox  *memory.OutboxRepository
}

func newFixture(t *testing.T, seeded ...domain.Order) fixture {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	entry := logger.WithField("component", "test")

	repo := memory.NewOrderRepository()
	allocator := ids.NewAllocator()
	for _, order := range seeded {
		require.NoError(t, repo.Create(context.Background(), order))
		allocator.Observe(order.ID)
	}
	outboxRepo := memory.NewOutboxRepository()

	return fixture{
		service: orders.NewService(repo, allocator, outbox.NewEmitter(outboxRepo, entry), entry),
		repo:    repo,
		outbox:  outboxRepo,
	}
}

func str(s string) domain.Field { return domain.FieldOf(s) }

func raw(s string) domain.Field { return domain.RawField(s) }

func validPayload() domain.OrderPayload {
	return domain.OrderPayload{
		DeliverTo:    str("1600 Pennsylvania Avenue"),
		MobileNumber: str("(202) 456-1111"),
		Dishes:       raw(`[{"id":"d1","name":"Pasta","price":10,"quantity":2}]`),
	}
}

func storedOrder(id string, status domain.OrderStatus) domain.Order {
	return domain.Order{
		ID:           id,
		DeliverTo:    "Rubin street",
		MobileNumber: "555",
		Status:       status,
		Dishes:       []domain.LineItem{{DishID: "d1", Quantity: 1}},
	}
}

func requireError(t *testing.T, err error, status int, message string) {
	t.Helper()

	domainErr, ok := domain.AsError(err)
	require.Truef(t, ok, "expected *domain.Error, got %v", err)
	assert.Equal(t, status, domainErr.Status())
	assert.Equal(t, message, domainErr.Message)
}

func TestCreate_ForcesPendingStatus(t *testing.T) {
	f := newFixture(t)

	payload := validPayload()
	payload.Status = str("delivered")

	order, err := f.service.Create(context.Background(), payload)
	require.NoError(t, err)

	assert.NotEmpty(t, order.ID)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	require.Len(t, order.Dishes, 1)
	assert.Equal(t, 2, order.Dishes[0].Quantity)
	assert.Equal(t, "d1", order.Dishes[0].DishID)

	stored, err := f.repo.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order, stored)

	pending := f.outbox.AllPending()
	require.Len(t, pending, 1)
	assert.Equal(t, domain.EventOrderCreated, pending[0].EventType)
	assert.Equal(t, order.ID, pending[0].AggregateID)
}

func TestCreate_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *domain.OrderPayload)
		message string
	}{
		{"missing deliverTo", func(p *domain.OrderPayload) { p.DeliverTo = domain.Field{} }, "Order must include deliverTo"},
		{"empty deliverTo", func(p *domain.OrderPayload) { p.DeliverTo = str("") }, "Order must include deliverTo"},
		{"blank deliverTo", func(p *domain.OrderPayload) { p.DeliverTo = str("  ") }, "Order must include deliverTo"},
		{"numeric deliverTo", func(p *domain.OrderPayload) { p.DeliverTo = raw(`12`) }, "Order must include deliverTo"},
		{"missing mobileNumber", func(p *domain.OrderPayload) { p.MobileNumber = domain.Field{} }, "Order must include mobileNumber"},
		{"missing dishes", func(p *domain.OrderPayload) { p.Dishes = domain.Field{} }, "Order must include dishes"},
		{"null dishes", func(p *domain.OrderPayload) { p.Dishes = raw(`null`) }, "Order must include dishes"},
		{"empty dishes", func(p *domain.OrderPayload) { p.Dishes = raw(`[]`) }, "Order must include at least one dish"},
		{"dishes not an array", func(p *domain.OrderPayload) { p.Dishes = raw(`"x"`) }, "Order must include at least one dish"},
		{"zero quantity", func(p *domain.OrderPayload) { p.Dishes = raw(`[{"id":"d1","quantity":0}]`) }, "Dish 0 must have a quantity that is an integer greater than 0"},
		{"missing quantity", func(p *domain.OrderPayload) { p.Dishes = raw(`[{"id":"d1"}]`) }, "Dish 0 must have a quantity that is an integer greater than 0"},
		{"string quantity", func(p *domain.OrderPayload) { p.Dishes = raw(`[{"id":"1","quantity":"2"}]`) }, "Dish 0 must have a quantity that is an integer greater than 0"},
		{"line item not an object", func(p *domain.OrderPayload) { p.Dishes = raw(`[{"id":"d1","quantity":1},5]`) }, "Dish 1 must have a quantity that is an integer greater than 0"},
		{"fractional quantity", func(p *domain.OrderPayload) {
			p.Dishes = raw(`[{"id":"d1","quantity":2},{"id":"d2","quantity":1.5}]`)
		}, "Dish 1 must have a quantity that is an integer greater than 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			payload := validPayload()
			tt.mutate(&payload)

			_, err := f.service.Create(context.Background(), payload)
			requireError(t, err, http.StatusBadRequest, tt.message)

			list, _ := f.repo.List(context.Background())
			assert.Empty(t, list)
			assert.Empty(t, f.outbox.AllPending())
		})
	}
}

func TestCreate_WrongTypesFollowChainOrder(t *testing.T) {
	tests := []struct {
		name    string
		payload domain.OrderPayload
		message string
	}{
		{
			name:    "dishes not an array with missing deliverTo",
			payload: domain.OrderPayload{Dishes: raw(`"x"`)},
			message: "Order must include deliverTo",
		},
		{
			name:    "string quantity with missing mobileNumber",
			payload: domain.OrderPayload{DeliverTo: str("Rubin street"), Dishes: raw(`[{"id":"1","quantity":"2"}]`)},
			message: "Order must include mobileNumber",
		},
		{
			name: "non-string status on create is ignored but missing dishes is not",
			payload: domain.OrderPayload{
				DeliverTo: str("Rubin street"), MobileNumber: str("555"), Status: raw(`1`),
			},
			message: "Order must include dishes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.service.Create(context.Background(), tt.payload)
			requireError(t, err, http.StatusBadRequest, tt.message)
		})
	}
}

func TestCreate_IgnoresStatusOfAnyType(t *testing.T) {
	for _, status := range []domain.Field{raw(`1`), raw(`{"x":1}`), raw(`true`), str("delivered")} {
		f := newFixture(t)
		payload := validPayload()
		payload.Status = status

		order, err := f.service.Create(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusPending, order.Status)
	}
}

func TestCreate_StoresLineItemsUnchanged(t *testing.T) {
	f := newFixture(t)
	payload := validPayload()
	payload.Dishes = raw(`[{"id":7,"name":"Soup","price":3.5,"quantity":2}]`)

	order, err := f.service.Create(context.Background(), payload)
	require.NoError(t, err)
	require.Len(t, order.Dishes, 1)
	assert.Equal(t, "7", order.Dishes[0].DishID)
	assert.Equal(t, 2, order.Dishes[0].Quantity)
	assert.JSONEq(t, `{"id":7,"name":"Soup","price":3.5,"quantity":2}`, string(order.Dishes[0].Fields))

	encoded, err := json.Marshal(order)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"price":3.5`)
}

func TestCreate_FirstInvalidQuantityIsReported(t *testing.T) {
	f := newFixture(t)
	payload := validPayload()
	payload.Dishes = raw(`[{"id":"a","quantity":1},{"id":"b","quantity":-2},{"id":"c","quantity":0}]`)

	_, err := f.service.Create(context.Background(), payload)
	requireError(t, err, http.StatusBadRequest, "Dish 1 must have a quantity that is an integer greater than 0")
}

func TestGet(t *testing.T) {
	f := newFixture(t, storedOrder("o1", domain.OrderStatusPreparing))

	first, err := f.service.Get(context.Background(), "o1")
	require.NoError(t, err)
	second, err := f.service.Get(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = f.service.Get(context.Background(), "nope")
	requireError(t, err, http.StatusNotFound, "Order id does not exist: nope")
}

func TestUpdate_Valid(t *testing.T) {
	f := newFixture(t, storedOrder("o1", domain.OrderStatusPending))

	payload := validPayload()
	payload.ID = str("o1")
	payload.Status = str("out-for-delivery")

	order, err := f.service.Update(context.Background(), "o1", payload)
	require.NoError(t, err)
	assert.Equal(t, "o1", order.ID)
	assert.Equal(t, domain.OrderStatusOutForDelivery, order.Status)
	assert.Equal(t, "1600 Pennsylvania Avenue", order.DeliverTo)
	require.Len(t, order.Dishes, 1)
	assert.Equal(t, 2, order.Dishes[0].Quantity)

	stored, err := f.repo.Get(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, order, stored)

	pending := f.outbox.AllPending()
	require.Len(t, pending, 1)
	assert.Equal(t, domain.EventOrderUpdated, pending[0].EventType)
}

func TestUpdate_DeliveredOrderIsFrozen(t *testing.T) {
	f := newFixture(t, storedOrder("o1", domain.OrderStatusDelivered))

	for _, status := range []string{"pending", "preparing", "delivered"} {
		payload := validPayload()
		payload.Status = str(status)

		_, err := f.service.Update(context.Background(), "o1", payload)
		requireError(t, err, http.StatusBadRequest, "A delivered order cannot be changed")
	}

	stored, _ := f.repo.Get(context.Background(), "o1")
	assert.Equal(t, storedOrder("o1", domain.OrderStatusDelivered), stored)
}

func TestUpdate_InvalidRequestedStatus(t *testing.T) {
	f := newFixture(t, storedOrder("o1", domain.OrderStatusPending))

	for _, status := range []domain.Field{{}, raw(`null`), str(""), str("invalid"), str("cooking"), raw(`1`), raw(`["pending"]`)} {
		payload := validPayload()
		payload.Status = status

		_, err := f.service.Update(context.Background(), "o1", payload)
		requireError(t, err, http.StatusBadRequest, statusMessage)
	}
}

func TestUpdate_CheckOrder(t *testing.T) {
	f := newFixture(t, storedOrder("o1", domain.OrderStatusDelivered))

	_, err := f.service.Update(context.Background(), "missing", domain.OrderPayload{})
	requireError(t, err, http.StatusNotFound, "Order id does not exist: missing")

	payload := validPayload()
	payload.ID = str("o2")
	_, err = f.service.Update(context.Background(), "o1", payload)
	requireError(t, err, http.StatusBadRequest, "Order id does not match route id. Order: o2, Route: o1")

	payload = validPayload()
	payload.Dishes = domain.Field{}
	_, err = f.service.Update(context.Background(), "o1", payload)
	requireError(t, err, http.StatusBadRequest, "Order must include dishes")
}

func TestDelete(t *testing.T) {
	f := newFixture(t,
		storedOrder("pending", domain.OrderStatusPending),
		storedOrder("preparing", domain.OrderStatusPreparing),
	)

	err := f.service.Delete(context.Background(), "preparing")
	requireError(t, err, http.StatusBadRequest, "An order cannot be deleted unless it is pending.")
	_, err = f.service.Get(context.Background(), "preparing")
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(context.Background(), "pending"))
	_, err = f.service.Get(context.Background(), "pending")
	requireError(t, err, http.StatusNotFound, "Order id does not exist: pending")

	err = f.service.Delete(context.Background(), "pending")
	requireError(t, err, http.StatusNotFound, "Order id does not exist: pending")

	pending := f.outbox.AllPending()
	require.Len(t, pending, 1)
	assert.Equal(t, domain.EventOrderDeleted, pending[0].EventType)
}

func TestList_InsertionOrderAfterDelete(t *testing.T) {
	f := newFixture(t)

	var created []string
	for i := 0; i < 3; i++ {
		order, err := f.service.Create(context.Background(), validPayload())
		require.NoError(t, err)
		created = append(created, order.ID)
	}
	require.NoError(t, f.service.Delete(context.Background(), created[1]))

	list, err := f.service.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, created[0], list[0].ID)
	assert.Equal(t, created[2], list[1].ID)
}
