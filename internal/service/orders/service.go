// Package orders реализует цепочки проверок и терминальные обработчики для заказов.
package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/grubdash/internal/domain"
	"github.com/vladislavdragonenkov/grubdash/internal/service/outbox"
	"github.com/vladislavdragonenkov/grubdash/internal/validation"
)

const resource = "Order"

type request struct {
	ctx     context.Context
	routeID string
	payload domain.OrderPayload
	order   domain.Order
	// items заполняет проверка количеств.
	items []domain.LineItem
}

// Service: точка входа для операций над заказами.
type Service struct {
	repo    domain.OrderRepository
	ids     domain.IDGenerator
	emitter *outbox.Emitter
	logger  *log.Entry

	mu sync.Mutex

	readChain   validation.Chain[*request]
	createChain validation.Chain[*request]
	updateChain validation.Chain[*request]
	deleteChain validation.Chain[*request]
}

// NewService собирает сервис заказов. emitter может быть nil.
func NewService(repo domain.OrderRepository, ids domain.IDGenerator, emitter *outbox.Emitter, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "orders")
	}

	s := &Service{
		repo:    repo,
		ids:     ids,
		emitter: emitter,
		logger:  logger,
	}

	deliverTo := func(r *request) domain.Field { return r.payload.DeliverTo }
	mobileNumber := func(r *request) domain.Field { return r.payload.MobileNumber }
	dishes := func(r *request) domain.Field { return r.payload.Dishes }

	fields := validation.New[*request](
		validation.NonBlank(resource, "deliverTo", deliverTo),
		validation.NonBlank(resource, "mobileNumber", mobileNumber),
		validation.Present(resource, "deliverTo", deliverTo),
		validation.Present(resource, "mobileNumber", mobileNumber),
		validation.Present(resource, "dishes", dishes),
		dishesNotEmpty,
		quantitiesValid,
	)

	s.readChain = validation.New[*request](s.orderExists)
	s.createChain = fields
	s.updateChain = validation.New[*request](
		s.orderExists,
		validation.IDMatches(resource,
			func(r *request) domain.Field { return r.payload.ID },
			func(r *request) string { return r.routeID },
		),
	).Then(fields...).Then(statusTransition)
	s.deleteChain = validation.New[*request](s.orderExists, onlyPending)

	return s
}

func (s *Service) orderExists(r *request) error {
	order, err := s.repo.Get(r.ctx, r.routeID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFoundf("Order id does not exist: %s", r.routeID)
		}
		return fmt.Errorf("load order %s: %w", r.routeID, err)
	}
	r.order = order
	return nil
}

// dishesNotEmpty требует массив хотя бы из одной позиции.
func dishesNotEmpty(r *request) error {
	items, ok := r.payload.Dishes.Items()
	if !ok || len(items) == 0 {
		return domain.Validationf("Order must include at least one dish")
	}
	return nil
}

// quantitiesValid сообщает индекс первой позиции с некорректным количеством
// и сохраняет разобранные позиции в запрос. Позиция, не являющаяся объектом,
// считается позицией без количества.
func quantitiesValid(r *request) error {
	raw, _ := r.payload.Dishes.Items()
	items := make([]domain.LineItem, 0, len(raw))
	for i, item := range raw {
		id, quantity, ok := domain.ParseLineItem(item)
		n, isNumber := quantity.Number()
		if !ok || !isNumber || !validation.IsPositiveInteger(n) {
			return domain.Validationf("Dish %d must have a quantity that is an integer greater than 0", i)
		}
		items = append(items, domain.LineItem{
			DishID:   id.Literal(),
			Quantity: int(n),
			Fields:   item,
		})
	}
	r.items = items
	return nil
}

// statusTransition запрещает менять доставленный заказ и требует допустимый новый статус.
func statusTransition(r *request) error {
	if r.order.Status == domain.OrderStatusDelivered {
		return domain.Validationf("A delivered order cannot be changed")
	}
	status, ok := r.payload.Status.Text()
	if !ok || !domain.OrderStatus(status).Valid() {
		return domain.Validationf("Order must have a status of %s", domain.OrderStatusList(domain.IntermediateStatuses...))
	}
	return nil
}

func onlyPending(r *request) error {
	if r.order.Status != domain.OrderStatusPending {
		return domain.Validationf("An order cannot be deleted unless it is pending.")
	}
	return nil
}

// List возвращает все заказы в порядке добавления.
func (s *Service) List(ctx context.Context) ([]domain.Order, error) {
	orders, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// Get возвращает заказ по идентификатору.
func (s *Service) Get(ctx context.Context, id string) (domain.Order, error) {
	req := &request{ctx: ctx, routeID: id}
	if err := s.readChain.Run(req); err != nil {
		return domain.Order{}, err
	}
	return req.order, nil
}

// Create проверяет тело запроса и добавляет заказ в статусе pending.
// Статус из тела запроса игнорируется.
func (s *Service) Create(ctx context.Context, payload domain.OrderPayload) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req := &request{ctx: ctx, payload: payload}
	if err := s.createChain.Run(req); err != nil {
		s.logger.WithError(err).Debug("create order rejected")
		return domain.Order{}, err
	}

	order := domain.Order{
		ID:     s.ids.Next(),
		Status: domain.OrderStatusPending,
		Dishes: req.items,
	}
	order.DeliverTo, _ = payload.DeliverTo.Text()
	order.MobileNumber, _ = payload.MobileNumber.Text()

	if err := s.repo.Create(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	s.logger.WithFields(log.Fields{"order_id": order.ID, "items": len(order.Dishes)}).Info("order created")
	s.emit(order, domain.EventOrderCreated)
	return order, nil
}

// Update перезаписывает адрес, телефон, статус и позиции найденного заказа.
func (s *Service) Update(ctx context.Context, id string, payload domain.OrderPayload) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req := &request{ctx: ctx, routeID: id, payload: payload}
	if err := s.updateChain.Run(req); err != nil {
		s.logger.WithError(err).WithField("order_id", id).Debug("update order rejected")
		return domain.Order{}, err
	}

	order := req.order
	previous := order.Status
	status, _ := payload.Status.Text()
	order.DeliverTo, _ = payload.DeliverTo.Text()
	order.MobileNumber, _ = payload.MobileNumber.Text()
	order.Status = domain.OrderStatus(status)
	order.Dishes = req.items

	if err := s.repo.Update(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("update order %s: %w", id, err)
	}

	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"from":     previous,
		"to":       order.Status,
	}).Info("order updated")
	s.emit(order, domain.EventOrderUpdated)
	return order, nil
}

// Delete удаляет заказ, если он ещё в статусе pending.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req := &request{ctx: ctx, routeID: id}
	if err := s.deleteChain.Run(req); err != nil {
		s.logger.WithError(err).WithField("order_id", id).Debug("delete order rejected")
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete order %s: %w", id, err)
	}

	s.logger.WithField("order_id", id).Info("order deleted")
	s.emit(req.order, domain.EventOrderDeleted)
	return nil
}

func (s *Service) emit(order domain.Order, eventType string) {
	if err := s.emitter.Emit(domain.AggregateOrder, order.ID, eventType, order); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to enqueue order event")
	}
}
