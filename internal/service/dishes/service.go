// Package dishes реализует цепочки проверок и терминальные обработчики для блюд:
// list, create, read, update. Удаления блюд нет.
package dishes

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

const resource = "Dish"

// request: состояние одного запроса, которое проходит через цепочку.
// dish заполняется проверкой существования.
type request struct {
	ctx     context.Context
	routeID string
	payload domain.DishPayload
	dish    domain.Dish
}

// Service: точка входа для операций над блюдами.
type Service struct {
	repo    domain.DishRepository
	ids     domain.IDGenerator
	emitter *outbox.Emitter
	logger  *log.Entry

	// mu сериализует последовательности «проверка → запись».
	mu sync.Mutex

	readChain   validation.Chain[*request]
	createChain validation.Chain[*request]
	updateChain validation.Chain[*request]
}

// NewService собирает сервис блюд. emitter может быть nil.
func NewService(repo domain.DishRepository, ids domain.IDGenerator, emitter *outbox.Emitter, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "dishes")
	}

	s := &Service{
		repo:    repo,
		ids:     ids,
		emitter: emitter,
		logger:  logger,
	}

	name := func(r *request) domain.Field { return r.payload.Name }
	description := func(r *request) domain.Field { return r.payload.Description }
	price := func(r *request) domain.Field { return r.payload.Price }
	imageURL := func(r *request) domain.Field { return r.payload.ImageURL }

	fields := validation.New[*request](
		validation.Present(resource, "name", name),
		validation.Present(resource, "description", description),
		validation.Present(resource, "price", price),
		validation.Present(resource, "image_url", imageURL),
		validation.NonBlank(resource, "name", name),
		validation.NonBlank(resource, "description", description),
		validation.NonBlank(resource, "image_url", imageURL),
		validation.PositiveInteger(price, invalidPrice),
	)

	s.readChain = validation.New[*request](s.dishExists)
	s.createChain = fields
	s.updateChain = validation.New[*request](
		s.dishExists,
		validation.IDMatches(resource,
			func(r *request) domain.Field { return r.payload.ID },
			func(r *request) string { return r.routeID },
		),
	).Then(fields...)

	return s
}

func invalidPrice(*request) error {
	return domain.Validationf("Dish must have a price that is an integer greater than 0")
}

// dishExists ищет блюдо по id из пути и привязывает его к запросу.
func (s *Service) dishExists(r *request) error {
	dish, err := s.repo.Get(r.ctx, r.routeID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFoundf("Dish does not exist: %s", r.routeID)
		}
		return fmt.Errorf("load dish %s: %w", r.routeID, err)
	}
	r.dish = dish
	return nil
}

// List возвращает все блюда в порядке добавления.
func (s *Service) List(ctx context.Context) ([]domain.Dish, error) {
	dishes, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list dishes: %w", err)
	}
	return dishes, nil
}

// Get возвращает блюдо по идентификатору.
func (s *Service) Get(ctx context.Context, id string) (domain.Dish, error) {
	req := &request{ctx: ctx, routeID: id}
	if err := s.readChain.Run(req); err != nil {
		return domain.Dish{}, err
	}
	return req.dish, nil
}

// Create проверяет тело запроса, выделяет ID и добавляет блюдо.
func (s *Service) Create(ctx context.Context, payload domain.DishPayload) (domain.Dish, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req := &request{ctx: ctx, payload: payload}
	if err := s.createChain.Run(req); err != nil {
		s.logger.WithError(err).Debug("create dish rejected")
		return domain.Dish{}, err
	}

	dish := domain.Dish{ID: s.ids.Next()}
	apply(&dish, payload)

	if err := s.repo.Create(ctx, dish); err != nil {
		return domain.Dish{}, fmt.Errorf("create dish: %w", err)
	}

	s.logger.WithFields(log.Fields{"dish_id": dish.ID, "price": dish.Price}).Info("dish created")
	s.emit(dish, domain.EventDishCreated)
	return dish, nil
}

// Update перезаписывает все изменяемые поля найденного блюда. ID не меняется.
func (s *Service) Update(ctx context.Context, id string, payload domain.DishPayload) (domain.Dish, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req := &request{ctx: ctx, routeID: id, payload: payload}
	if err := s.updateChain.Run(req); err != nil {
		s.logger.WithError(err).WithField("dish_id", id).Debug("update dish rejected")
		return domain.Dish{}, err
	}

	dish := req.dish
	apply(&dish, payload)

	if err := s.repo.Update(ctx, dish); err != nil {
		return domain.Dish{}, fmt.Errorf("update dish %s: %w", id, err)
	}

	s.logger.WithField("dish_id", dish.ID).Info("dish updated")
	s.emit(dish, domain.EventDishUpdated)
	return dish, nil
}

func (s *Service) emit(dish domain.Dish, eventType string) {
	if err := s.emitter.Emit(domain.AggregateDish, dish.ID, eventType, dish); err != nil {
		s.logger.WithError(err).WithField("dish_id", dish.ID).Warn("failed to enqueue dish event")
	}
}

// apply копирует проверенные поля тела запроса в запись.
// Цепочка уже гарантировала строки и целую цену.
func apply(dish *domain.Dish, payload domain.DishPayload) {
	dish.Name, _ = payload.Name.Text()
	dish.Description, _ = payload.Description.Text()
	price, _ := payload.Price.Number()
	dish.Price = int64(price)
	dish.ImageURL, _ = payload.ImageURL.Text()
}
