// Package seed загружает предзаполненные блюда и заказы: встроенный набор по умолчанию
// или JSON-файл вида {"dishes": [...], "orders": [...]}.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/grubdash/internal/domain"
)

//go:embed defaults.json
var defaultsJSON []byte

// Data: предзаполненные записи обоих ресурсов.
type Data struct {
	Dishes []domain.Dish  `json:"dishes"`
	Orders []domain.Order `json:"orders"`
}

// Observer учитывает уже занятые идентификаторы (см. ids.Allocator).
type Observer interface {
	Observe(ids ...string)
}

// Defaults возвращает встроенный набор данных.
func Defaults() (Data, error) {
	return Parse(bytes.NewReader(defaultsJSON))
}

// Load читает набор данных из файла.
func Load(path string) (Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return Data{}, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	data, err := Parse(f)
	if err != nil {
		return Data{}, fmt.Errorf("seed file %s: %w", path, err)
	}
	return data, nil
}

// Parse декодирует и проверяет набор данных.
func Parse(r io.Reader) (Data, error) {
	var data Data
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return Data{}, fmt.Errorf("decode seed data: %w", err)
	}
	if err := data.Validate(); err != nil {
		return Data{}, err
	}
	return data, nil
}

// Validate проверяет, что записи удовлетворяют тем же правилам, что и данные из API.
// ID должны быть уникальны в пределах обоих ресурсов: аллокатор у них общий.
func (d Data) Validate() error {
	var errs []error
	seen := make(map[string]struct{}, len(d.Dishes)+len(d.Orders))
	unique := func(kind, id string) {
		if id == "" {
			errs = append(errs, fmt.Errorf("%s without id", kind))
			return
		}
		if _, dup := seen[id]; dup {
			errs = append(errs, fmt.Errorf("duplicate id %s", id))
		}
		seen[id] = struct{}{}
	}

	for _, dish := range d.Dishes {
		unique("dish", dish.ID)
		if dish.Name == "" || dish.Description == "" || dish.ImageURL == "" {
			errs = append(errs, fmt.Errorf("dish %s: name, description and image_url are required", dish.ID))
		}
		if dish.Price <= 0 {
			errs = append(errs, fmt.Errorf("dish %s: price must be greater than 0", dish.ID))
		}
	}

	for _, order := range d.Orders {
		unique("order", order.ID)
		if order.DeliverTo == "" || order.MobileNumber == "" {
			errs = append(errs, fmt.Errorf("order %s: deliverTo and mobileNumber are required", order.ID))
		}
		if !order.Status.Valid() {
			errs = append(errs, fmt.Errorf("order %s: unknown status %q", order.ID, order.Status))
		}
		if len(order.Dishes) == 0 {
			errs = append(errs, fmt.Errorf("order %s: at least one dish is required", order.ID))
		}
		for i, line := range order.Dishes {
			if line.Quantity <= 0 {
				errs = append(errs, fmt.Errorf("order %s: dish %d quantity must be greater than 0", order.ID, i))
			}
		}
	}

	return errors.Join(errs...)
}

// Apply записывает данные в хранилища, пропуская уже существующие записи,
// и регистрирует в observer все ID, которые есть в хранилищах после загрузки.
func (d Data) Apply(ctx context.Context, dishes domain.DishRepository, orders domain.OrderRepository, observer Observer, logger *log.Entry) error {
	if logger == nil {
		logger = log.WithField("component", "seed")
	}

	created := 0
	for _, dish := range d.Dishes {
		err := dishes.Create(ctx, dish)
		switch {
		case err == nil:
			created++
		case errors.Is(err, domain.ErrAlreadyExists):
		default:
			return fmt.Errorf("seed dish %s: %w", dish.ID, err)
		}
	}
	for _, order := range d.Orders {
		err := orders.Create(ctx, order)
		switch {
		case err == nil:
			created++
		case errors.Is(err, domain.ErrAlreadyExists):
		default:
			return fmt.Errorf("seed order %s: %w", order.ID, err)
		}
	}

	known, err := existingIDs(ctx, dishes, orders)
	if err != nil {
		return err
	}
	observer.Observe(known...)

	logger.WithFields(log.Fields{
		"created": created,
		"known":   len(known),
	}).Info("seed data applied")
	return nil
}

// Observe регистрирует ID уже сохранённых записей без загрузки новых.
func Observe(ctx context.Context, dishes domain.DishRepository, orders domain.OrderRepository, observer Observer) error {
	known, err := existingIDs(ctx, dishes, orders)
	if err != nil {
		return err
	}
	observer.Observe(known...)
	return nil
}

func existingIDs(ctx context.Context, dishes domain.DishRepository, orders domain.OrderRepository) ([]string, error) {
	storedDishes, err := dishes.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list dishes: %w", err)
	}
	storedOrders, err := orders.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	known := make([]string, 0, len(storedDishes)+len(storedOrders))
	for _, dish := range storedDishes {
		known = append(known, dish.ID)
	}
	for _, order := range storedOrders {
		known = append(known, order.ID)
	}
	return known, nil
}
