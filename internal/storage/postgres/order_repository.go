package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/grubdash/internal/domain"
)

type orderRepository struct {
	store *Store
	db    *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
// Позиции заказа хранятся в order_dishes с сохранением порядка; объект позиции
// лежит в колонке item типа JSON, который сохраняет текст без нормализации.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{store: store, db: store.DB()}
}

func (r *orderRepository) List(ctx context.Context) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, deliver_to, mobile_number, status
		FROM orders
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	index := make(map[string]int)
	for rows.Next() {
		var (
			order  domain.Order
			status string
		)
		if err := rows.Scan(&order.ID, &order.DeliverTo, &order.MobileNumber, &status); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		order.Status = domain.OrderStatus(status)
		order.Dishes = []domain.LineItem{}
		index[order.ID] = len(orders)
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	items, err := r.db.QueryContext(ctx, `
		SELECT order_id, dish_id, quantity, item
		FROM order_dishes
		ORDER BY order_id, position
	`)
	if err != nil {
		return nil, fmt.Errorf("list order dishes: %w", err)
	}
	defer items.Close()

	for items.Next() {
		var (
			orderID string
			item    domain.LineItem
			fields  []byte
		)
		if err := items.Scan(&orderID, &item.DishID, &item.Quantity, &fields); err != nil {
			return nil, fmt.Errorf("scan order dish: %w", err)
		}
		item.Fields = fields
		// Заказ мог появиться после первого запроса.
		pos, ok := index[orderID]
		if !ok {
			continue
		}
		orders[pos].Dishes = append(orders[pos].Dishes, item)
	}
	if err := items.Err(); err != nil {
		return nil, fmt.Errorf("iterate order dishes: %w", err)
	}

	return orders, nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, deliver_to, mobile_number, status
		FROM orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.DeliverTo, &order.MobileNumber, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	order.Status = domain.OrderStatus(status)

	items, err := r.loadDishes(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Dishes = items
	return order, nil
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	return r.store.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (id, deliver_to, mobile_number, status)
			VALUES ($1, $2, $3, $4)
		`, order.ID, order.DeliverTo, order.MobileNumber, string(order.Status))
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrAlreadyExists
			}
			return fmt.Errorf("insert order: %w", err)
		}
		return insertDishes(ctx, tx, order)
	})
}

func (r *orderRepository) Update(ctx context.Context, order domain.Order) error {
	return r.store.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET deliver_to = $2,
			    mobile_number = $3,
			    status = $4,
			    updated_at = NOW()
			WHERE id = $1
		`, order.ID, order.DeliverTo, order.MobileNumber, string(order.Status))
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if err := expectAffected(res, domain.ErrNotFound); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM order_dishes WHERE order_id = $1`, order.ID); err != nil {
			return fmt.Errorf("clear order dishes: %w", err)
		}
		return insertDishes(ctx, tx, order)
	})
}

func (r *orderRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return expectAffected(res, domain.ErrNotFound)
}

func insertDishes(ctx context.Context, tx *sql.Tx, order domain.Order) error {
	for pos, item := range order.Dishes {
		raw, err := item.MarshalJSON()
		if err != nil {
			return fmt.Errorf("encode order dish %d: %w", pos, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_dishes (order_id, position, dish_id, quantity, item)
			VALUES ($1, $2, $3, $4, $5)
		`,
			order.ID, pos, item.DishID, item.Quantity, string(raw),
		); err != nil {
			return fmt.Errorf("insert order dish %d: %w", pos, err)
		}
	}
	return nil
}

func (r *orderRepository) loadDishes(ctx context.Context, orderID string) ([]domain.LineItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT dish_id, quantity, item
		FROM order_dishes
		WHERE order_id = $1
		ORDER BY position
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order dishes: %w", err)
	}
	defer rows.Close()

	items := make([]domain.LineItem, 0)
	for rows.Next() {
		var (
			item   domain.LineItem
			fields []byte
		)
		if err := rows.Scan(&item.DishID, &item.Quantity, &fields); err != nil {
			return nil, fmt.Errorf("scan order dish: %w", err)
		}
		item.Fields = fields
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order dishes: %w", err)
	}
	return items, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
