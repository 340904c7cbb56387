package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/grubdash/internal/domain"
)

type dishRepository struct {
	db *sql.DB
}

// NewDishRepository создаёт PostgreSQL-реализацию DishRepository.
func NewDishRepository(store *Store) domain.DishRepository {
	return &dishRepository{db: store.DB()}
}

func (r *dishRepository) List(ctx context.Context) ([]domain.Dish, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, price, image_url
		FROM dishes
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("list dishes: %w", err)
	}
	defer rows.Close()

	dishes := make([]domain.Dish, 0)
	for rows.Next() {
		var dish domain.Dish
		if err := rows.Scan(&dish.ID, &dish.Name, &dish.Description, &dish.Price, &dish.ImageURL); err != nil {
			return nil, fmt.Errorf("scan dish row: %w", err)
		}
		dishes = append(dishes, dish)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dish rows: %w", err)
	}
	return dishes, nil
}

func (r *dishRepository) Get(ctx context.Context, id string) (domain.Dish, error) {
	var dish domain.Dish
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, price, image_url
		FROM dishes
		WHERE id = $1
	`, id).Scan(&dish.ID, &dish.Name, &dish.Description, &dish.Price, &dish.ImageURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Dish{}, domain.ErrNotFound
		}
		return domain.Dish{}, fmt.Errorf("select dish: %w", err)
	}
	return dish, nil
}

func (r *dishRepository) Create(ctx context.Context, dish domain.Dish) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dishes (id, name, description, price, image_url)
		VALUES ($1, $2, $3, $4, $5)
	`, dish.ID, dish.Name, dish.Description, dish.Price, dish.ImageURL)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert dish: %w", err)
	}
	return nil
}

func (r *dishRepository) Update(ctx context.Context, dish domain.Dish) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE dishes
		SET name = $2,
		    description = $3,
		    price = $4,
		    image_url = $5,
		    updated_at = NOW()
		WHERE id = $1
	`, dish.ID, dish.Name, dish.Description, dish.Price, dish.ImageURL)
	if err != nil {
		return fmt.Errorf("update dish: %w", err)
	}
	return expectAffected(res, domain.ErrNotFound)
}

var _ domain.DishRepository = (*dishRepository)(nil)
