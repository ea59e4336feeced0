package db

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"eventpass/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) GetOrderByID(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("order_id = ?", orderID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (d *DB) GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := d.Bun.NewSelect().
		Model(&items).
		Where("order_id = ?", orderID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (d *DB) CreateOrder(ctx context.Context, order models.Order) error {
	_, err := d.Bun.NewInsert().Model(&order).Exec(ctx)
	return err
}

func (d *DB) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	_, err := d.Bun.NewInsert().Model(&items).Exec(ctx)
	return err
}

// MarkOrderCompleted moves pending -> completed. The status predicate keeps
// the transition one-way under duplicate webhook delivery; false means the
// order was not pending.
func (d *DB) MarkOrderCompleted(ctx context.Context, orderID string, completedAt time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.OrderStatusCompleted).
		Set("completed_at = ?", completedAt).
		Where("order_id = ?", orderID).
		Where("status = ?", models.OrderStatusPending).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// MarkOrderFailed moves pending -> failed under the same predicate.
func (d *DB) MarkOrderFailed(ctx context.Context, orderID string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.OrderStatusFailed).
		Where("order_id = ?", orderID).
		Where("status = ?", models.OrderStatusPending).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
