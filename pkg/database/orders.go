package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ingest-pipeline/pkg/order"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

const orderColumns = `id, user_id, product_name, description, total_amount, status, created_at, updated_at`

func scanOrder(row pgx.Row, o *order.Order) error {
	return row.Scan(&o.ID, &o.UserID, &o.ProductName, &o.Description,
		&o.TotalAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt)
}

func (r *OrderRepository) FindPage(ctx context.Context, skip, take int) ([]order.Order, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC OFFSET $1 LIMIT $2`, skip, take)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	return collectOrders(rows, total)
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*order.Order, error) {
	o := &order.Order{}
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if err := scanOrder(row, o); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return o, nil
}

func (r *OrderRepository) Search(ctx context.Context, q string, skip, take int) ([]order.Order, int, error) {
	pattern := "%" + q + "%"

	var total int
	countQuery := `SELECT COUNT(*) FROM orders WHERE product_name ILIKE $1 OR description ILIKE $1`
	if err := r.pool.QueryRow(ctx, countQuery, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
         WHERE product_name ILIKE $1 OR description ILIKE $1
         ORDER BY created_at DESC OFFSET $2 LIMIT $3`, pattern, skip, take)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	return collectOrders(rows, total)
}

func (r *OrderRepository) SaveAll(ctx context.Context, inputs []order.CreateInput) ([]order.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	saved := make([]order.Order, 0, len(inputs))
	query := `INSERT INTO orders (user_id, product_name, description, total_amount, status)
              VALUES ($1, $2, $3, $4, $5) RETURNING ` + orderColumns
	for _, in := range inputs {
		status := in.Status
		if status == "" {
			status = order.StatusPending
		}
		var amount float64
		if in.TotalAmount != nil {
			amount = *in.TotalAmount
		}
		var o order.Order
		row := tx.QueryRow(ctx, query, in.UserID, in.ProductName, in.Description, amount, status)
		if err := scanOrder(row, &o); err != nil {
			return nil, err
		}
		saved = append(saved, o)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return saved, nil
}

func (r *OrderRepository) AggregateStats(ctx context.Context) (*order.Stats, error) {
	stats := &order.Stats{}
	query := `
        SELECT COUNT(*),
               COALESCE(SUM(total_amount), 0),
               COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
               COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
               COALESCE(SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END), 0),
               COALESCE(AVG(total_amount), 0)
        FROM orders`
	err := r.pool.QueryRow(ctx, query).Scan(
		&stats.TotalOrders, &stats.TotalRevenue, &stats.PendingOrders,
		&stats.CompletedOrders, &stats.CancelledOrders, &stats.AvgOrderValue,
	)
	return stats, err
}

func collectOrders(rows pgx.Rows, total int) ([]order.Order, int, error) {
	orders := []order.Order{}
	for rows.Next() {
		var o order.Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}
