package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	domain "github.com/minsoo-kang/commerce-fulfillment/internal/domain/order"
	"github.com/shopspring/decimal"
)

type OrderRepository struct {
	db *pgxpool.Pool
}

func NewOrderRepository(db *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("orders: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, status, total_amount, cancel_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.UserID, string(o.Status), o.TotalAmount.String(), o.CancelReason, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrConflict
		}
		return fmt.Errorf("orders: insert: %w", err)
	}

	for _, item := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4)`,
			o.ID, item.ProductID, item.Quantity, item.UnitPrice.String(),
		); err != nil {
			return fmt.Errorf("orders: insert item: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	var (
		o           domain.Order
		status      string
		totalAmount string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, status, total_amount::text, cancel_reason, created_at, updated_at
		FROM orders WHERE id = $1`, id,
	).Scan(&o.ID, &o.UserID, &status, &totalAmount, &o.CancelReason, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("orders: get: %w", err)
	}
	o.Status = domain.Status(status)
	if o.TotalAmount, err = decimal.NewFromString(totalAmount); err != nil {
		return nil, fmt.Errorf("orders: parse total amount: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT product_id, quantity, unit_price::text
		FROM order_items WHERE order_id = $1
		ORDER BY product_id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("orders: get items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item  domain.Item
			price string
		)
		if err := rows.Scan(&item.ProductID, &item.Quantity, &price); err != nil {
			return nil, fmt.Errorf("orders: scan item: %w", err)
		}
		if item.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("orders: parse unit price: %w", err)
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("orders: iterate items: %w", err)
	}
	return &o, nil
}

func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE orders
		SET status = $2, total_amount = $3, cancel_reason = $4, updated_at = $5
		WHERE id = $1`,
		o.ID, string(o.Status), o.TotalAmount.String(), o.CancelReason, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("orders: update: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
