package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/stock"
	"github.com/shopspring/decimal"
)

type ProductRepository struct {
	db *pgxpool.Pool
}

func NewProductRepository(db *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*stock.Product, error) {
	var (
		p     stock.Product
		price string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, name, price::text, stock FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &price, &p.Stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, stock.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("products: get: %w", err)
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("products: parse price: %w", err)
	}
	return &p, nil
}

func (r *ProductRepository) Save(ctx context.Context, p *stock.Product) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO products (id, name, price, stock)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, price = EXCLUDED.price, stock = EXCLUDED.stock`,
		p.ID, p.Name, p.Price.String(), p.Stock,
	)
	if err != nil {
		return fmt.Errorf("products: save: %w", err)
	}
	return nil
}

// ReservationRepository persists reservation rows. Stock mutation itself goes
// through ProductRepository under the application-level keyed lock; a
// deployment that drops that lock would move the decrement into a FOR UPDATE
// transaction here instead.
type ReservationRepository struct {
	db *pgxpool.Pool
}

func NewReservationRepository(db *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) SaveAll(ctx context.Context, rs []*stock.Reservation) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("reservations: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, res := range rs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO reservations (id, order_id, product_id, quantity, status, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (order_id, product_id) DO NOTHING`,
			res.ID, res.OrderID, res.ProductID, res.Quantity, string(res.Status), res.CreatedAt, res.ExpiresAt,
		); err != nil {
			return fmt.Errorf("reservations: insert: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *ReservationRepository) FindByOrderID(ctx context.Context, orderID string) ([]*stock.Reservation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, product_id, quantity, status, created_at, expires_at
		FROM reservations WHERE order_id = $1
		ORDER BY product_id`, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("reservations: find: %w", err)
	}
	defer rows.Close()

	var out []*stock.Reservation
	for rows.Next() {
		var (
			res    stock.Reservation
			status string
		)
		if err := rows.Scan(&res.ID, &res.OrderID, &res.ProductID, &res.Quantity, &status, &res.CreatedAt, &res.ExpiresAt); err != nil {
			return nil, fmt.Errorf("reservations: scan: %w", err)
		}
		res.Status = stock.ReservationStatus(status)
		out = append(out, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reservations: iterate: %w", err)
	}
	return out, nil
}

func (r *ReservationRepository) Update(ctx context.Context, res *stock.Reservation) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE reservations SET status = $2 WHERE id = $1`,
		res.ID, string(res.Status),
	)
	if err != nil {
		return fmt.Errorf("reservations: update: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("reservations: %s not found", res.ID)
	}
	return nil
}
