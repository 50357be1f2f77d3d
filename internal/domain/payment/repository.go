package payment

import (
	"context"
	"time"
)

type Repository interface {
	Insert(ctx context.Context, p *Payment) error
	Update(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	GetByOrderID(ctx context.Context, orderID string) (*Payment, error)
	// FindUnsettledBetween returns at most limit PENDING/PROCESSING payments
	// created inside [from, to), oldest first.
	FindUnsettledBetween(ctx context.Context, from, to time.Time, limit int) ([]*Payment, error)
}
