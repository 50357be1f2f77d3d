package order

import (
	"context"

	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/order"
)

// Stream publishes completed orders to the analytics pipeline. Publishing is
// best effort and never fails the saga.
type Stream interface {
	OrderCompleted(ctx context.Context, o *order.Order) error
}

// IDGenerator issues identifiers for new orders.
type IDGenerator interface {
	NewID() string
}
