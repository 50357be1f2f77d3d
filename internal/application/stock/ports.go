package stock

import (
	"context"

	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/stock"
)

// Stream publishes stock movements to the analytics pipeline. Publishing is
// best effort and never fails the commercial flow.
type Stream interface {
	StockAdjusted(ctx context.Context, adjustments []stock.Adjustment) error
}

// CacheInvalidator evicts read-side product caches after a stock change.
type CacheInvalidator interface {
	EvictProductDetail(ctx context.Context, productID string) error
}
