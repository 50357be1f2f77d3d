package cache

import (
	"context"
	"fmt"

	"github.com/minsoo-kang/commerce-fulfillment/internal/observability"
	"github.com/redis/go-redis/v9"
)

const productDetailKeyPrefix = "product:detail:"

// RedisInvalidator evicts read-side product caches kept by the storefront.
// The fulfillment service only deletes keys; it never writes them.
type RedisInvalidator struct {
	client *redis.Client
	log    observability.Logger
}

func NewRedisInvalidator(addr string, tel observability.Observability) *RedisInvalidator {
	baseLog := observability.NopLogger()
	if tel != nil {
		baseLog = tel.Logger()
	}
	return &RedisInvalidator{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		log:    baseLog.With(observability.F("component", "redis_cache")),
	}
}

func (r *RedisInvalidator) EvictProductDetail(ctx context.Context, productID string) error {
	if err := r.client.Del(ctx, productDetailKeyPrefix+productID).Err(); err != nil {
		return fmt.Errorf("cache: evict product %s: %w", productID, err)
	}
	r.log.Debug("product_cache_evicted", observability.F("product_id", productID))
	return nil
}

func (r *RedisInvalidator) Close() error {
	return r.client.Close()
}
