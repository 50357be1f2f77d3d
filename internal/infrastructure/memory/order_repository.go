package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/minsoo-kang/commerce-fulfillment/internal/domain/order"
)

type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[string]*domain.Order)}
}

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	_ = ctx
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[o.ID]; exists {
		return domain.ErrConflict
	}
	r.orders[o.ID] = o.Clone()
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o.Clone(), nil
}

func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	_ = ctx
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[o.ID]; !exists {
		return domain.ErrNotFound
	}
	r.orders[o.ID] = o.Clone()
	return nil
}
