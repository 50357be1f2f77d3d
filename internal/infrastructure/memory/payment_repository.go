package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/payment"
)

type PaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]*payment.Payment
	byOrder  map[string]string
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{
		payments: make(map[string]*payment.Payment),
		byOrder:  make(map[string]string),
	}
}

func (r *PaymentRepository) Insert(ctx context.Context, p *payment.Payment) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("payment repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.payments[p.ID]; exists {
		return fmt.Errorf("payment repository: %s already exists", p.ID)
	}
	r.payments[p.ID] = p.Clone()
	r.byOrder[p.OrderID] = p.ID
	return nil
}

func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("payment repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.payments[p.ID]; !exists {
		return payment.ErrNotFound
	}
	r.payments[p.ID] = p.Clone()
	return nil
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (*payment.Payment, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, payment.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*payment.Payment, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byOrder[orderID]
	if !ok {
		return nil, payment.ErrNotFound
	}
	p, ok := r.payments[id]
	if !ok {
		return nil, payment.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *PaymentRepository) FindUnsettledBetween(ctx context.Context, from, to time.Time, limit int) ([]*payment.Payment, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*payment.Payment
	for _, p := range r.payments {
		if p.Settled() {
			continue
		}
		if p.CreatedAt.Before(from) || !p.CreatedAt.Before(to) {
			continue
		}
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
