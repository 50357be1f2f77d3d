package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/stock"
)

type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]*stock.Product
}

func NewProductRepository() *ProductRepository {
	return &ProductRepository{products: make(map[string]*stock.Product)}
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*stock.Product, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, stock.ErrProductNotFound
	}
	return p.Clone(), nil
}

func (r *ProductRepository) Save(ctx context.Context, p *stock.Product) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("product repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.products[p.ID] = p.Clone()
	return nil
}

type ReservationRepository struct {
	mu      sync.RWMutex
	rows    map[string]*stock.Reservation
	byOrder map[string][]string
}

func NewReservationRepository() *ReservationRepository {
	return &ReservationRepository{
		rows:    make(map[string]*stock.Reservation),
		byOrder: make(map[string][]string),
	}
}

func (r *ReservationRepository) SaveAll(ctx context.Context, rs []*stock.Reservation) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, res := range rs {
		if res == nil || res.ID == "" {
			return fmt.Errorf("reservation repository: id is required")
		}
		if _, exists := r.rows[res.ID]; !exists {
			r.byOrder[res.OrderID] = append(r.byOrder[res.OrderID], res.ID)
		}
		r.rows[res.ID] = res.Clone()
	}
	return nil
}

func (r *ReservationRepository) FindByOrderID(ctx context.Context, orderID string) ([]*stock.Reservation, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byOrder[orderID]
	out := make([]*stock.Reservation, 0, len(ids))
	for _, id := range ids {
		if res, ok := r.rows[id]; ok {
			out = append(out, res.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (r *ReservationRepository) Update(ctx context.Context, res *stock.Reservation) error {
	_ = ctx
	if res == nil || res.ID == "" {
		return fmt.Errorf("reservation repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rows[res.ID]; !exists {
		return fmt.Errorf("reservation repository: %s not found", res.ID)
	}
	r.rows[res.ID] = res.Clone()
	return nil
}
