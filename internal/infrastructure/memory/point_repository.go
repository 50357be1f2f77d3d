package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/point"
)

type PointRepository struct {
	mu       sync.RWMutex
	accounts map[string]*point.Account
}

func NewPointRepository() *PointRepository {
	return &PointRepository{accounts: make(map[string]*point.Account)}
}

func (r *PointRepository) Get(ctx context.Context, userID string) (*point.Account, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[userID]
	if !ok {
		return nil, point.ErrAccountNotFound
	}
	return a.Clone(), nil
}

func (r *PointRepository) Save(ctx context.Context, a *point.Account) error {
	_ = ctx
	if a == nil || a.UserID == "" {
		return fmt.Errorf("point repository: user id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.accounts[a.UserID] = a.Clone()
	return nil
}
