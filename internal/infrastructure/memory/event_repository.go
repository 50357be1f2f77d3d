package memory

import (
	"context"
	"sync"

	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/event"
)

// HandledEventRepository keeps (event id, consumer) dedup claims in a map. The
// single mutex makes MarkHandled atomic: one winner per pair.
type HandledEventRepository struct {
	mu      sync.Mutex
	handled map[string]event.Handled
}

func NewHandledEventRepository() *HandledEventRepository {
	return &HandledEventRepository{handled: make(map[string]event.Handled)}
}

func (r *HandledEventRepository) MarkHandled(ctx context.Context, eventID, consumer string) (bool, error) {
	_ = ctx
	key := eventID + "|" + consumer

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handled[key]; exists {
		return false, nil
	}
	r.handled[key] = event.NewHandled(eventID, consumer)
	return true, nil
}

func (r *HandledEventRepository) Release(ctx context.Context, eventID, consumer string) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.handled, eventID+"|"+consumer)
	return nil
}

type DeadLetterRepository struct {
	mu   sync.RWMutex
	rows []event.DeadLetter
}

func NewDeadLetterRepository() *DeadLetterRepository {
	return &DeadLetterRepository{}
}

func (r *DeadLetterRepository) Save(ctx context.Context, dl event.DeadLetter) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	r.rows = append(r.rows, dl)
	return nil
}

func (r *DeadLetterRepository) List(ctx context.Context) ([]event.DeadLetter, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]event.DeadLetter(nil), r.rows...), nil
}
