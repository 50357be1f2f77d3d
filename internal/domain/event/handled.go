package event

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadyHandled signals that another consumer instance already claimed the
// (event id, consumer) pair.
var ErrAlreadyHandled = errors.New("event: already handled")

// Handled records that a consumer processed a given event exactly once.
type Handled struct {
	EventID   string
	Consumer  string
	HandledAt time.Time
}

func NewHandled(eventID, consumer string) Handled {
	return Handled{
		EventID:   eventID,
		Consumer:  consumer,
		HandledAt: time.Now().UTC(),
	}
}

// HandledRepository persists dedup markers. MarkHandled must be atomic:
// exactly one concurrent caller for the same pair observes claimed=true.
type HandledRepository interface {
	MarkHandled(ctx context.Context, eventID, consumer string) (claimed bool, err error)
	Release(ctx context.Context, eventID, consumer string) error
}
