package event

import (
	"context"
	"time"
)

// DeadLetter captures a compensation handler failure for manual intervention.
// There is deliberately no automatic re-drive: compensations are idempotent to
// repeat but not safe to interleave with an operator's manual fix.
type DeadLetter struct {
	ID         string
	Handler    string
	EventName  string
	EventID    string
	OrderID    string
	Reason     string
	OccurredAt time.Time
}

type DeadLetterRepository interface {
	Save(ctx context.Context, dl DeadLetter) error
	List(ctx context.Context) ([]DeadLetter, error)
}
