package outbox

import "context"

// Event is any domain event with a name identifier.
type Event interface {
	EventName() string
}

// Correlated is implemented by saga events that carry a unique event id for
// consumer-side deduplication and a correlation id threaded through the whole
// order flow for tracing.
type Correlated interface {
	EventID() string
	CorrelationID() string
}

// Handler processes a published event.
type Handler func(ctx context.Context, e Event) error

// Publisher publishes events to interested subscribers. Callers must publish
// only after the state the event describes has been committed.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers for event names.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}
