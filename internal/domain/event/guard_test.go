package event

import (
	"context"
	"errors"
	"testing"

	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/outbox"
)

type fakeHandledRepo struct {
	claims map[string]bool
}

func newFakeHandledRepo() *fakeHandledRepo {
	return &fakeHandledRepo{claims: make(map[string]bool)}
}

func (r *fakeHandledRepo) MarkHandled(_ context.Context, eventID, consumer string) (bool, error) {
	key := eventID + "|" + consumer
	if r.claims[key] {
		return false, nil
	}
	r.claims[key] = true
	return true, nil
}

func (r *fakeHandledRepo) Release(_ context.Context, eventID, consumer string) error {
	delete(r.claims, eventID+"|"+consumer)
	return nil
}

type testEvent struct {
	id string
}

func (testEvent) EventName() string     { return "test.event" }
func (e testEvent) EventID() string     { return e.id }
func (testEvent) CorrelationID() string { return "corr" }

type plainEvent struct{}

func (plainEvent) EventName() string { return "plain.event" }

func TestGuardRunsOnce(t *testing.T) {
	g := NewGuard(newFakeHandledRepo(), nil)
	e := testEvent{id: "e1"}

	calls := 0
	fn := func(context.Context) error {
		calls++
		return nil
	}

	if err := g.Run(context.Background(), "c1", e, fn); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := g.Run(context.Background(), "c1", e, fn); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestGuardIsPerConsumer(t *testing.T) {
	g := NewGuard(newFakeHandledRepo(), nil)
	e := testEvent{id: "e1"}

	calls := 0
	fn := func(context.Context) error {
		calls++
		return nil
	}

	_ = g.Run(context.Background(), "c1", e, fn)
	_ = g.Run(context.Background(), "c2", e, fn)
	if calls != 2 {
		t.Errorf("distinct consumers should each run, got %d calls", calls)
	}
}

func TestGuardReleasesClaimOnError(t *testing.T) {
	g := NewGuard(newFakeHandledRepo(), nil)
	e := testEvent{id: "e1"}

	boom := errors.New("boom")
	if err := g.Run(context.Background(), "c1", e, func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}

	calls := 0
	if err := g.Run(context.Background(), "c1", e, func(context.Context) error { calls++; return nil }); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if calls != 1 {
		t.Error("redelivery after failure should run the handler again")
	}
}

func TestGuardPassesThroughUnidentifiedEvents(t *testing.T) {
	g := NewGuard(newFakeHandledRepo(), nil)

	calls := 0
	var e outbox.Event = plainEvent{}
	_ = g.Run(context.Background(), "c1", e, func(context.Context) error { calls++; return nil })
	_ = g.Run(context.Background(), "c1", e, func(context.Context) error { calls++; return nil })
	if calls != 2 {
		t.Errorf("events without identity bypass dedup, got %d calls", calls)
	}
}
