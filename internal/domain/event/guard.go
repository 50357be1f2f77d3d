package event

import (
	"context"
	"fmt"

	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/outbox"
	"github.com/minsoo-kang/commerce-fulfillment/internal/observability"
	"github.com/minsoo-kang/commerce-fulfillment/internal/observability/logctx"
)

// Guard applies explicit (event id, consumer) deduplication around saga
// handlers so at-least-once delivery cannot double-apply effects. The claim is
// taken before the handler body runs; if the body fails, the claim is released
// so a redelivery can retry from scratch.
type Guard struct {
	repo HandledRepository
	log  observability.Logger
}

func NewGuard(repo HandledRepository, logger observability.Logger) *Guard {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Guard{repo: repo, log: logger.With(observability.F("component", "idempotency_guard"))}
}

// Run executes fn once per (event, consumer). Events without identity are
// passed straight through; every saga event is expected to carry one.
func (g *Guard) Run(ctx context.Context, consumer string, e outbox.Event, fn func(ctx context.Context) error) error {
	ce, ok := e.(outbox.Correlated)
	if !ok || ce.EventID() == "" {
		return fn(ctx)
	}

	claimed, err := g.repo.MarkHandled(ctx, ce.EventID(), consumer)
	if err != nil {
		return fmt.Errorf("event guard: claim: %w", err)
	}
	if !claimed {
		logctx.FromOr(ctx, g.log).Debug("event_redelivery_skipped",
			observability.F("event", e.EventName()),
			observability.F("event_id", ce.EventID()),
			observability.F("consumer", consumer),
		)
		return nil
	}

	if err := fn(ctx); err != nil {
		if relErr := g.repo.Release(ctx, ce.EventID(), consumer); relErr != nil {
			logctx.FromOr(ctx, g.log).Error("event_claim_release_failed",
				observability.F("event_id", ce.EventID()),
				observability.F("consumer", consumer),
				observability.F("error", relErr.Error()),
			)
		}
		return err
	}
	return nil
}
