package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/eapache/go-resiliency/breaker"
	"github.com/eapache/go-resiliency/retrier"
	"github.com/minsoo-kang/commerce-fulfillment/internal/config"
	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/payment"
	"github.com/minsoo-kang/commerce-fulfillment/internal/observability"
)

// ResilientClient wraps a gateway client with a retrier and a circuit
// breaker. Only transient failures are retried; rejections pass straight
// through. An open breaker reports as ErrGatewayUnavailable so the processor
// falls back to PROCESSING instead of failing payments while the gateway is
// down.
type ResilientClient struct {
	inner   payment.GatewayClient
	breaker *breaker.Breaker
	retrier *retrier.Retrier
	log     observability.Logger
}

// transientClassifier retries ErrGatewayUnavailable and nothing else.
type transientClassifier struct{}

func (transientClassifier) Classify(err error) retrier.Action {
	switch {
	case err == nil:
		return retrier.Succeed
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return retrier.Retry
	default:
		return retrier.Fail
	}
}

func NewResilientClient(inner payment.GatewayClient, cfg config.GatewayConfig, tel observability.Observability) *ResilientClient {
	baseLog := observability.NopLogger()
	if tel != nil {
		baseLog = tel.Logger()
	}
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &ResilientClient{
		inner:   inner,
		breaker: breaker.New(cfg.BreakerErrors, cfg.BreakerSuccesses, cfg.BreakerTimeout),
		retrier: retrier.New(retrier.ExponentialBackoff(attempts, cfg.RetryBackoff), transientClassifier{}),
		log:     baseLog.With(observability.F("component", "gateway_resilient")),
	}
}

func (c *ResilientClient) Submit(ctx context.Context, req payment.SubmitRequest) (payment.Transaction, error) {
	var tx payment.Transaction
	err := c.retrier.RunCtx(ctx, func(ctx context.Context) error {
		return c.guard(func() error {
			var innerErr error
			tx, innerErr = c.inner.Submit(ctx, req)
			return innerErr
		})
	})
	if err != nil {
		return payment.Transaction{}, err
	}
	return tx, nil
}

func (c *ResilientClient) TransactionByKey(ctx context.Context, transactionKey string) (payment.Transaction, error) {
	var tx payment.Transaction
	err := c.guard(func() error {
		var innerErr error
		tx, innerErr = c.inner.TransactionByKey(ctx, transactionKey)
		return innerErr
	})
	if err != nil {
		return payment.Transaction{}, err
	}
	return tx, nil
}

func (c *ResilientClient) TransactionByOrder(ctx context.Context, orderRef string) (payment.Transaction, error) {
	var tx payment.Transaction
	err := c.guard(func() error {
		var innerErr error
		tx, innerErr = c.inner.TransactionByOrder(ctx, orderRef)
		return innerErr
	})
	if err != nil {
		return payment.Transaction{}, err
	}
	return tx, nil
}

// guard runs the call through the breaker. Rejections do not trip it: the
// gateway answered, it just said no.
func (c *ResilientClient) guard(work func() error) error {
	var rejection error
	err := c.breaker.Run(func() error {
		if err := work(); err != nil {
			if errors.Is(err, payment.ErrGatewayRejected) {
				rejection = err
				return nil
			}
			return err
		}
		return nil
	})
	switch {
	case rejection != nil:
		return rejection
	case errors.Is(err, breaker.ErrBreakerOpen):
		c.log.Warn("gateway_breaker_open")
		return fmt.Errorf("%w: circuit open", payment.ErrGatewayUnavailable)
	default:
		return err
	}
}
