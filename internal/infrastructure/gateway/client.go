package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/minsoo-kang/commerce-fulfillment/internal/config"
	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/payment"
	"github.com/minsoo-kang/commerce-fulfillment/internal/observability"
)

const peerGateway = "payment_gateway"

// Client talks HTTP to the external payment gateway. Transport failures,
// timeouts, and 5xx replies classify as ErrGatewayUnavailable so the caller's
// retry and breaker logic can tell them apart from hard rejections.
type Client struct {
	http       *http.Client
	baseURL    string
	merchantID string

	log          observability.Logger
	extCounter   observability.Counter
	extHistogram observability.Histogram
}

func NewClient(cfg config.GatewayConfig, tel observability.Observability) *Client {
	baseLog := observability.NopLogger()
	metrics := observability.NopMetrics()
	if tel != nil {
		baseLog = tel.Logger()
		metrics = tel.Metrics()
	}
	return &Client{
		http:         &http.Client{Timeout: cfg.Timeout},
		baseURL:      cfg.BaseURL,
		merchantID:   cfg.MerchantID,
		log:          baseLog.With(observability.F("component", "gateway_client")),
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

type submitPayload struct {
	OrderRef    string `json:"orderRef"`
	CardType    string `json:"cardType"`
	CardNo      string `json:"cardNo"`
	Amount      string `json:"amount"`
	CallbackURL string `json:"callbackUrl"`
}

type transactionPayload struct {
	TransactionKey string `json:"transactionKey"`
	OrderRef       string `json:"orderRef"`
	Status         string `json:"status"`
	Reason         string `json:"reason"`
}

func (c *Client) Submit(ctx context.Context, req payment.SubmitRequest) (payment.Transaction, error) {
	body, err := json.Marshal(submitPayload{
		OrderRef:    req.OrderRef,
		CardType:    req.CardType,
		CardNo:      req.CardNo,
		Amount:      req.Amount.String(),
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		return payment.Transaction{}, fmt.Errorf("gateway: encode submit: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.baseURL+"/api/v1/payments", "submit", bytes.NewReader(body))
}

func (c *Client) TransactionByKey(ctx context.Context, transactionKey string) (payment.Transaction, error) {
	u := c.baseURL + "/api/v1/payments/" + url.PathEscape(transactionKey)
	return c.do(ctx, http.MethodGet, u, "by_key", nil)
}

func (c *Client) TransactionByOrder(ctx context.Context, orderRef string) (payment.Transaction, error) {
	u := c.baseURL + "/api/v1/payments?orderRef=" + url.QueryEscape(orderRef)
	return c.do(ctx, http.MethodGet, u, "by_order", nil)
}

func (c *Client) do(ctx context.Context, method, u, endpoint string, body io.Reader) (payment.Transaction, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return payment.Transaction{}, fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Merchant-Id", c.merchantID)

	start := time.Now()
	resp, err := c.http.Do(req)
	outcome := "success"
	defer func() {
		c.extCounter.Add(1,
			observability.L("peer", peerGateway),
			observability.L("endpoint", endpoint),
			observability.L("outcome", outcome),
		)
		c.extHistogram.Observe(time.Since(start).Seconds(),
			observability.L("peer", peerGateway),
			observability.L("endpoint", endpoint),
		)
	}()
	if err != nil {
		outcome = "error"
		return payment.Transaction{}, fmt.Errorf("%w: %v", payment.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		outcome = "error"
		return payment.Transaction{}, fmt.Errorf("%w: read body: %v", payment.ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		outcome = "error"
		return payment.Transaction{}, fmt.Errorf("%w: status %d", payment.ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		outcome = "rejected"
		return payment.Transaction{}, fmt.Errorf("%w: status %d: %s", payment.ErrGatewayRejected, resp.StatusCode, string(raw))
	}

	var tp transactionPayload
	if err := json.Unmarshal(raw, &tp); err != nil {
		outcome = "error"
		return payment.Transaction{}, fmt.Errorf("%w: decode body: %v", payment.ErrGatewayUnavailable, err)
	}
	return payment.Transaction{
		TransactionKey: tp.TransactionKey,
		OrderRef:       tp.OrderRef,
		Status:         payment.GatewayStatus(tp.Status),
		Reason:         tp.Reason,
	}, nil
}
