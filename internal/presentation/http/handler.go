package httppresentation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	appcoupon "github.com/minsoo-kang/commerce-fulfillment/internal/application/coupon"
	apporder "github.com/minsoo-kang/commerce-fulfillment/internal/application/order"
	apppayment "github.com/minsoo-kang/commerce-fulfillment/internal/application/payment"
	domcoupon "github.com/minsoo-kang/commerce-fulfillment/internal/domain/coupon"
	domorder "github.com/minsoo-kang/commerce-fulfillment/internal/domain/order"
	dompayment "github.com/minsoo-kang/commerce-fulfillment/internal/domain/payment"
	domstock "github.com/minsoo-kang/commerce-fulfillment/internal/domain/stock"
	"github.com/minsoo-kang/commerce-fulfillment/internal/observability"
)

const componentHTTPHandler = "http_server"

type Handler struct {
	orders   *apporder.Service
	payments *apppayment.Service
	coupons  *appcoupon.Service

	log           observability.Logger
	httpCounter   observability.Counter
	httpHistogram observability.Histogram
}

func NewHandler(orders *apporder.Service, payments *apppayment.Service, coupons *appcoupon.Service, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	metrics := tel.Metrics()
	return &Handler{
		orders:        orders,
		payments:      payments,
		coupons:       coupons,
		log:           tel.Logger().With(observability.F("component", componentHTTPHandler)),
		httpCounter:   metrics.Counter(observability.MHTTPRequests),
		httpHistogram: metrics.Histogram(observability.MHTTPRequestDuration),
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.withTrace, h.withRequestLogger, h.withMetricsAndAccessLog)

	r.Get("/health", h.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/orders", h.handleCreateOrder)
		r.Get("/orders/{orderID}", h.handleGetOrder)
		r.Post("/payments/callback", h.handlePaymentCallback)
		r.Post("/coupons/{couponID}/issue", h.handleIssueCoupon)
	})
	return r
}

type orderLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type cardRequest struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

type createOrderRequest struct {
	UserID       string             `json:"user_id"`
	Items        []orderLineRequest `json:"items"`
	UserCouponID string             `json:"user_coupon_id"`
	Method       string             `json:"payment_method"`
	Card         *cardRequest       `json:"card,omitempty"`
}

type createOrderResponse struct {
	OrderID     string          `json:"order_id"`
	Status      domorder.Status `json:"status"`
	TotalAmount string          `json:"total_amount"`
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	lines := make([]apporder.Line, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, apporder.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	details := dompayment.Details{Method: dompayment.Method(req.Method)}
	if req.Card != nil {
		details.Card = &dompayment.CardDetails{Type: req.Card.Type, Number: req.Card.Number}
	}

	result, err := h.orders.CreateOrder(r.Context(), apporder.CreateOrderInput{
		UserID:       req.UserID,
		Lines:        lines,
		UserCouponID: req.UserCouponID,
		Payment:      details,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createOrderResponse{
		OrderID:     result.OrderID,
		Status:      result.Status,
		TotalAmount: result.TotalAmount,
	})
}

type orderItemResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type getOrderResponse struct {
	OrderID      string              `json:"order_id"`
	UserID       string              `json:"user_id"`
	Status       domorder.Status     `json:"status"`
	TotalAmount  string              `json:"total_amount"`
	CancelReason string              `json:"cancel_reason,omitempty"`
	Items        []orderItemResponse `json:"items"`
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.String(),
		})
	}
	writeJSON(w, http.StatusOK, getOrderResponse{
		OrderID:      o.ID,
		UserID:       o.UserID,
		Status:       o.Status,
		TotalAmount:  o.TotalAmount.String(),
		CancelReason: o.CancelReason,
		Items:        items,
	})
}

type paymentCallbackRequest struct {
	TransactionKey string `json:"transactionKey"`
	OrderRef       string `json:"orderRef"`
	Status         string `json:"status"`
	Reason         string `json:"reason"`
}

func (h *Handler) handlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	var req paymentCallbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err := h.payments.HandleCallback(r.Context(), apppayment.CallbackInput{
		OrderRef:       req.OrderRef,
		TransactionKey: req.TransactionKey,
		Status:         dompayment.GatewayStatus(req.Status),
		Reason:         req.Reason,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

type issueCouponRequest struct {
	UserID string `json:"user_id"`
}

type issueCouponResponse struct {
	UserCouponID string `json:"user_coupon_id"`
	CouponID     string `json:"coupon_id"`
	Status       string `json:"status"`
}

func (h *Handler) handleIssueCoupon(w http.ResponseWriter, r *http.Request) {
	var req issueCouponRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	uc, err := h.coupons.Issue(r.Context(), req.UserID, chi.URLParam(r, "couponID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, issueCouponResponse{
		UserCouponID: uc.ID,
		CouponID:     uc.CouponID,
		Status:       string(uc.Status),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domorder.ErrNotFound),
		errors.Is(err, domstock.ErrProductNotFound),
		errors.Is(err, domcoupon.ErrNotFound),
		errors.Is(err, domcoupon.ErrUserCouponNotFound),
		errors.Is(err, dompayment.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domstock.ErrInsufficientStock),
		errors.Is(err, domcoupon.ErrAlreadyIssued),
		errors.Is(err, domcoupon.ErrAlreadyUsed),
		errors.Is(err, domcoupon.ErrExhausted),
		errors.Is(err, domorder.ErrConflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, domorder.ErrEmptyItems),
		errors.Is(err, domorder.ErrInvalidUser),
		errors.Is(err, domorder.ErrInvalidQuantity),
		errors.Is(err, domstock.ErrInvalidQuantity),
		errors.Is(err, domcoupon.ErrNotYetValid),
		errors.Is(err, domcoupon.ErrExpired),
		errors.Is(err, domcoupon.ErrMinOrderAmount),
		errors.Is(err, dompayment.ErrInvalidAmount),
		errors.Is(err, dompayment.ErrUnsupportedMethod):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
