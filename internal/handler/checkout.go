// Package handler contains the HTTP handlers for the service's JSON API.
//
// This file implements checkout and order retrieval.
//
// Routes:
//   - POST /api/checkout    -> HandleCheckout
//   - GET  /api/orders/{id} -> HandleGetOrder
package handler

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tshopco/tshop/internal/billing"
	"github.com/tshopco/tshop/internal/domain"
	"github.com/tshopco/tshop/internal/middleware"
	"github.com/tshopco/tshop/internal/repository"
	"github.com/tshopco/tshop/internal/service"
)

// CheckoutHandler creates orders and Stripe Checkout sessions for them.
type CheckoutHandler struct {
	queries *repository.Queries
	quotes  service.QuoteService
	billing billing.Service
	baseURL string
	logger  *slog.Logger
}

// NewCheckoutHandler creates a new CheckoutHandler.
// billingService may be nil when Stripe is not configured; checkout then
// returns 501 while order retrieval keeps working.
func NewCheckoutHandler(queries *repository.Queries, quotes service.QuoteService, billingService billing.Service, baseURL string, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		queries: queries,
		quotes:  quotes,
		billing: billingService,
		baseURL: baseURL,
		logger:  logger,
	}
}

// RegisterRoutes registers checkout routes on the provided mux.
func (h *CheckoutHandler) RegisterRoutes(mux *http.ServeMux, limits *middleware.APIRateLimiter) {
	mux.Handle("POST /api/checkout", limits.LimitCheckout(http.HandlerFunc(h.HandleCheckout)))
	mux.HandleFunc("GET /api/orders/{id}", h.HandleGetOrder)
}

// checkoutRequest is the POST /api/checkout request body.
type checkoutRequest struct {
	ShippingAddress domain.Address    `json:"shipping_address"`
	Items           []domain.LineItem `json:"items"`
	Currency        string            `json:"currency"`
	Strategy        domain.Strategy   `json:"strategy"`
	SuccessURL      string            `json:"success_url"`
	CancelURL       string            `json:"cancel_url"`
}

// HandleCheckout prices the cart with the selected strategy, creates a
// pending order, and returns a Stripe Checkout URL for it. The order stays
// pending until the payment webhook arrives.
func (h *CheckoutHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		ErrorResponse(w, r, h.logger,
			domain.Errorf(domain.ENOTIMPL, "", "Payments are not configured"))
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if req.Strategy == "" {
		req.Strategy = domain.StrategyCost
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}
	if req.SuccessURL == "" {
		req.SuccessURL = h.baseURL + "/checkout/success"
	}
	if req.CancelURL == "" {
		req.CancelURL = h.baseURL + "/checkout/cancel"
	}

	quotes, err := h.quotes.GetQuotes(r.Context(), domain.QuoteRequest{
		ShippingTo: req.ShippingAddress,
		Items:      req.Items,
		Currency:   req.Currency,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	winner, err := h.quotes.Select(quotes, req.Strategy)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	order, err := h.queries.CreateOrder(r.Context(), domain.CreateOrderParams{
		Currency:      req.Currency,
		SubtotalCents: winner.TotalCents - winner.ShippingCents - winner.TaxCents,
		ShippingCents: winner.ShippingCents,
		TaxCents:      winner.TaxCents,
		Strategy:      req.Strategy,
		ShippingTo:    req.ShippingAddress,
		Items:         req.Items,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger,
			domain.Internal(err, "CheckoutHandler.HandleCheckout", "Failed to create order"))
		return
	}

	sessionID, checkoutURL, err := h.billing.CreateOrderCheckout(order, req.SuccessURL, req.CancelURL)
	if err != nil {
		ErrorResponse(w, r, h.logger,
			domain.Wrap(err, domain.EPAYMENT, "CheckoutHandler.HandleCheckout", "Failed to start checkout"))
		return
	}
	if err := h.queries.UpdateOrderStripeSession(r.Context(), order.ID, sessionID); err != nil {
		ErrorResponse(w, r, h.logger,
			domain.Internal(err, "CheckoutHandler.HandleCheckout", "Failed to record checkout session"))
		return
	}

	h.logger.Info("checkout session created",
		"order_id", order.ID,
		"provider", winner.Provider,
		"strategy", req.Strategy,
		"total_cents", order.TotalCents,
	)

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"order_id":     order.ID,
		"checkout_url": checkoutURL,
		"provider":     winner.Provider,
		"total_cents":  order.TotalCents,
		"currency":     order.Currency,
	})
}

// orderResponse is the wire shape of an order for status polling.
type orderResponse struct {
	ID              uuid.UUID          `json:"id"`
	Status          domain.OrderStatus `json:"status"`
	Currency        string             `json:"currency"`
	SubtotalCents   int64              `json:"subtotal_cents"`
	ShippingCents   int64              `json:"shipping_cents"`
	TaxCents        int64              `json:"tax_cents"`
	TotalCents      int64              `json:"total_cents"`
	TrackingNumber  string             `json:"tracking_number,omitempty"`
	TrackingURL     string             `json:"tracking_url,omitempty"`
	CreatedAt       string             `json:"created_at"`
	Provider        string             `json:"provider,omitempty"`
	ProviderStatus  string             `json:"provider_status,omitempty"`
	FulfillmentNote string             `json:"fulfillment_status,omitempty"`
}

// HandleGetOrder returns the order's status and tracking data. The
// fulfillment record, when one exists, contributes the provider view.
func (h *CheckoutHandler) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("", "Invalid order ID"))
		return
	}

	order, err := h.queries.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			NotFoundResponse(w, r, h.logger)
			return
		}
		ErrorResponse(w, r, h.logger,
			domain.Internal(err, "CheckoutHandler.HandleGetOrder", "Failed to load order"))
		return
	}

	resp := orderResponse{
		ID:             order.ID,
		Status:         order.Status,
		Currency:       order.Currency,
		SubtotalCents:  order.SubtotalCents,
		ShippingCents:  order.ShippingCents,
		TaxCents:       order.TaxCents,
		TotalCents:     order.TotalCents,
		TrackingNumber: order.TrackingNumber,
		TrackingURL:    order.TrackingURL,
		CreatedAt:      order.CreatedAt.UTC().Format(time.RFC3339),
	}
	if rec, err := h.queries.GetFulfillmentRecordByOrder(r.Context(), order.ID); err == nil {
		resp.Provider = rec.Provider
		resp.ProviderStatus = rec.ProviderStatus
		resp.FulfillmentNote = string(rec.Status)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"order": resp})
}
