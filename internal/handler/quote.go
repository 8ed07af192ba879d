// Package handler contains the HTTP handlers for the service's JSON API.
//
// This file implements the quoting endpoint.
//
// Route:
//   - POST /api/quotes -> HandleGetQuotes
package handler

import (
	"log/slog"
	"net/http"

	"github.com/tshopco/tshop/internal/domain"
	"github.com/tshopco/tshop/internal/middleware"
	"github.com/tshopco/tshop/internal/service"
)

// QuoteHandler serves fulfillment quotes for a cart.
type QuoteHandler struct {
	quotes service.QuoteService
	logger *slog.Logger
}

// NewQuoteHandler creates a new QuoteHandler.
func NewQuoteHandler(quotes service.QuoteService, logger *slog.Logger) *QuoteHandler {
	return &QuoteHandler{
		quotes: quotes,
		logger: logger,
	}
}

// RegisterRoutes registers quote routes on the provided mux.
func (h *QuoteHandler) RegisterRoutes(mux *http.ServeMux, limits *middleware.APIRateLimiter) {
	mux.Handle("POST /api/quotes", limits.LimitQuotes(http.HandlerFunc(h.HandleGetQuotes)))
}

// quoteRequest is the POST /api/quotes request body.
type quoteRequest struct {
	ShippingAddress domain.Address    `json:"shipping_address"`
	Items           []domain.LineItem `json:"items"`
	Currency        string            `json:"currency"`
	Strategy        domain.Strategy   `json:"strategy"`
}

// quoteResponse is the POST /api/quotes response body.
type quoteResponse struct {
	Quotes   []domain.Quote  `json:"quotes"`
	Selected *domain.Quote   `json:"selected"`
	Strategy domain.Strategy `json:"strategy"`
}

// HandleGetQuotes fans the cart out to every provider and returns all
// quotes plus the one the strategy recommends.
func (h *QuoteHandler) HandleGetQuotes(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
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

	quotes, err := h.quotes.GetQuotes(r.Context(), domain.QuoteRequest{
		ShippingTo: req.ShippingAddress,
		Items:      req.Items,
		Currency:   req.Currency,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	selected, err := h.quotes.Select(quotes, req.Strategy)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, quoteResponse{
		Quotes:   quotes,
		Selected: selected,
		Strategy: req.Strategy,
	})
}
