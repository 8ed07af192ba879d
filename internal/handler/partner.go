// Package handler contains the HTTP handlers for the service's JSON API.
//
// This file implements partner registration and the partner-facing order
// lookup.
//
// Routes:
//   - POST /internal/partners     -> HandleCreatePartner (internal auth)
//   - GET  /partner/orders/{id}   -> HandlePartnerGetOrder (partner key auth)
package handler

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tshopco/tshop/internal/domain"
	"github.com/tshopco/tshop/internal/middleware"
	"github.com/tshopco/tshop/internal/repository"
	"github.com/tshopco/tshop/internal/service"
)

// PartnerHandler serves partner management and the partner order API.
type PartnerHandler struct {
	partners service.PartnerService
	queries  *repository.Queries
	logger   *slog.Logger
}

// NewPartnerHandler creates a new PartnerHandler.
func NewPartnerHandler(partners service.PartnerService, queries *repository.Queries, logger *slog.Logger) *PartnerHandler {
	return &PartnerHandler{
		partners: partners,
		queries:  queries,
		logger:   logger,
	}
}

// RegisterRoutes registers partner routes on the provided mux.
// internalAuth guards registration; partnerAuth guards the partner API.
func (h *PartnerHandler) RegisterRoutes(mux *http.ServeMux, internalAuth, partnerAuth func(http.Handler) http.Handler) {
	mux.Handle("POST /internal/partners", internalAuth(http.HandlerFunc(h.HandleCreatePartner)))
	mux.Handle("GET /partner/orders/{id}", partnerAuth(http.HandlerFunc(h.HandlePartnerGetOrder)))
}

// createPartnerRequest is the POST /internal/partners request body.
type createPartnerRequest struct {
	Name       string `json:"name"`
	WebhookURL string `json:"webhook_url"`
}

// HandleCreatePartner registers a partner and returns the plaintext API
// key and webhook secret. Both are shown exactly once.
func (h *PartnerHandler) HandleCreatePartner(w http.ResponseWriter, r *http.Request) {
	var req createPartnerRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		ErrorResponse(w, r, h.logger,
			&domain.ValidationError{Op: "PartnerHandler.HandleCreatePartner",
				Fields: map[string]string{"name": "Partner name is required"}})
		return
	}

	partner, key, err := h.partners.Create(r.Context(), req.Name, req.WebhookURL)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"partner": map[string]interface{}{
			"id":          partner.ID,
			"name":        partner.Name,
			"key_prefix":  partner.KeyPrefix,
			"webhook_url": partner.WebhookURL,
			"created_at":  partner.CreatedAt.UTC().Format(time.RFC3339),
		},
		"api_key":        key,
		"webhook_secret": partner.WebhookSecret,
	})
}

// HandlePartnerGetOrder returns the fulfillment view of one order for an
// authenticated partner.
func (h *PartnerHandler) HandlePartnerGetOrder(w http.ResponseWriter, r *http.Request) {
	partner := middleware.GetPartner(r.Context())
	if partner == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

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
			domain.Internal(err, "PartnerHandler.HandlePartnerGetOrder", "Failed to load order"))
		return
	}

	resp := map[string]interface{}{
		"order_id":        order.ID,
		"order_status":    order.Status,
		"tracking_number": order.TrackingNumber,
		"tracking_url":    order.TrackingURL,
		"updated_at":      order.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if rec, err := h.queries.GetFulfillmentRecordByOrder(r.Context(), order.ID); err == nil {
		resp["provider"] = rec.Provider
		resp["status"] = rec.Status
		resp["carrier"] = rec.Carrier
	}

	h.logger.Info("partner order lookup", "partner", partner.Name, "order_id", id)
	writeJSON(w, http.StatusOK, resp)
}
