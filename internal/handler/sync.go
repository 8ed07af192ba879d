// Package handler contains the HTTP handlers for the service's JSON API.
//
// This file implements the operational sync endpoints.
//
// Routes (behind the internal auth middleware):
//   - GET  /internal/sync -> HandleSyncStatus
//   - POST /internal/sync -> HandleRunSync
package handler

import (
	"log/slog"
	"net/http"

	"github.com/tshopco/tshop/internal/repository"
	"github.com/tshopco/tshop/internal/service"
)

// defaultSyncSweepLimit bounds one manually triggered sweep.
const defaultSyncSweepLimit = 100

// SyncHandler exposes the fulfillment reconciliation sweep to operators.
type SyncHandler struct {
	fulfillments service.FulfillmentService
	queries      *repository.Queries
	providers    []string
	logger       *slog.Logger
}

// NewSyncHandler creates a new SyncHandler. providers lists the enabled
// provider names for the status report.
func NewSyncHandler(fulfillments service.FulfillmentService, queries *repository.Queries, providers []string, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		fulfillments: fulfillments,
		queries:      queries,
		providers:    providers,
		logger:       logger,
	}
}

// RegisterRoutes registers sync routes on the provided mux, wrapped with
// the given auth middleware.
func (h *SyncHandler) RegisterRoutes(mux *http.ServeMux, auth func(http.Handler) http.Handler) {
	mux.Handle("GET /internal/sync", auth(http.HandlerFunc(h.HandleSyncStatus)))
	mux.Handle("POST /internal/sync", auth(http.HandlerFunc(h.HandleRunSync)))
}

// HandleSyncStatus reports queue depth and webhook volume per provider.
func (h *SyncHandler) HandleSyncStatus(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.queries.CountJobsByStatus(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	webhookEvents := make(map[string]int64, len(h.providers))
	for _, provider := range h.providers {
		count, err := h.queries.CountWebhookEvents(r.Context(), provider)
		if err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}
		webhookEvents[provider] = count
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":           jobs,
		"webhook_events": webhookEvents,
	})
}

// syncRequest is the optional POST /internal/sync request body.
type syncRequest struct {
	Limit int32 `json:"limit"`
}

// HandleRunSync runs one reconciliation sweep synchronously and reports how
// many records were checked. Per-record provider failures are logged and
// skipped, not surfaced here.
func (h *SyncHandler) HandleRunSync(w http.ResponseWriter, r *http.Request) {
	req := syncRequest{Limit: defaultSyncSweepLimit}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}
	}
	if req.Limit <= 0 {
		req.Limit = defaultSyncSweepLimit
	}

	checked, err := h.fulfillments.SyncPending(r.Context(), req.Limit)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("manual sync sweep completed", "records_checked", checked)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records_checked": checked,
	})
}
