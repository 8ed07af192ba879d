package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tshopco/tshop/internal/domain"
	"github.com/tshopco/tshop/internal/repository"
	"github.com/tshopco/tshop/internal/service"
	"github.com/tshopco/tshop/internal/worker"
)

// NotifyPartnerHandler delivers order status changes to registered partner
// webhooks.
type NotifyPartnerHandler struct {
	queries  *repository.Queries
	partners service.PartnerService
	logger   *slog.Logger
}

// NewNotifyPartnerHandler creates a new handler for partner notification jobs.
func NewNotifyPartnerHandler(queries *repository.Queries, partners service.PartnerService, logger *slog.Logger) *NotifyPartnerHandler {
	return &NotifyPartnerHandler{
		queries:  queries,
		partners: partners,
		logger:   logger,
	}
}

// Type returns the job type identifier.
func (h *NotifyPartnerHandler) Type() string {
	return worker.JobTypeNotifyPartner
}

// Handle executes the notification job.
func (h *NotifyPartnerHandler) Handle(ctx context.Context, payload []byte) error {
	var p worker.NotifyPartnerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}

	order, err := h.queries.GetOrder(ctx, p.OrderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return worker.NewPermanentError(fmt.Errorf("order not found: %w", err))
		}
		return fmt.Errorf("fetch order: %w", err)
	}

	event := domain.PartnerOrderEvent{
		OrderID:        order.ID,
		OrderStatus:    order.Status,
		TrackingNumber: order.TrackingNumber,
		TrackingURL:    order.TrackingURL,
		OccurredAt:     time.Now().UTC(),
	}
	// The stored state wins over the payload's status snapshot; deliveries
	// reflect what the database says at send time.
	if rec, err := h.queries.GetFulfillmentRecordByOrder(ctx, order.ID); err == nil {
		event.Provider = rec.Provider
		event.Status = rec.Status
	}
	if err := h.partners.NotifyOrderEvent(ctx, event); err != nil {
		// Delivery failures are retryable; the partner endpoint may be
		// briefly down.
		return fmt.Errorf("notify partners: %w", err)
	}
	return nil
}
