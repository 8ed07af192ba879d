package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tshopco/tshop/internal/domain"
	"github.com/tshopco/tshop/internal/service"
	"github.com/tshopco/tshop/internal/worker"
)

// DispatchOrderHandler processes jobs that send a paid order to the
// fulfillment provider its strategy selects.
type DispatchOrderHandler struct {
	fulfillments service.FulfillmentService
	logger       *slog.Logger
}

// NewDispatchOrderHandler creates a new handler for order dispatch jobs.
func NewDispatchOrderHandler(fulfillments service.FulfillmentService, logger *slog.Logger) *DispatchOrderHandler {
	return &DispatchOrderHandler{
		fulfillments: fulfillments,
		logger:       logger,
	}
}

// Type returns the job type identifier.
func (h *DispatchOrderHandler) Type() string {
	return worker.JobTypeDispatchOrder
}

// Handle executes the dispatch job. Dispatch itself is idempotent, so a
// retried job after a partial failure is safe.
func (h *DispatchOrderHandler) Handle(ctx context.Context, payload []byte) error {
	var p worker.DispatchOrderPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}

	h.logger.Info("Dispatching order", "order_id", p.OrderID)

	if err := h.fulfillments.Dispatch(ctx, p.OrderID); err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) {
			switch derr.Code {
			case domain.ENOTFOUND, domain.EINVALID:
				// Missing or unpaid orders never become dispatchable by
				// retrying.
				return worker.NewPermanentError(err)
			}
		}
		// Provider outages and quoting failures are retryable.
		return fmt.Errorf("dispatch order: %w", err)
	}
	return nil
}
