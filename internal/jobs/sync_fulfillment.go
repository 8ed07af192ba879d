package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tshopco/tshop/internal/service"
	"github.com/tshopco/tshop/internal/worker"
)

// defaultSyncLimit bounds one sweep when the payload does not set a limit.
const defaultSyncLimit = 100

// SyncFulfillmentHandler processes the periodic sweep that polls providers
// for non-terminal fulfillment records, catching state changes whose
// webhooks never arrived.
type SyncFulfillmentHandler struct {
	fulfillments service.FulfillmentService
	logger       *slog.Logger
}

// NewSyncFulfillmentHandler creates a new handler for fulfillment sync jobs.
func NewSyncFulfillmentHandler(fulfillments service.FulfillmentService, logger *slog.Logger) *SyncFulfillmentHandler {
	return &SyncFulfillmentHandler{
		fulfillments: fulfillments,
		logger:       logger,
	}
}

// Type returns the job type identifier.
func (h *SyncFulfillmentHandler) Type() string {
	return worker.JobTypeSyncFulfillment
}

// Handle executes the sync sweep.
func (h *SyncFulfillmentHandler) Handle(ctx context.Context, payload []byte) error {
	var p worker.SyncFulfillmentPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}
	if p.Limit <= 0 {
		p.Limit = defaultSyncLimit
	}

	checked, err := h.fulfillments.SyncPending(ctx, p.Limit)
	if err != nil {
		return fmt.Errorf("sync fulfillment records: %w", err)
	}

	h.logger.Info("Fulfillment sync completed", "records_checked", checked)
	return nil
}
