// Package service contains the business logic layer.
//
// This file implements order dispatch and webhook-driven order-state
// reconciliation. Reconciliation is tolerant by construction: duplicate
// deliveries are absorbed by the webhook event log, out-of-order and stale
// events are rejected by the status state machine, and concurrent
// deliveries are serialized with compare-and-set updates.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/tshopco/tshop/internal/domain"
	"github.com/tshopco/tshop/internal/fulfillment"
	"github.com/tshopco/tshop/internal/metrics"
	"github.com/tshopco/tshop/internal/repository"
)

// =============================================================================
// Interface Definition
// =============================================================================

// FulfillmentService defines order dispatch and state reconciliation.
type FulfillmentService interface {
	// Dispatch quotes a paid order, selects a provider by the order's
	// strategy, and submits it for production. Calling Dispatch again for
	// an already-dispatched order is a no-op.
	Dispatch(ctx context.Context, orderID uuid.UUID) error

	// ApplyProviderEvent reconciles one normalized provider event into the
	// fulfillment record and its order. Duplicate, stale, and unknown
	// events are absorbed without mutation.
	ApplyProviderEvent(ctx context.Context, event domain.ProviderEvent) error

	// SyncPending polls providers for every non-terminal fulfillment
	// record, reconciling any progress that webhooks missed. Returns the
	// number of records checked.
	SyncPending(ctx context.Context, limit int32) (int, error)

	// CancelOrder requests cancellation at the provider and reconciles
	// the result.
	CancelOrder(ctx context.Context, orderID uuid.UUID) error
}

// fulfillmentStore is the slice of the repository reconciliation needs.
type fulfillmentStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status, expected domain.OrderStatus) (bool, error)
	UpdateOrderTracking(ctx context.Context, params domain.UpdateOrderShippingParams) error
	CreateFulfillmentRecord(ctx context.Context, rec *domain.FulfillmentRecord) error
	GetFulfillmentRecordByOrder(ctx context.Context, orderID uuid.UUID) (*domain.FulfillmentRecord, error)
	GetFulfillmentRecordByProviderOrder(ctx context.Context, provider, providerOrderID string) (*domain.FulfillmentRecord, error)
	UpdateFulfillmentRecordStatus(ctx context.Context, rec *domain.FulfillmentRecord, expected domain.FulfillmentStatus) (bool, error)
	ListFulfillmentRecordsByStatuses(ctx context.Context, statuses []string, limit int32) ([]domain.FulfillmentRecord, error)
	InsertWebhookEvent(ctx context.Context, provider, eventID, eventType string, payload []byte) (bool, error)
}

// =============================================================================
// Implementation
// =============================================================================

type fulfillmentService struct {
	queries   fulfillmentStore
	quotes    QuoteService
	providers map[string]fulfillment.Provider
	logger    *slog.Logger
}

// NewFulfillmentService creates a new FulfillmentService.
func NewFulfillmentService(queries *repository.Queries, quotes QuoteService, providers []fulfillment.Provider, logger *slog.Logger) FulfillmentService {
	byName := make(map[string]fulfillment.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &fulfillmentService{
		queries:   queries,
		quotes:    quotes,
		providers: byName,
		logger:    logger,
	}
}

// Dispatch submits a paid order to the provider its strategy selects.
func (s *fulfillmentService) Dispatch(ctx context.Context, orderID uuid.UUID) error {
	const op = "FulfillmentService.Dispatch"

	order, err := s.queries.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(op, "order", orderID.String())
		}
		return domain.Internal(err, op, "Failed to load order")
	}
	if !order.IsPaid() {
		return domain.Invalid(op, "Order has not been paid")
	}

	// Idempotency: an order is dispatched at most once. Retried jobs and
	// duplicate payment webhooks land here.
	if _, err := s.queries.GetFulfillmentRecordByOrder(ctx, orderID); err == nil {
		s.logger.Info("order already dispatched", "op", op, "order_id", orderID)
		return nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return domain.Internal(err, op, "Failed to check fulfillment records")
	}

	req := domain.QuoteRequest{
		ShippingTo: order.ShippingTo,
		Items:      order.Items,
		Currency:   order.Currency,
	}
	quotes, err := s.quotes.GetQuotes(ctx, req)
	if err != nil {
		return err
	}
	winner, err := s.quotes.Select(quotes, order.Strategy)
	if err != nil {
		return err
	}

	provider, ok := s.providers[winner.Provider]
	if !ok {
		return domain.Errorf(domain.EINTERNAL, op, "selected provider %q is not configured", winner.Provider)
	}

	providerOrderID, err := provider.CreateOrder(ctx, order)
	if err != nil {
		return domain.Wrap(err, domain.EPROVIDER, op, "Provider rejected the order")
	}

	rec := &domain.FulfillmentRecord{
		OrderID:         orderID,
		Provider:        provider.Name(),
		ProviderOrderID: providerOrderID,
		Status:          domain.FulfillmentStatusCreated,
	}
	if err := s.queries.CreateFulfillmentRecord(ctx, rec); err != nil {
		return domain.Internal(err, op, "Failed to record fulfillment")
	}

	metrics.OrdersDispatched.WithLabelValues(provider.Name()).Inc()
	s.logger.Info("order dispatched",
		"op", op,
		"order_id", orderID,
		"provider", provider.Name(),
		"provider_order_id", providerOrderID,
		"strategy", order.Strategy,
		"total", domain.FormatCents(winner.TotalCents, order.Currency),
	)
	return nil
}

// ApplyProviderEvent reconciles one provider event.
func (s *fulfillmentService) ApplyProviderEvent(ctx context.Context, event domain.ProviderEvent) error {
	const op = "FulfillmentService.ApplyProviderEvent"

	// Deduplicate by provider event ID when the provider sends one. A
	// redelivery of a recorded event is acknowledged without reprocessing.
	if event.EventID != "" {
		first, err := s.queries.InsertWebhookEvent(ctx, event.Provider, event.EventID, event.Type, event.Raw)
		if err != nil {
			return domain.Internal(err, op, "Failed to record webhook event")
		}
		if !first {
			metrics.WebhookEventsTotal.WithLabelValues(event.Provider, "duplicate").Inc()
			s.logger.Info("duplicate webhook event ignored",
				"op", op, "provider", event.Provider, "event_id", event.EventID)
			return nil
		}
	}

	mapping, known := domain.MapProviderStatus(event.Provider, event.ProviderStatus)
	if !known {
		// Unknown statuses are acknowledged and logged, never failed:
		// providers add statuses without notice and retrying won't help.
		metrics.WebhookEventsTotal.WithLabelValues(event.Provider, "unknown").Inc()
		s.logger.Warn("unknown provider status",
			"op", op, "provider", event.Provider, "provider_status", event.ProviderStatus)
		return nil
	}

	rec, err := s.queries.GetFulfillmentRecordByProviderOrder(ctx, event.Provider, event.ProviderOrderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			metrics.WebhookEventsTotal.WithLabelValues(event.Provider, "unknown").Inc()
			s.logger.Warn("webhook for unknown provider order",
				"op", op, "provider", event.Provider, "provider_order_id", event.ProviderOrderID)
			return nil
		}
		return domain.Internal(err, op, "Failed to load fulfillment record")
	}

	// Concurrent deliveries race on the same record; the compare-and-set
	// update serializes them. On a lost race, re-read and re-evaluate.
	for attempt := 0; attempt < 3; attempt++ {
		applied, retryable, err := s.applyToRecord(ctx, rec, event, mapping)
		if err != nil {
			return err
		}
		if applied || !retryable {
			return nil
		}
		rec, err = s.queries.GetFulfillmentRecordByProviderOrder(ctx, event.Provider, event.ProviderOrderID)
		if err != nil {
			return domain.Internal(err, op, "Failed to reload fulfillment record")
		}
	}
	return domain.Errorf(domain.EINTERNAL, op, "record %s kept changing under reconciliation", rec.ID)
}

// applyToRecord attempts one reconciliation pass against a snapshot of the
// record. Returns applied=true when the event was fully absorbed, and
// retryable=true when a concurrent writer invalidated the snapshot.
func (s *fulfillmentService) applyToRecord(ctx context.Context, rec *domain.FulfillmentRecord, event domain.ProviderEvent, mapping domain.StatusMapping) (applied, retryable bool, err error) {
	const op = "FulfillmentService.ApplyProviderEvent"

	expected := rec.Status
	advancing := rec.Status.CanTransitionTo(mapping.Fulfillment)
	refreshing := mapping.Fulfillment == rec.Status && hasNewShipmentData(rec, event)

	if !advancing && !refreshing {
		// Stale or out-of-order event. The record has already moved past
		// this state; nothing to mutate.
		metrics.WebhookEventsTotal.WithLabelValues(event.Provider, "stale").Inc()
		s.logger.Info("stale provider event ignored",
			"op", op,
			"provider", event.Provider,
			"provider_order_id", event.ProviderOrderID,
			"current", rec.Status,
			"event_status", mapping.Fulfillment,
		)
		return true, false, nil
	}

	if advancing {
		rec.Status = mapping.Fulfillment
	}
	rec.ProviderStatus = event.ProviderStatus
	mergeShipmentData(rec, event)

	ok, err := s.queries.UpdateFulfillmentRecordStatus(ctx, rec, expected)
	if err != nil {
		return false, false, domain.Internal(err, op, "Failed to update fulfillment record")
	}
	if !ok {
		return false, true, nil
	}

	metrics.WebhookEventsTotal.WithLabelValues(event.Provider, "applied").Inc()
	s.logger.Info("fulfillment record updated",
		"op", op,
		"order_id", rec.OrderID,
		"provider", rec.Provider,
		"status", rec.Status,
		"provider_status", rec.ProviderStatus,
	)

	if err := s.propagateToOrder(ctx, rec, mapping.Order); err != nil {
		return false, false, err
	}
	return true, false, nil
}

// propagateToOrder advances the owning order's status and carries tracking
// data onto it for display.
func (s *fulfillmentService) propagateToOrder(ctx context.Context, rec *domain.FulfillmentRecord, target domain.OrderStatus) error {
	const op = "FulfillmentService.ApplyProviderEvent"

	order, err := s.queries.GetOrder(ctx, rec.OrderID)
	if err != nil {
		return domain.Internal(err, op, "Failed to load order")
	}

	if order.Status.CanTransitionTo(target) {
		if _, err := s.queries.UpdateOrderStatus(ctx, order.ID, target, order.Status); err != nil {
			return domain.Internal(err, op, "Failed to update order status")
		}
		s.logger.Info("order status updated", "op", op, "order_id", order.ID, "status", target)
	}

	if rec.TrackingNumber != "" && (order.TrackingNumber != rec.TrackingNumber || order.TrackingURL != rec.TrackingURL) {
		err := s.queries.UpdateOrderTracking(ctx, domain.UpdateOrderShippingParams{
			ID:             order.ID,
			TrackingNumber: rec.TrackingNumber,
			TrackingURL:    rec.TrackingURL,
		})
		if err != nil {
			return domain.Internal(err, op, "Failed to update order tracking")
		}
	}
	return nil
}

// hasNewShipmentData reports whether the event carries shipment fields the
// record does not have yet.
func hasNewShipmentData(rec *domain.FulfillmentRecord, event domain.ProviderEvent) bool {
	if event.TrackingNumber != "" && event.TrackingNumber != rec.TrackingNumber {
		return true
	}
	if event.TrackingURL != "" && event.TrackingURL != rec.TrackingURL {
		return true
	}
	if event.Carrier != "" && event.Carrier != rec.Carrier {
		return true
	}
	if event.EstimatedDelivery != nil && (rec.EstimatedDelivery == nil || !rec.EstimatedDelivery.Equal(*event.EstimatedDelivery)) {
		return true
	}
	return false
}

// mergeShipmentData copies non-empty shipment fields from the event onto the
// record. Events without tracking data never erase what an earlier event
// provided.
func mergeShipmentData(rec *domain.FulfillmentRecord, event domain.ProviderEvent) {
	if event.TrackingNumber != "" {
		rec.TrackingNumber = event.TrackingNumber
	}
	if event.TrackingURL != "" {
		rec.TrackingURL = event.TrackingURL
	}
	if event.Carrier != "" {
		rec.Carrier = event.Carrier
	}
	if event.EstimatedDelivery != nil {
		rec.EstimatedDelivery = event.EstimatedDelivery
	}
}

// nonTerminalStatuses are the record states the sync sweep polls.
var nonTerminalStatuses = []string{
	string(domain.FulfillmentStatusCreated),
	string(domain.FulfillmentStatusInProduction),
	string(domain.FulfillmentStatusPartiallyShipped),
}

// SyncPending polls providers for non-terminal records.
func (s *fulfillmentService) SyncPending(ctx context.Context, limit int32) (int, error) {
	const op = "FulfillmentService.SyncPending"

	records, err := s.queries.ListFulfillmentRecordsByStatuses(ctx, nonTerminalStatuses, limit)
	if err != nil {
		return 0, domain.Internal(err, op, "Failed to list fulfillment records")
	}

	checked := 0
	for i := range records {
		rec := &records[i]
		if err := s.syncRecord(ctx, rec); err != nil {
			// One provider's outage should not stall the whole sweep.
			s.logger.Error("sync failed for record",
				"op", op, "record_id", rec.ID, "provider", rec.Provider, "error", err)
			continue
		}
		checked++
	}
	return checked, nil
}

// syncRecord polls one record's provider and feeds the result through the
// same reconciliation path webhooks use.
func (s *fulfillmentService) syncRecord(ctx context.Context, rec *domain.FulfillmentRecord) error {
	const op = "FulfillmentService.SyncPending"

	provider, ok := s.providers[rec.Provider]
	if !ok {
		return domain.Errorf(domain.EINTERNAL, op, "provider %q is not configured", rec.Provider)
	}

	var state *fulfillment.OrderState
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		state, err = provider.GetOrder(ctx, rec.ProviderOrderID)
		if err != nil && fulfillment.IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return err
	}

	return s.ApplyProviderEvent(ctx, domain.ProviderEvent{
		Provider:          rec.Provider,
		Type:              "sync",
		ProviderOrderID:   state.ProviderOrderID,
		ProviderStatus:    state.ProviderStatus,
		TrackingNumber:    state.TrackingNumber,
		TrackingURL:       state.TrackingURL,
		Carrier:           state.Carrier,
		EstimatedDelivery: state.EstimatedDelivery,
		OccurredAt:        time.Now(),
	})
}

// CancelOrder asks the provider to cancel and reconciles the outcome.
func (s *fulfillmentService) CancelOrder(ctx context.Context, orderID uuid.UUID) error {
	const op = "FulfillmentService.CancelOrder"

	rec, err := s.queries.GetFulfillmentRecordByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(op, "fulfillment record for order", orderID.String())
		}
		return domain.Internal(err, op, "Failed to load fulfillment record")
	}
	if rec.Status.IsTerminal() {
		return nil
	}

	provider, ok := s.providers[rec.Provider]
	if !ok {
		return domain.Errorf(domain.EINTERNAL, op, "provider %q is not configured", rec.Provider)
	}
	if err := provider.CancelOrder(ctx, rec.ProviderOrderID); err != nil {
		return domain.Wrap(err, domain.EPROVIDER, op, "Provider refused cancellation")
	}

	return s.syncRecord(ctx, rec)
}
