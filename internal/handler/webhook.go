// Package handler contains the HTTP handlers for the service's JSON API.
//
// This file implements the inbound webhook endpoints.
//
// Routes:
//   - POST /webhooks/stripe     -> HandleStripeWebhook
//   - POST /webhooks/{provider} -> HandleProviderWebhook
//
// These routes are PUBLIC (no auth middleware) because the senders call
// them directly. Authentication is the signature over the raw body: Stripe's
// own scheme for /webhooks/stripe, HMAC-SHA256 with the per-provider secret
// for fulfillment providers.
package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v79"

	"github.com/tshopco/tshop/internal/billing"
	"github.com/tshopco/tshop/internal/domain"
	"github.com/tshopco/tshop/internal/fulfillment/mock"
	"github.com/tshopco/tshop/internal/fulfillment/printful"
	"github.com/tshopco/tshop/internal/fulfillment/printify"
	"github.com/tshopco/tshop/internal/metrics"
	"github.com/tshopco/tshop/internal/repository"
	"github.com/tshopco/tshop/internal/service"
	"github.com/tshopco/tshop/internal/worker"
)

// ProviderSignatureHeader carries the hex HMAC-SHA256 of the raw request
// body, keyed with the provider's webhook secret.
const ProviderSignatureHeader = "X-Webhook-Signature"

// maxWebhookBody bounds webhook payloads.
const maxWebhookBody = 256 << 10 // 256KB

// webhookParsers maps provider names to their payload normalizers.
var webhookParsers = map[string]func([]byte) (*domain.ProviderEvent, error){
	domain.ProviderPrintful: printful.ParseWebhook,
	domain.ProviderPrintify: printify.ParseWebhook,
	domain.ProviderMock:     mock.ParseWebhook,
}

// WebhookHandler handles incoming webhook events from Stripe and the
// fulfillment providers.
type WebhookHandler struct {
	billing      billing.Service
	fulfillments service.FulfillmentService
	queries      *repository.Queries
	secrets      map[string]string // provider name -> webhook secret
	logger       *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// billingService may be nil when Stripe is not configured. secrets holds
// one webhook secret per enabled provider; providers without an entry are
// rejected.
func NewWebhookHandler(billingService billing.Service, fulfillments service.FulfillmentService, queries *repository.Queries, secrets map[string]string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		billing:      billingService,
		fulfillments: fulfillments,
		queries:      queries,
		secrets:      secrets,
		logger:       logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
// These routes are PUBLIC; no auth middleware.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
	mux.HandleFunc("POST /webhooks/{provider}", h.HandleProviderWebhook)
}

// =============================================================================
// Fulfillment Provider Webhooks
// =============================================================================

// HandleProviderWebhook verifies, normalizes, and reconciles one provider
// event. Signature failures return 401 before any side effect. Duplicate,
// stale, and unknown events are acknowledged with 200 so the provider stops
// retrying; only processing failures return 500.
func (h *WebhookHandler) HandleProviderWebhook(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")

	secret, ok := h.secrets[provider]
	parse, known := webhookParsers[provider]
	if !ok || !known {
		h.logger.Warn("webhook for unknown provider", "provider", provider)
		w.WriteHeader(http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("failed to read webhook body", "provider", provider, "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !verifySignature(secret, body, r.Header.Get(ProviderSignatureHeader)) {
		h.logger.Warn("webhook signature verification failed",
			"provider", provider, "ip", r.RemoteAddr)
		metrics.WebhookEventsTotal.WithLabelValues(provider, "invalid").Inc()
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	event, err := parse(body)
	if err != nil {
		h.logger.Warn("unparseable webhook payload", "provider", provider, "error", err)
		metrics.WebhookEventsTotal.WithLabelValues(provider, "invalid").Inc()
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.fulfillments.ApplyProviderEvent(r.Context(), *event); err != nil {
		// A processing failure is the one case where the provider should
		// retry the delivery.
		h.logger.Error("webhook reconciliation failed",
			"provider", provider,
			"provider_order_id", event.ProviderOrderID,
			"error", err,
		)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// verifySignature checks the hex HMAC-SHA256 of the body in constant time.
func verifySignature(secret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// =============================================================================
// Stripe Webhook
// =============================================================================

// HandleStripeWebhook processes incoming Stripe webhook events.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	event, err := h.billing.VerifyWebhookSignature(body, signature)
	if err != nil {
		h.logger.Warn("stripe signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)

	switch event.Type {
	case "checkout.session.completed":
		h.handleCheckoutCompleted(r, event)
	case "checkout.session.expired":
		h.handleCheckoutExpired(r, event)
	default:
		h.logger.Debug("unhandled stripe event type", "type", event.Type)
	}

	w.WriteHeader(http.StatusOK)
}

// handleCheckoutCompleted marks the order paid and enqueues dispatch.
// Redelivery is safe: the pending->processing transition is a guarded
// update, and dispatch itself is idempotent.
func (h *WebhookHandler) handleCheckoutCompleted(r *http.Request, event stripe.Event) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		h.logger.Error("failed to parse checkout session", "error", err)
		return
	}

	ctx := r.Context()
	order, err := h.queries.GetOrderByStripeSession(ctx, session.ID)
	if err != nil {
		h.logger.Warn("no order for checkout session", "session_id", session.ID, "error", err)
		return
	}

	moved, err := h.queries.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusProcessing, domain.OrderStatusPending)
	if err != nil {
		h.logger.Error("failed to mark order paid", "order_id", order.ID, "error", err)
		return
	}
	if !moved {
		h.logger.Info("order already paid, skipping", "order_id", order.ID)
		return
	}

	if _, err := worker.EnqueueDispatchOrder(ctx, h.queries, order.ID); err != nil {
		// The periodic sync sweep will not pick this up; it needs the
		// dispatch to have happened. Log loudly.
		h.logger.Error("failed to enqueue dispatch", "order_id", order.ID, "error", err)
		return
	}
	if _, err := worker.EnqueueNotifyPartner(ctx, h.queries, order.ID, string(domain.OrderStatusProcessing)); err != nil {
		h.logger.Error("failed to enqueue partner notification", "order_id", order.ID, "error", err)
	}

	h.logger.Info("order paid and queued for dispatch", "order_id", order.ID)
}

// handleCheckoutExpired cancels the pending order so it never dispatches.
func (h *WebhookHandler) handleCheckoutExpired(r *http.Request, event stripe.Event) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		h.logger.Error("failed to parse checkout session", "error", err)
		return
	}

	ctx := r.Context()
	order, err := h.queries.GetOrderByStripeSession(ctx, session.ID)
	if err != nil {
		return
	}

	moved, err := h.queries.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusCancelled, domain.OrderStatusPending)
	if err != nil {
		h.logger.Error("failed to cancel expired order", "order_id", order.ID, "error", err)
		return
	}
	if moved {
		h.logger.Info("expired checkout, order cancelled", "order_id", order.ID)
	}
}
