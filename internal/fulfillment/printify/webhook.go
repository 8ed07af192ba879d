package printify

import (
	"encoding/json"
	"time"

	"github.com/tshopco/tshop/internal/domain"
	"github.com/tshopco/tshop/internal/fulfillment"
)

// ParseWebhook translates a Printify webhook payload into a normalized
// provider event. Printify numbers every delivery, so duplicates are
// filtered by event ID before reconciliation.
func ParseWebhook(body []byte) (*domain.ProviderEvent, error) {
	var payload webhookEvent
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fulfillment.WrapError(domain.ProviderPrintify, "parse webhook", err)
	}
	if payload.Type == "" || payload.Resource.ID == "" {
		return nil, fulfillment.WrapError(domain.ProviderPrintify, "parse webhook", fulfillment.EInvalidRequest)
	}

	event := &domain.ProviderEvent{
		Provider:        domain.ProviderPrintify,
		EventID:         payload.ID,
		Type:            payload.Type,
		ProviderOrderID: payload.Resource.ID,
		ProviderStatus:  payload.Resource.Data.Status,
		OccurredAt:      time.Now(),
		Raw:             body,
	}
	if payload.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, payload.CreatedAt); err == nil {
			event.OccurredAt = t
		}
	}

	if len(payload.Resource.Data.Shipments) > 0 {
		sh := payload.Resource.Data.Shipments[0]
		event.TrackingNumber = sh.Number
		event.TrackingURL = sh.URL
		event.Carrier = sh.Carrier
		if sh.EstimatedDeliveryAt != "" {
			if t, err := time.Parse(time.RFC3339, sh.EstimatedDeliveryAt); err == nil {
				event.EstimatedDelivery = &t
			}
		}
	}
	return event, nil
}

// Webhook wire types.

type webhookEvent struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	CreatedAt string          `json:"created_at"`
	Resource  webhookResource `json:"resource"`
}

type webhookResource struct {
	ID   string              `json:"id"`
	Type string              `json:"type"`
	Data webhookResourceData `json:"data"`
}

type webhookResourceData struct {
	Status    string        `json:"status"`
	Shipments []apiShipment `json:"shipments"`
}
