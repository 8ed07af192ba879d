package printful

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/tshopco/tshop/internal/domain"
	"github.com/tshopco/tshop/internal/fulfillment"
)

// ParseWebhook translates a Printful webhook payload into a normalized
// provider event. Printful wraps everything in {type, created, data} and
// does not number its events, so EventID stays empty and reconciliation
// relies on status staleness alone.
func ParseWebhook(body []byte) (*domain.ProviderEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fulfillment.WrapError(domain.ProviderPrintful, "parse webhook", err)
	}
	if payload.Type == "" || payload.Data.Order.ID == 0 {
		return nil, fulfillment.WrapError(domain.ProviderPrintful, "parse webhook", fulfillment.EInvalidRequest)
	}

	event := &domain.ProviderEvent{
		Provider:        domain.ProviderPrintful,
		Type:            payload.Type,
		ProviderOrderID: strconv.FormatInt(payload.Data.Order.ID, 10),
		ProviderStatus:  payload.Data.Order.Status,
		OccurredAt:      time.Unix(payload.Created, 0),
		Raw:             body,
	}
	if payload.Created == 0 {
		event.OccurredAt = time.Now()
	}

	if sh := payload.Data.Shipment; sh != nil {
		event.TrackingNumber = sh.TrackingNumber
		event.TrackingURL = sh.TrackingURL
		event.Carrier = sh.Carrier
		if sh.EstimatedDelivery != "" {
			if t, err := time.Parse("2006-01-02", sh.EstimatedDelivery); err == nil {
				event.EstimatedDelivery = &t
			}
		}
	}
	return event, nil
}

// Webhook wire types.

type webhookPayload struct {
	Type    string      `json:"type"`
	Created int64       `json:"created"`
	Data    webhookData `json:"data"`
}

type webhookData struct {
	Order    webhookOrder     `json:"order"`
	Shipment *webhookShipment `json:"shipment"`
}

type webhookOrder struct {
	ID         int64  `json:"id"`
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
}

type webhookShipment struct {
	Carrier           string `json:"carrier"`
	TrackingNumber    string `json:"tracking_number"`
	TrackingURL       string `json:"tracking_url"`
	EstimatedDelivery string `json:"estimated_delivery"`
}
