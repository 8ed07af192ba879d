package mock

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/tshopco/tshop/internal/domain"
)

// ParseWebhook translates the flat JSON the mock harness posts into a
// normalized provider event. Used in development and integration tests.
func ParseWebhook(body []byte) (*domain.ProviderEvent, error) {
	var payload struct {
		EventID           string `json:"event_id"`
		Type              string `json:"type"`
		OrderID           string `json:"order_id"`
		Status            string `json:"status"`
		TrackingNumber    string `json:"tracking_number"`
		TrackingURL       string `json:"tracking_url"`
		Carrier           string `json:"carrier"`
		EstimatedDelivery string `json:"estimated_delivery"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if payload.OrderID == "" || payload.Status == "" {
		return nil, errors.New("mock webhook missing order_id or status")
	}

	event := &domain.ProviderEvent{
		Provider:        domain.ProviderMock,
		EventID:         payload.EventID,
		Type:            payload.Type,
		ProviderOrderID: payload.OrderID,
		ProviderStatus:  payload.Status,
		TrackingNumber:  payload.TrackingNumber,
		TrackingURL:     payload.TrackingURL,
		Carrier:         payload.Carrier,
		OccurredAt:      time.Now(),
		Raw:             body,
	}
	if payload.EstimatedDelivery != "" {
		if t, err := time.Parse(time.RFC3339, payload.EstimatedDelivery); err == nil {
			event.EstimatedDelivery = &t
		}
	}
	return event, nil
}
