package printify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tshopco/tshop/internal/domain"
)

func TestParseWebhook_OrderShipment(t *testing.T) {
	body := []byte(`{
		"id": "evt_123",
		"type": "order:shipment:created",
		"created_at": "2023-09-01T12:00:00Z",
		"resource": {
			"id": "pf_987",
			"type": "order",
			"data": {
				"status": "fulfilled",
				"shipments": [{
					"carrier": "DHL",
					"number": "JD014600003828",
					"url": "https://www.dhl.com/track?id=JD014600003828",
					"estimated_delivery_at": "2023-09-07T00:00:00Z"
				}]
			}
		}
	}`)

	event, err := ParseWebhook(body)
	require.NoError(t, err)

	assert.Equal(t, domain.ProviderPrintify, event.Provider)
	assert.Equal(t, "evt_123", event.EventID)
	assert.Equal(t, "order:shipment:created", event.Type)
	assert.Equal(t, "pf_987", event.ProviderOrderID)
	assert.Equal(t, "fulfilled", event.ProviderStatus)
	assert.Equal(t, "DHL", event.Carrier)
	assert.Equal(t, "JD014600003828", event.TrackingNumber)
	assert.Equal(t, time.Date(2023, 9, 1, 12, 0, 0, 0, time.UTC), event.OccurredAt)
	require.NotNil(t, event.EstimatedDelivery)
}

func TestParseWebhook_StatusOnly(t *testing.T) {
	body := []byte(`{
		"id": "evt_124",
		"type": "order:updated",
		"resource": {"id": "pf_987", "type": "order", "data": {"status": "in-production"}}
	}`)

	event, err := ParseWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, "in-production", event.ProviderStatus)
	assert.Empty(t, event.TrackingNumber)
	assert.WithinDuration(t, time.Now(), event.OccurredAt, 5*time.Second)
}

func TestParseWebhook_Invalid(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", `[`},
		{"missing type", `{"id": "evt_1", "resource": {"id": "pf_1"}}`},
		{"missing resource id", `{"id": "evt_1", "type": "order:updated", "resource": {"data": {"status": "x"}}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseWebhook([]byte(tc.body))
			require.Error(t, err)
		})
	}
}
