package domain

import (
	"time"

	"github.com/google/uuid"
)

// Partner represents an API partner that receives outbound order-event
// webhooks. The API key is stored as a bcrypt hash; the webhook secret is
// the shared HMAC key for signing deliveries.
type Partner struct {
	ID            uuid.UUID
	Name          string
	KeyPrefix     string // First characters of the key, for identification
	KeyHash       string // bcrypt hash of the full API key
	WebhookURL    string
	WebhookSecret string
	Active        bool
	CreatedAt     time.Time
}

// PartnerOrderEvent is the payload delivered to partner webhook endpoints
// when an order's fulfillment status changes.
type PartnerOrderEvent struct {
	OrderID        uuid.UUID         `json:"order_id"`
	Provider       string            `json:"provider"`
	Status         FulfillmentStatus `json:"status"`
	OrderStatus    OrderStatus       `json:"order_status"`
	TrackingNumber string            `json:"tracking_number,omitempty"`
	TrackingURL    string            `json:"tracking_url,omitempty"`
	OccurredAt     time.Time         `json:"occurred_at"`
}
