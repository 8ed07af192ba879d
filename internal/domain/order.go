// Package domain contains core business types and interfaces.
//
// This file defines the Order domain type. Orders are owned by the
// storefront; this service mutates their status on checkout completion and
// during webhook-driven fulfillment reconciliation.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Order Status
// =============================================================================

// OrderStatus represents the lifecycle state of a storefront order.
type OrderStatus string

const (
	// OrderStatusPending indicates the order exists but payment has not
	// completed yet.
	OrderStatusPending OrderStatus = "pending"

	// OrderStatusProcessing indicates payment completed and the order has
	// been (or is being) dispatched to a fulfillment provider.
	OrderStatusProcessing OrderStatus = "processing"

	// OrderStatusPrinted indicates the provider finished printing; some
	// packages may already be on their way.
	OrderStatusPrinted OrderStatus = "printed"

	// OrderStatusShipped indicates all packages have shipped.
	OrderStatusShipped OrderStatus = "shipped"

	// OrderStatusDelivered indicates the carrier confirmed delivery.
	OrderStatusDelivered OrderStatus = "delivered"

	// OrderStatusCancelled indicates the order was cancelled or fulfillment
	// permanently failed.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// String returns the string representation of the status.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a recognized value.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusPrinted,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// IsTerminal returns true once no further status changes are expected.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// rank orders statuses along the forward lifecycle. Cancellation sits
// outside the rank sequence and is handled in CanTransitionTo.
func (s OrderStatus) rank() int {
	switch s {
	case OrderStatusPending:
		return 0
	case OrderStatusProcessing:
		return 1
	case OrderStatusPrinted:
		return 2
	case OrderStatusShipped:
		return 3
	case OrderStatusDelivered:
		return 4
	}
	return -1
}

// CanTransitionTo checks if the order can move to the target status.
//
// Forward movement along pending -> processing -> printed -> shipped ->
// delivered is allowed (skipping intermediate states is fine, providers
// do not report every step). Cancellation is allowed from any non-terminal
// state and from shipped (package returned).
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	if !target.IsValid() || s == target {
		return false
	}
	if target == OrderStatusCancelled {
		return s != OrderStatusDelivered
	}
	if s == OrderStatusCancelled {
		return false
	}
	return target.rank() > s.rank()
}

// =============================================================================
// Order Domain Type
// =============================================================================

// Order represents a paid (or pending) storefront order.
type Order struct {
	ID             uuid.UUID   // Unique identifier
	UserID         uuid.UUID   // Owner of the order
	Status         OrderStatus // Current status
	Currency       string      // ISO 4217 currency code
	SubtotalCents  int64       // Line item total before shipping/tax
	ShippingCents  int64       // Shipping cost charged to the customer
	TaxCents       int64       // Tax charged to the customer
	TotalCents     int64       // Grand total
	Strategy       Strategy    // Provider selection strategy chosen at checkout
	StripeSession  string      // Stripe Checkout session ID, if any
	ShippingTo     Address     // Destination address
	Items          []LineItem  // Ordered line items
	TrackingNumber string      // Carried from the fulfillment record for display
	TrackingURL    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsPaid returns true once payment has completed.
func (o *Order) IsPaid() bool {
	return o.Status != OrderStatusPending
}

// =============================================================================
// Service Parameters
// =============================================================================

// CreateOrderParams contains validated parameters for creating an order.
type CreateOrderParams struct {
	UserID        uuid.UUID
	Currency      string
	SubtotalCents int64
	ShippingCents int64
	TaxCents      int64
	Strategy      Strategy
	ShippingTo    Address
	Items         []LineItem
}

// UpdateOrderShippingParams updates tracking fields on an order.
type UpdateOrderShippingParams struct {
	ID             uuid.UUID
	TrackingNumber string
	TrackingURL    string
}
