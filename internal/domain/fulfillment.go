// Package domain contains core business types and interfaces.
//
// This file defines the FulfillmentRecord type and the provider status
// mapping tables used by webhook reconciliation. The mapping is data, not
// branching code: adding a provider means adding a table.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Fulfillment Status
// =============================================================================

// FulfillmentStatus represents the lifecycle state of an order at a
// fulfillment provider.
type FulfillmentStatus string

const (
	// FulfillmentStatusCreated indicates the provider accepted the order
	// but production has not started.
	FulfillmentStatusCreated FulfillmentStatus = "created"

	// FulfillmentStatusInProduction indicates printing is underway.
	FulfillmentStatusInProduction FulfillmentStatus = "in_production"

	// FulfillmentStatusPartiallyShipped indicates some but not all packages
	// have shipped.
	FulfillmentStatusPartiallyShipped FulfillmentStatus = "partially_shipped"

	// FulfillmentStatusShipped indicates all packages have shipped.
	FulfillmentStatusShipped FulfillmentStatus = "shipped"

	// FulfillmentStatusCancelled indicates the provider cancelled the order
	// or the shipment was returned.
	FulfillmentStatusCancelled FulfillmentStatus = "cancelled"

	// FulfillmentStatusFailed indicates the provider could not fulfill the
	// order.
	FulfillmentStatusFailed FulfillmentStatus = "failed"
)

// String returns the string representation of the status.
func (s FulfillmentStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a recognized value.
func (s FulfillmentStatus) IsValid() bool {
	switch s {
	case FulfillmentStatusCreated, FulfillmentStatusInProduction,
		FulfillmentStatusPartiallyShipped, FulfillmentStatusShipped,
		FulfillmentStatusCancelled, FulfillmentStatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true when no further provider events are expected,
// except a possible return after shipping.
func (s FulfillmentStatus) IsTerminal() bool {
	return s == FulfillmentStatusCancelled || s == FulfillmentStatusFailed
}

// Rank orders statuses along the provider lifecycle. Used by the optimistic
// guard in reconciliation: an event whose status does not advance the rank
// is stale and produces no mutation.
func (s FulfillmentStatus) Rank() int {
	switch s {
	case FulfillmentStatusCreated:
		return 0
	case FulfillmentStatusInProduction:
		return 1
	case FulfillmentStatusPartiallyShipped:
		return 2
	case FulfillmentStatusShipped:
		return 3
	case FulfillmentStatusCancelled, FulfillmentStatusFailed:
		return 4
	}
	return -1
}

// CanTransitionTo checks whether a record may move to the target status.
//
// Forward movement is allowed, skipping intermediate states (providers do
// not report every step). Cancellation is reachable from anywhere except
// failed - including shipped, which covers returned packages. No transition
// ever moves a record backwards, and terminal statuses never change into
// each other except shipped -> cancelled.
func (s FulfillmentStatus) CanTransitionTo(target FulfillmentStatus) bool {
	if !target.IsValid() || s == target {
		return false
	}
	switch s {
	case FulfillmentStatusCancelled, FulfillmentStatusFailed:
		return false
	case FulfillmentStatusShipped:
		return target == FulfillmentStatusCancelled
	}
	return target.Rank() > s.Rank()
}

// =============================================================================
// FulfillmentRecord
// =============================================================================

// FulfillmentRecord tracks one order at one provider. Created when the
// order is first dispatched; mutated only by webhook reconciliation and the
// periodic sync sweep; never deleted.
type FulfillmentRecord struct {
	ID                uuid.UUID
	OrderID           uuid.UUID
	Provider          string
	ProviderOrderID   string
	Status            FulfillmentStatus
	ProviderStatus    string // Provider-native status string, stored verbatim
	TrackingNumber    string
	TrackingURL       string
	Carrier           string
	EstimatedDelivery *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// =============================================================================
// Provider Status Mapping
// =============================================================================

// StatusMapping pairs the internal fulfillment status with the owning
// order's status for one provider-native status string.
type StatusMapping struct {
	Fulfillment FulfillmentStatus
	Order       OrderStatus
}

// providerStatusTables maps provider name -> provider-native status ->
// internal statuses. Lookup is case-sensitive; providers emit lowercase.
var providerStatusTables = map[string]map[string]StatusMapping{
	ProviderPrintful: {
		"draft":     {FulfillmentStatusCreated, OrderStatusProcessing},
		"pending":   {FulfillmentStatusCreated, OrderStatusProcessing},
		"onhold":    {FulfillmentStatusCreated, OrderStatusProcessing},
		"inprocess": {FulfillmentStatusInProduction, OrderStatusProcessing},
		"partial":   {FulfillmentStatusPartiallyShipped, OrderStatusPrinted},
		"fulfilled": {FulfillmentStatusShipped, OrderStatusShipped},
		"shipped":   {FulfillmentStatusShipped, OrderStatusShipped},
		"delivered": {FulfillmentStatusShipped, OrderStatusDelivered},
		"returned":  {FulfillmentStatusCancelled, OrderStatusCancelled},
		"canceled":  {FulfillmentStatusCancelled, OrderStatusCancelled},
		"failed":    {FulfillmentStatusFailed, OrderStatusCancelled},
	},
	ProviderPrintify: {
		"pending":               {FulfillmentStatusCreated, OrderStatusProcessing},
		"on-hold":               {FulfillmentStatusCreated, OrderStatusProcessing},
		"sending-to-production": {FulfillmentStatusCreated, OrderStatusProcessing},
		"in-production":         {FulfillmentStatusInProduction, OrderStatusProcessing},
		"partially-fulfilled":   {FulfillmentStatusPartiallyShipped, OrderStatusPrinted},
		"fulfilled":             {FulfillmentStatusShipped, OrderStatusShipped},
		"delivered":             {FulfillmentStatusShipped, OrderStatusDelivered},
		"returned":              {FulfillmentStatusCancelled, OrderStatusCancelled},
		"canceled":              {FulfillmentStatusCancelled, OrderStatusCancelled},
		"payment-not-received":  {FulfillmentStatusFailed, OrderStatusCancelled},
	},
	// The mock provider mirrors printful's lifecycle with simpler names.
	ProviderMock: {
		"pending":       {FulfillmentStatusCreated, OrderStatusProcessing},
		"in_production": {FulfillmentStatusInProduction, OrderStatusProcessing},
		"partial":       {FulfillmentStatusPartiallyShipped, OrderStatusPrinted},
		"shipped":       {FulfillmentStatusShipped, OrderStatusShipped},
		"delivered":     {FulfillmentStatusShipped, OrderStatusDelivered},
		"canceled":      {FulfillmentStatusCancelled, OrderStatusCancelled},
		"failed":        {FulfillmentStatusFailed, OrderStatusCancelled},
	},
}

// Known provider identifiers.
const (
	ProviderPrintful = "printful"
	ProviderPrintify = "printify"
	ProviderMock     = "mock"
)

// MapProviderStatus resolves a provider-native status string to internal
// statuses. The second return value is false for unknown statuses; callers
// acknowledge and ignore those events.
func MapProviderStatus(provider, providerStatus string) (StatusMapping, bool) {
	table, ok := providerStatusTables[provider]
	if !ok {
		return StatusMapping{}, false
	}
	m, ok := table[providerStatus]
	return m, ok
}

// =============================================================================
// Provider Events
// =============================================================================

// ProviderEvent is a normalized webhook event from a fulfillment provider.
// Provider packages translate their wire formats into this type before
// reconciliation.
type ProviderEvent struct {
	Provider        string
	EventID         string // Provider event ID; empty when the provider sends none
	Type            string // Provider-native event type, stored for audit
	ProviderOrderID string
	ProviderStatus  string

	// Optional shipment data; empty fields leave stored values untouched.
	TrackingNumber    string
	TrackingURL       string
	Carrier           string
	EstimatedDelivery *time.Time

	OccurredAt time.Time
	Raw        []byte // Raw payload bytes for the audit log
}
