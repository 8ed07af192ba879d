// Package domain contains core business types and interfaces.
//
// This file defines quoting types: the order context sent to fulfillment
// providers and the quotes they return. Quotes are ephemeral - computed per
// request, never persisted.
package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Selection Strategy
// =============================================================================

// Strategy selects which quote wins when multiple providers can fulfill
// an order.
type Strategy string

const (
	// StrategyCost picks the cheapest quote.
	StrategyCost Strategy = "cost"

	// StrategySpeed picks the quote with the shortest production time.
	StrategySpeed Strategy = "speed"

	// StrategyQuality picks by a static provider-quality ranking from
	// configuration. Quotes carry no quality score of their own.
	StrategyQuality Strategy = "quality"
)

// String returns the string representation of the strategy.
func (s Strategy) String() string {
	return string(s)
}

// IsValid returns true if the strategy is a recognized value.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyCost, StrategySpeed, StrategyQuality:
		return true
	}
	return false
}

// =============================================================================
// Order Context
// =============================================================================

// Address is a shipping destination.
type Address struct {
	Name        string `json:"name"`
	Line1       string `json:"line1"`
	Line2       string `json:"line2,omitempty"`
	City        string `json:"city"`
	Region      string `json:"region,omitempty"`
	PostalCode  string `json:"postal_code"`
	CountryCode string `json:"country_code"`
}

// Validate checks the address has the fields providers require.
func (a Address) Validate(op string) error {
	var err error
	if strings.TrimSpace(a.Name) == "" {
		err = AddFieldError(err, "name", "Recipient name is required")
	}
	if strings.TrimSpace(a.Line1) == "" {
		err = AddFieldError(err, "line1", "Address line 1 is required")
	}
	if strings.TrimSpace(a.City) == "" {
		err = AddFieldError(err, "city", "City is required")
	}
	if strings.TrimSpace(a.PostalCode) == "" {
		err = AddFieldError(err, "postal_code", "Postal code is required")
	}
	if len(a.CountryCode) != 2 {
		err = AddFieldError(err, "country_code", "Country code must be a 2-letter ISO code")
	}
	if err != nil {
		if ve, ok := err.(*ValidationError); ok {
			ve.Op = op
		}
		return err
	}
	return nil
}

// LineItem is one product/variant position in an order or quote request.
type LineItem struct {
	ProductID     uuid.UUID `json:"product_id"`
	VariantID     uuid.UUID `json:"variant_id"`
	Quantity      int       `json:"quantity"`
	DesignID      uuid.UUID `json:"design_id,omitempty"`
	Customization string    `json:"customization,omitempty"` // Placement notes, print area, etc.
}

// QuoteRequest is the order context submitted to each provider.
type QuoteRequest struct {
	ShippingTo Address
	Items      []LineItem
	Currency   string
}

// Validate checks the quote request is well formed.
func (r QuoteRequest) Validate(op string) error {
	if err := r.ShippingTo.Validate(op); err != nil {
		return err
	}
	if len(r.Items) == 0 {
		return NewValidationError(op, "items", "At least one line item is required")
	}
	for _, item := range r.Items {
		if item.Quantity < 1 {
			return NewValidationError(op, "items", "Line item quantity must be at least 1")
		}
		if item.VariantID == uuid.Nil {
			return NewValidationError(op, "items", "Line item variant_id is required")
		}
	}
	return nil
}

// =============================================================================
// Quote
// =============================================================================

// Quote is a single provider's cost and time estimate for an order.
// All money amounts are integer cents in the request currency.
type Quote struct {
	Provider          string    `json:"provider"`
	Currency          string    `json:"currency"`
	TotalCents        int64     `json:"total_cents"`
	ShippingCents     int64     `json:"shipping_cents"`
	TaxCents          int64     `json:"tax_cents"`
	ProductionTime    Duration  `json:"production_time"`
	EstimatedDelivery time.Time `json:"estimated_delivery"`

	// ItemAvailability holds one entry per requested line item, in request
	// order. A false entry disqualifies the quote during selection.
	ItemAvailability []bool `json:"item_availability"`
}

// AllItemsAvailable returns true when the provider can print every
// requested line item.
func (q Quote) AllItemsAvailable() bool {
	for _, ok := range q.ItemAvailability {
		if !ok {
			return false
		}
	}
	return true
}

// Duration wraps time.Duration so it marshals as whole seconds in API
// responses instead of nanoseconds.
type Duration time.Duration

// MarshalJSON renders the duration as integer seconds.
func (d Duration) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, int64(time.Duration(d)/time.Second), 10), nil
}

// UnmarshalJSON parses integer seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	secs, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return Invalid("", "duration must be whole seconds")
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}
