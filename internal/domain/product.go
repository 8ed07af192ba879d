// Package domain contains core business types and interfaces.
//
// This file defines the product catalog collaborator contract. The catalog
// itself is owned by the storefront; this service only reads prices and
// availability when validating quote requests.
package domain

import (
	"context"

	"github.com/google/uuid"
)

// ProductType identifies the apparel category a variant belongs to.
type ProductType string

const (
	ProductTypeTShirt  ProductType = "tshirt"
	ProductTypeCap     ProductType = "cap"
	ProductTypeToteBag ProductType = "tote_bag"
)

// Variant is a purchasable product variant (size/color combination).
type Variant struct {
	ID         uuid.UUID
	ProductID  uuid.UUID
	Type       ProductType
	Name       string
	PriceCents int64
	Currency   string
	Available  bool
}

// ProductCatalog looks up variants by ID.
type ProductCatalog interface {
	// GetVariant returns the variant or a not found error.
	GetVariant(ctx context.Context, variantID uuid.UUID) (*Variant, error)
}
