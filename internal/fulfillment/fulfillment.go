// Package fulfillment defines the interface to print-on-demand providers.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tshopco/tshop/internal/domain"
)

// Provider is implemented by each print-on-demand integration.
type Provider interface {
	// Name returns the provider identifier ("printful", "printify", "mock").
	Name() string

	// GetQuote returns the provider's cost and time estimate for an order.
	GetQuote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error)

	// CreateOrder submits an order for production and returns the
	// provider's order ID.
	CreateOrder(ctx context.Context, order *domain.Order) (string, error)

	// GetOrder fetches the current state of a submitted order. Used by the
	// sync sweep to reconcile records that webhooks missed.
	GetOrder(ctx context.Context, providerOrderID string) (*OrderState, error)

	// CancelOrder requests cancellation of a submitted order.
	CancelOrder(ctx context.Context, providerOrderID string) error
}

// OrderState is a provider's current view of a submitted order.
type OrderState struct {
	ProviderOrderID   string
	ProviderStatus    string // Provider-native status string
	TrackingNumber    string
	TrackingURL       string
	Carrier           string
	EstimatedDelivery *time.Time
}

// Config contains common configuration for provider clients.
type Config struct {
	MaxRetries     int           // Maximum attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for provider operations
var (
	// ERateLimit indicates the provider's API rate limit has been exceeded
	ERateLimit = errors.New("provider rate limit exceeded")

	// ETimeout indicates the request timed out
	ETimeout = errors.New("provider request timed out")

	// EUnavailable indicates the provider is temporarily unavailable
	EUnavailable = errors.New("provider temporarily unavailable")

	// EUnauthorized indicates invalid API credentials
	EUnauthorized = errors.New("provider authentication failed")

	// EInvalidRequest indicates the provider rejected the order contents
	EInvalidRequest = errors.New("provider rejected the request")

	// EOrderNotFound indicates the provider has no order with that ID
	EOrderNotFound = errors.New("provider order not found")
)

// IsRetryable returns true if the error is transient and worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ERateLimit) ||
		errors.Is(err, ETimeout) ||
		errors.Is(err, EUnavailable)
}

// WrapError wraps an error with the provider and operation that produced it.
func WrapError(provider, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s %s: %w", provider, operation, err)
}
