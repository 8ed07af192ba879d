package mock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tshopco/tshop/internal/domain"
	"github.com/tshopco/tshop/internal/fulfillment"
)

// Provider is a mock fulfillment provider for testing and development.
// Safe for concurrent use.
type Provider struct {
	logger *slog.Logger

	// ProviderName overrides the name when simulating multiple providers
	// in one test. Defaults to "mock".
	ProviderName string

	// Configurable responses for testing
	QuoteResponse    *domain.Quote
	QuoteError       error
	QuoteDelay       time.Duration // Sleeps before responding, for timeout tests
	CreateOrderError error
	GetOrderError    error
	CancelOrderError error

	mu sync.Mutex

	// Call tracking for testing
	QuoteCalls       int
	CreateOrderCalls int
	GetOrderCalls    int
	CancelOrderCalls int

	nextOrderID int
	orders      map[string]*fulfillment.OrderState
}

// New creates a new mock fulfillment provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
		orders: make(map[string]*fulfillment.OrderState),
	}
}

func (p *Provider) Name() string {
	if p.ProviderName != "" {
		return p.ProviderName
	}
	return domain.ProviderMock
}

// GetQuote returns a canned quote, or the configured response/error.
func (p *Provider) GetQuote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	p.mu.Lock()
	p.QuoteCalls++
	delay := p.QuoteDelay
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if p.QuoteError != nil {
		return nil, p.QuoteError
	}
	if p.QuoteResponse != nil {
		q := *p.QuoteResponse
		return &q, nil
	}

	// Default canned quote: flat per-item pricing so totals are predictable
	availability := make([]bool, len(req.Items))
	var subtotal int64
	for i, item := range req.Items {
		availability[i] = true
		subtotal += int64(item.Quantity) * 1500
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	return &domain.Quote{
		Provider:          p.Name(),
		Currency:          currency,
		TotalCents:        subtotal + 499,
		ShippingCents:     499,
		TaxCents:          0,
		ProductionTime:    domain.Duration(72 * time.Hour),
		EstimatedDelivery: time.Now().AddDate(0, 0, 7),
		ItemAvailability:  availability,
	}, nil
}

// CreateOrder records the order in memory and returns a generated ID.
func (p *Provider) CreateOrder(ctx context.Context, order *domain.Order) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.CreateOrderCalls++
	if p.CreateOrderError != nil {
		return "", p.CreateOrderError
	}

	p.nextOrderID++
	id := fmt.Sprintf("mock-%d", p.nextOrderID)
	p.orders[id] = &fulfillment.OrderState{
		ProviderOrderID: id,
		ProviderStatus:  "pending",
	}
	return id, nil
}

// GetOrder returns the recorded state of a mock order.
func (p *Provider) GetOrder(ctx context.Context, providerOrderID string) (*fulfillment.OrderState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.GetOrderCalls++
	if p.GetOrderError != nil {
		return nil, p.GetOrderError
	}

	state, ok := p.orders[providerOrderID]
	if !ok {
		return nil, fulfillment.EOrderNotFound
	}
	s := *state
	return &s, nil
}

// CancelOrder marks a mock order as canceled.
func (p *Provider) CancelOrder(ctx context.Context, providerOrderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.CancelOrderCalls++
	if p.CancelOrderError != nil {
		return p.CancelOrderError
	}

	state, ok := p.orders[providerOrderID]
	if !ok {
		return fulfillment.EOrderNotFound
	}
	state.ProviderStatus = "canceled"
	return nil
}

// SetOrderState overwrites the stored state of a mock order, for tests that
// simulate provider-side progress between sync polls.
func (p *Provider) SetOrderState(providerOrderID string, state fulfillment.OrderState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state.ProviderOrderID = providerOrderID
	p.orders[providerOrderID] = &state
}

// Reset clears call counters, stored orders, and custom responses.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.QuoteCalls = 0
	p.CreateOrderCalls = 0
	p.GetOrderCalls = 0
	p.CancelOrderCalls = 0
	p.QuoteResponse = nil
	p.QuoteError = nil
	p.QuoteDelay = 0
	p.CreateOrderError = nil
	p.GetOrderError = nil
	p.CancelOrderError = nil
	p.nextOrderID = 0
	p.orders = make(map[string]*fulfillment.OrderState)
}
