// Package printify implements the fulfillment.Provider interface against
// the Printify API. Unlike Printful there is no response envelope; bodies
// are bare JSON objects, money is integer cents, and every path is scoped
// to a shop ID.
package printify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tshopco/tshop/internal/domain"
	"github.com/tshopco/tshop/internal/fulfillment"
)

const (
	// APIBaseURL is the base URL for the Printify API
	APIBaseURL = "https://api.printify.com"
)

// Config contains configuration for the Printify client
type Config struct {
	APIKey  string
	ShopID  string
	BaseURL string // Overridable for tests and the mock service
	fulfillment.Config
}

// Client implements fulfillment.Provider using Printify's order API.
type Client struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a new Printify client
func New(config Config, logger *slog.Logger) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("printify API key is required")
	}
	if config.ShopID == "" {
		return nil, fmt.Errorf("printify shop ID is required")
	}

	if config.BaseURL == "" {
		config.BaseURL = APIBaseURL
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.RetryBaseDelay == 0 {
		config.RetryBaseDelay = 1 * time.Second
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 30 * time.Second
	}

	return &Client{
		config: config,
		client: &http.Client{
			Timeout: config.RequestTimeout,
		},
		logger: logger,
	}, nil
}

func (c *Client) Name() string {
	return domain.ProviderPrintify
}

func (c *Client) shopPath(suffix string) string {
	return "/v1/shops/" + c.config.ShopID + suffix
}

// GetQuote estimates costs and production time for an order.
func (c *Client) GetQuote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	body := estimateRequest{
		AddressTo: toAddress(req.ShippingTo),
		LineItems: toLineItems(req.Items),
	}

	var result estimateResponse
	if err := c.do(ctx, http.MethodPost, c.shopPath("/orders/estimate.json"), body, &result); err != nil {
		return nil, fulfillment.WrapError(c.Name(), "get quote", err)
	}

	availability := make([]bool, len(req.Items))
	for i := range availability {
		availability[i] = true
	}
	for i, item := range result.LineItems {
		if i < len(availability) {
			availability[i] = item.Available
		}
	}

	now := time.Now()
	return &domain.Quote{
		Provider:          c.Name(),
		Currency:          result.Currency,
		TotalCents:        result.TotalPrice,
		ShippingCents:     result.TotalShipping,
		TaxCents:          result.TotalTax,
		ProductionTime:    domain.Duration(time.Duration(result.ProductionDays) * 24 * time.Hour),
		EstimatedDelivery: now.AddDate(0, 0, result.EstimatedDeliveryDays),
		ItemAvailability:  availability,
	}, nil
}

// CreateOrder submits an order for production.
func (c *Client) CreateOrder(ctx context.Context, order *domain.Order) (string, error) {
	body := orderRequest{
		ExternalID:       order.ID.String(),
		AddressTo:        toAddress(order.ShippingTo),
		LineItems:        toLineItems(order.Items),
		SendToProduction: true,
	}

	var result orderResponse
	if err := c.do(ctx, http.MethodPost, c.shopPath("/orders.json"), body, &result); err != nil {
		return "", fulfillment.WrapError(c.Name(), "create order", err)
	}
	return result.ID, nil
}

// GetOrder fetches the provider's current view of a submitted order.
func (c *Client) GetOrder(ctx context.Context, providerOrderID string) (*fulfillment.OrderState, error) {
	var result orderResponse
	if err := c.do(ctx, http.MethodGet, c.shopPath("/orders/"+providerOrderID+".json"), nil, &result); err != nil {
		return nil, fulfillment.WrapError(c.Name(), "get order", err)
	}

	state := &fulfillment.OrderState{
		ProviderOrderID: result.ID,
		ProviderStatus:  result.Status,
	}
	if len(result.Shipments) > 0 {
		s := result.Shipments[0]
		state.TrackingNumber = s.Number
		state.TrackingURL = s.URL
		state.Carrier = s.Carrier
		if s.EstimatedDeliveryAt != "" {
			if t, err := time.Parse(time.RFC3339, s.EstimatedDeliveryAt); err == nil {
				state.EstimatedDelivery = &t
			}
		}
	}
	return state, nil
}

// CancelOrder requests cancellation of a submitted order.
func (c *Client) CancelOrder(ctx context.Context, providerOrderID string) error {
	if err := c.do(ctx, http.MethodPost, c.shopPath("/orders/"+providerOrderID+"/cancel.json"), nil, nil); err != nil {
		return fulfillment.WrapError(c.Name(), "cancel order", err)
	}
	return nil
}

// do executes a request with exponential backoff retry on transient errors.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		err := c.executeRequest(ctx, method, path, bodyBytes, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if !fulfillment.IsRetryable(err) {
			return err
		}
		if attempt >= c.config.MaxRetries {
			break
		}

		delay := c.config.RetryBaseDelay * time.Duration(1<<(attempt-1))
		c.logger.Info("Retrying printify request", "method", method, "path", path, "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// executeRequest executes a single HTTP request
func (c *Client) executeRequest(ctx context.Context, method, path string, bodyBytes []byte, out any) error {
	var reader io.Reader
	if bodyBytes != nil {
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fulfillment.EUnavailable
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.mapHTTPError(resp.StatusCode, respBytes)
	}

	if out != nil {
		if err := json.Unmarshal(respBytes, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// mapHTTPError maps status codes to provider errors
func (c *Client) mapHTTPError(statusCode int, body []byte) error {
	var errResp apiErrorResponse
	_ = json.Unmarshal(body, &errResp)

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fulfillment.EUnauthorized
	case http.StatusNotFound:
		return fulfillment.EOrderNotFound
	case http.StatusTooManyRequests:
		return fulfillment.ERateLimit
	case http.StatusRequestTimeout:
		return fulfillment.ETimeout
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", fulfillment.EInvalidRequest, errResp.Message)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return fulfillment.EUnavailable
	default:
		return fmt.Errorf("printify API error (status %d): %s", statusCode, errResp.Message)
	}
}

func toAddress(a domain.Address) apiAddress {
	return apiAddress{
		Name:     a.Name,
		Address1: a.Line1,
		Address2: a.Line2,
		City:     a.City,
		Region:   a.Region,
		Zip:      a.PostalCode,
		Country:  a.CountryCode,
	}
}

func toLineItems(items []domain.LineItem) []apiLineItem {
	out := make([]apiLineItem, 0, len(items))
	for _, item := range items {
		out = append(out, apiLineItem{
			ProductID: item.ProductID.String(),
			VariantID: item.VariantID.String(),
			Quantity:  item.Quantity,
		})
	}
	return out
}

// API request/response types

type apiErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type apiAddress struct {
	Name     string `json:"name"`
	Address1 string `json:"address1"`
	Address2 string `json:"address2,omitempty"`
	City     string `json:"city"`
	Region   string `json:"region,omitempty"`
	Zip      string `json:"zip"`
	Country  string `json:"country"`
}

type apiLineItem struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type estimateRequest struct {
	AddressTo apiAddress    `json:"address_to"`
	LineItems []apiLineItem `json:"line_items"`
}

type estimateResponse struct {
	Currency              string             `json:"currency"`
	TotalPrice            int64              `json:"total_price"`
	TotalShipping         int64              `json:"total_shipping"`
	TotalTax              int64              `json:"total_tax"`
	ProductionDays        int                `json:"production_days"`
	EstimatedDeliveryDays int                `json:"estimated_delivery_days"`
	LineItems             []estimateItemInfo `json:"line_items"`
}

type estimateItemInfo struct {
	VariantID string `json:"variant_id"`
	Available bool   `json:"available"`
}

type orderRequest struct {
	ExternalID       string        `json:"external_id"`
	AddressTo        apiAddress    `json:"address_to"`
	LineItems        []apiLineItem `json:"line_items"`
	SendToProduction bool          `json:"send_to_production"`
}

type orderResponse struct {
	ID         string        `json:"id"`
	ExternalID string        `json:"external_id"`
	Status     string        `json:"status"`
	Shipments  []apiShipment `json:"shipments"`
}

type apiShipment struct {
	Carrier             string `json:"carrier"`
	Number              string `json:"number"`
	URL                 string `json:"url"`
	EstimatedDeliveryAt string `json:"estimated_delivery_at"`
}
