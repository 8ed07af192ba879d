// Package printful implements the fulfillment.Provider interface against
// the Printful API. Printful wraps every response in a {code, result}
// envelope and reports money as decimal strings.
package printful

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tshopco/tshop/internal/domain"
	"github.com/tshopco/tshop/internal/fulfillment"
)

const (
	// APIBaseURL is the base URL for the Printful API
	APIBaseURL = "https://api.printful.com"
)

// Config contains configuration for the Printful client
type Config struct {
	APIKey  string
	BaseURL string // Overridable for tests and the mock service
	fulfillment.Config
}

// Client implements fulfillment.Provider using Printful's order API.
type Client struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a new Printful client
func New(config Config, logger *slog.Logger) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("printful API key is required")
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
	return domain.ProviderPrintful
}

// GetQuote estimates costs and production time for an order.
func (c *Client) GetQuote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	body := estimateRequest{
		Recipient: toRecipient(req.ShippingTo),
		Items:     toItems(req.Items),
		Currency:  req.Currency,
	}

	var result estimateResult
	if err := c.do(ctx, http.MethodPost, "/orders/estimate-costs", body, &result); err != nil {
		return nil, fulfillment.WrapError(c.Name(), "get quote", err)
	}

	total, err := parseCents(result.Costs.Total)
	if err != nil {
		return nil, fulfillment.WrapError(c.Name(), "get quote", err)
	}
	shipping, err := parseCents(result.Costs.Shipping)
	if err != nil {
		return nil, fulfillment.WrapError(c.Name(), "get quote", err)
	}
	tax, err := parseCents(result.Costs.Tax)
	if err != nil {
		return nil, fulfillment.WrapError(c.Name(), "get quote", err)
	}

	// Items are echoed back in request order; anything the provider can't
	// print comes back with available=false.
	availability := make([]bool, len(req.Items))
	for i := range availability {
		availability[i] = true
	}
	for i, item := range result.Items {
		if i < len(availability) {
			availability[i] = item.Available
		}
	}

	now := time.Now()
	return &domain.Quote{
		Provider:          c.Name(),
		Currency:          result.Costs.Currency,
		TotalCents:        total,
		ShippingCents:     shipping,
		TaxCents:          tax,
		ProductionTime:    domain.Duration(time.Duration(result.ProductionDays) * 24 * time.Hour),
		EstimatedDelivery: now.AddDate(0, 0, result.EstimatedDeliveryDays),
		ItemAvailability:  availability,
	}, nil
}

// CreateOrder submits a confirmed order for production.
func (c *Client) CreateOrder(ctx context.Context, order *domain.Order) (string, error) {
	body := orderRequest{
		ExternalID: order.ID.String(),
		Recipient:  toRecipient(order.ShippingTo),
		Items:      toItems(order.Items),
		Confirm:    true,
	}

	var result orderResult
	if err := c.do(ctx, http.MethodPost, "/orders", body, &result); err != nil {
		return "", fulfillment.WrapError(c.Name(), "create order", err)
	}
	return strconv.FormatInt(result.ID, 10), nil
}

// GetOrder fetches the provider's current view of a submitted order.
func (c *Client) GetOrder(ctx context.Context, providerOrderID string) (*fulfillment.OrderState, error) {
	var result orderResult
	if err := c.do(ctx, http.MethodGet, "/orders/"+providerOrderID, nil, &result); err != nil {
		return nil, fulfillment.WrapError(c.Name(), "get order", err)
	}

	state := &fulfillment.OrderState{
		ProviderOrderID: strconv.FormatInt(result.ID, 10),
		ProviderStatus:  result.Status,
	}
	// Printful reports one shipment object per package; the first carries
	// the primary tracking data.
	if len(result.Shipments) > 0 {
		s := result.Shipments[0]
		state.TrackingNumber = s.TrackingNumber
		state.TrackingURL = s.TrackingURL
		state.Carrier = s.Carrier
		if s.EstimatedDeliveryDate != "" {
			if t, err := time.Parse("2006-01-02", s.EstimatedDeliveryDate); err == nil {
				state.EstimatedDelivery = &t
			}
		}
	}
	return state, nil
}

// CancelOrder requests cancellation. Printful only honors this before the
// order enters production.
func (c *Client) CancelOrder(ctx context.Context, providerOrderID string) error {
	if err := c.do(ctx, http.MethodDelete, "/orders/"+providerOrderID, nil, nil); err != nil {
		return fulfillment.WrapError(c.Name(), "cancel order", err)
	}
	return nil
}

// do executes a request with exponential backoff retry on transient errors,
// unwrapping the Printful response envelope into out.
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
		c.logger.Info("Retrying printful request", "method", method, "path", path, "attempt", attempt, "delay", delay, "error", err)

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
		// Network errors are typically retryable
		return fulfillment.EUnavailable
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return c.mapHTTPError(resp.StatusCode, respBytes)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(respBytes, &envelope); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if envelope.Code != http.StatusOK {
		return c.mapHTTPError(envelope.Code, respBytes)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
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
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", fulfillment.EInvalidRequest, errResp.Error.Message)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return fulfillment.EUnavailable
	default:
		return fmt.Errorf("printful API error (status %d): %s", statusCode, errResp.Error.Message)
	}
}

// parseCents converts Printful's decimal money strings ("21.00") to integer
// cents. Amounts with more than two decimal places are rejected.
func parseCents(amount string) (int64, error) {
	whole, frac, _ := strings.Cut(strings.TrimSpace(amount), ".")
	if whole == "" {
		whole = "0"
	}
	negative := strings.HasPrefix(whole, "-")

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", amount)
	}

	switch len(frac) {
	case 0:
		frac = "00"
	case 1:
		frac += "0"
	case 2:
	default:
		return 0, fmt.Errorf("invalid amount %q", amount)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", amount)
	}

	if negative {
		return units*100 - cents, nil
	}
	return units*100 + cents, nil
}

func toRecipient(a domain.Address) apiRecipient {
	return apiRecipient{
		Name:        a.Name,
		Address1:    a.Line1,
		Address2:    a.Line2,
		City:        a.City,
		StateCode:   a.Region,
		Zip:         a.PostalCode,
		CountryCode: a.CountryCode,
	}
}

func toItems(items []domain.LineItem) []apiItem {
	out := make([]apiItem, 0, len(items))
	for _, item := range items {
		out = append(out, apiItem{
			ExternalVariantID: item.VariantID.String(),
			Quantity:          item.Quantity,
		})
	}
	return out
}

// API request/response types

type apiEnvelope struct {
	Code   int             `json:"code"`
	Result json.RawMessage `json:"result"`
}

type apiErrorResponse struct {
	Code  int      `json:"code"`
	Error apiError `json:"error"`
}

type apiError struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type apiRecipient struct {
	Name        string `json:"name"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2,omitempty"`
	City        string `json:"city"`
	StateCode   string `json:"state_code,omitempty"`
	Zip         string `json:"zip"`
	CountryCode string `json:"country_code"`
}

type apiItem struct {
	ExternalVariantID string `json:"external_variant_id"`
	Quantity          int    `json:"quantity"`
}

type estimateRequest struct {
	Recipient apiRecipient `json:"recipient"`
	Items     []apiItem    `json:"items"`
	Currency  string       `json:"currency,omitempty"`
}

type estimateResult struct {
	Costs                 apiCosts           `json:"costs"`
	Items                 []estimateItemInfo `json:"items"`
	ProductionDays        int                `json:"production_days"`
	EstimatedDeliveryDays int                `json:"estimated_delivery_days"`
}

type estimateItemInfo struct {
	ExternalVariantID string `json:"external_variant_id"`
	Available         bool   `json:"available"`
}

type apiCosts struct {
	Currency string `json:"currency"`
	Subtotal string `json:"subtotal"`
	Shipping string `json:"shipping"`
	Tax      string `json:"tax"`
	Total    string `json:"total"`
}

type orderRequest struct {
	ExternalID string       `json:"external_id"`
	Recipient  apiRecipient `json:"recipient"`
	Items      []apiItem    `json:"items"`
	Confirm    bool         `json:"confirm"`
}

type orderResult struct {
	ID         int64         `json:"id"`
	ExternalID string        `json:"external_id"`
	Status     string        `json:"status"`
	Shipments  []apiShipment `json:"shipments"`
}

type apiShipment struct {
	Carrier               string `json:"carrier"`
	Service               string `json:"service"`
	TrackingNumber        string `json:"tracking_number"`
	TrackingURL           string `json:"tracking_url"`
	EstimatedDeliveryDate string `json:"estimated_delivery_date"`
}
