package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tshopco/tshop/internal/domain"
	"github.com/tshopco/tshop/internal/middleware"
)

// fakeQuoteService returns canned quotes and records the requested strategy.
type fakeQuoteService struct {
	quotes       []domain.Quote
	getErr       error
	lastStrategy domain.Strategy
	lastRequest  domain.QuoteRequest
}

func (f *fakeQuoteService) GetQuotes(ctx context.Context, req domain.QuoteRequest) ([]domain.Quote, error) {
	f.lastRequest = req
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.quotes, nil
}

func (f *fakeQuoteService) Select(quotes []domain.Quote, strategy domain.Strategy) (*domain.Quote, error) {
	f.lastStrategy = strategy
	if len(quotes) == 0 {
		return nil, domain.ProviderUnavailable("fake.Select")
	}
	q := quotes[0]
	return &q, nil
}

func validQuoteBody() string {
	return `{
		"shipping_address": {
			"name": "Test Customer",
			"line1": "123 Main St",
			"city": "Portland",
			"postal_code": "97201",
			"country_code": "US"
		},
		"items": [{"variant_id": "ba7b2c10-5bb4-4526-a9f9-6a910db0a60e", "quantity": 2}]
	}`
}

func newQuoteTestServer(quotes *fakeQuoteService) *http.ServeMux {
	h := NewQuoteHandler(quotes, testLogger())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, middleware.NewAPIRateLimiter(testLogger()))
	return mux
}

func TestHandleGetQuotes_ReturnsQuotesAndWinner(t *testing.T) {
	quotes := &fakeQuoteService{quotes: []domain.Quote{
		{Provider: "printful", TotalCents: 2000, ProductionTime: domain.Duration(72 * time.Hour), ItemAvailability: []bool{true}},
		{Provider: "printify", TotalCents: 1800, ProductionTime: domain.Duration(120 * time.Hour), ItemAvailability: []bool{true}},
	}}
	mux := newQuoteTestServer(quotes)

	req := httptest.NewRequest("POST", "/api/quotes", strings.NewReader(validQuoteBody()))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Quotes   []domain.Quote `json:"quotes"`
		Selected *domain.Quote  `json:"selected"`
		Strategy string         `json:"strategy"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Quotes) != 2 {
		t.Errorf("expected 2 quotes, got %d", len(resp.Quotes))
	}
	if resp.Selected == nil || resp.Selected.Provider != "printful" {
		t.Errorf("unexpected selection: %+v", resp.Selected)
	}
	// Strategy defaults to cost when omitted.
	if resp.Strategy != "cost" {
		t.Errorf("expected default strategy cost, got %s", resp.Strategy)
	}
	if quotes.lastRequest.Currency != "USD" {
		t.Errorf("expected currency default USD, got %s", quotes.lastRequest.Currency)
	}
}

func TestHandleGetQuotes_PassesStrategyThrough(t *testing.T) {
	quotes := &fakeQuoteService{quotes: []domain.Quote{
		{Provider: "printful", ItemAvailability: []bool{true}},
	}}
	mux := newQuoteTestServer(quotes)

	body := strings.Replace(validQuoteBody(), `"items"`, `"strategy": "speed", "items"`, 1)
	req := httptest.NewRequest("POST", "/api/quotes", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if quotes.lastStrategy != domain.StrategySpeed {
		t.Errorf("expected speed strategy, got %s", quotes.lastStrategy)
	}
}

func TestHandleGetQuotes_NoProvidersAvailable(t *testing.T) {
	quotes := &fakeQuoteService{getErr: domain.ProviderUnavailable("QuoteService.GetQuotes")}
	mux := newQuoteTestServer(quotes)

	req := httptest.NewRequest("POST", "/api/quotes", strings.NewReader(validQuoteBody()))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	errObj := decodeErrorBody(t, rec)
	if errObj["code"] != domain.EPROVIDER {
		t.Errorf("expected EPROVIDER, got %v", errObj["code"])
	}
}

func TestHandleGetQuotes_ValidationErrorSurfacesFields(t *testing.T) {
	quotes := &fakeQuoteService{getErr: domain.NewValidationError("QuoteService.GetQuotes", "items", "At least one line item is required")}
	mux := newQuoteTestServer(quotes)

	req := httptest.NewRequest("POST", "/api/quotes", strings.NewReader(validQuoteBody()))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleGetQuotes_MalformedBody(t *testing.T) {
	mux := newQuoteTestServer(&fakeQuoteService{})

	req := httptest.NewRequest("POST", "/api/quotes", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
