package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/tshopco/tshop/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeFulfillmentService records reconciliation calls.
type fakeFulfillmentService struct {
	applied  []domain.ProviderEvent
	applyErr error
}

func (f *fakeFulfillmentService) Dispatch(ctx context.Context, orderID uuid.UUID) error {
	return nil
}

func (f *fakeFulfillmentService) ApplyProviderEvent(ctx context.Context, event domain.ProviderEvent) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, event)
	return nil
}

func (f *fakeFulfillmentService) SyncPending(ctx context.Context, limit int32) (int, error) {
	return 0, nil
}

func (f *fakeFulfillmentService) CancelOrder(ctx context.Context, orderID uuid.UUID) error {
	return nil
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newWebhookTestServer(fulfillments *fakeFulfillmentService) *http.ServeMux {
	h := NewWebhookHandler(nil, fulfillments, nil, map[string]string{"mock": "test-secret"}, testLogger())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func TestProviderWebhook_ValidSignatureApplied(t *testing.T) {
	fulfillments := &fakeFulfillmentService{}
	mux := newWebhookTestServer(fulfillments)

	body := `{"event_id":"evt-1","type":"order.shipped","order_id":"mock-1","status":"shipped","tracking_number":"TRACK123"}`
	req := httptest.NewRequest("POST", "/webhooks/mock", strings.NewReader(body))
	req.Header.Set(ProviderSignatureHeader, signBody("test-secret", []byte(body)))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(fulfillments.applied) != 1 {
		t.Fatalf("expected 1 applied event, got %d", len(fulfillments.applied))
	}
	event := fulfillments.applied[0]
	if event.Provider != domain.ProviderMock {
		t.Errorf("expected provider mock, got %s", event.Provider)
	}
	if event.ProviderOrderID != "mock-1" || event.ProviderStatus != "shipped" {
		t.Errorf("event not normalized: %+v", event)
	}
	if event.TrackingNumber != "TRACK123" {
		t.Errorf("expected tracking number, got %q", event.TrackingNumber)
	}
}

func TestProviderWebhook_BadSignatureRejectedBeforeProcessing(t *testing.T) {
	fulfillments := &fakeFulfillmentService{}
	mux := newWebhookTestServer(fulfillments)

	body := `{"event_id":"evt-1","type":"order.shipped","order_id":"mock-1","status":"shipped"}`
	req := httptest.NewRequest("POST", "/webhooks/mock", strings.NewReader(body))
	req.Header.Set(ProviderSignatureHeader, signBody("wrong-secret", []byte(body)))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(fulfillments.applied) != 0 {
		t.Error("event must not be applied when the signature fails")
	}
}

func TestProviderWebhook_MissingSignatureRejected(t *testing.T) {
	fulfillments := &fakeFulfillmentService{}
	mux := newWebhookTestServer(fulfillments)

	body := `{"order_id":"mock-1","status":"shipped"}`
	req := httptest.NewRequest("POST", "/webhooks/mock", strings.NewReader(body))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestProviderWebhook_UnknownProvider(t *testing.T) {
	mux := newWebhookTestServer(&fakeFulfillmentService{})

	body := `{"order_id":"x","status":"shipped"}`
	req := httptest.NewRequest("POST", "/webhooks/gelato", strings.NewReader(body))
	req.Header.Set(ProviderSignatureHeader, signBody("test-secret", []byte(body)))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestProviderWebhook_UnparseablePayload(t *testing.T) {
	fulfillments := &fakeFulfillmentService{}
	mux := newWebhookTestServer(fulfillments)

	body := `{"type":"order.shipped"}` // missing order_id and status
	req := httptest.NewRequest("POST", "/webhooks/mock", strings.NewReader(body))
	req.Header.Set(ProviderSignatureHeader, signBody("test-secret", []byte(body)))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(fulfillments.applied) != 0 {
		t.Error("unparseable payload must not be applied")
	}
}

func TestProviderWebhook_ProcessingFailureReturns500(t *testing.T) {
	fulfillments := &fakeFulfillmentService{applyErr: domain.Internal(nil, "x", "db down")}
	mux := newWebhookTestServer(fulfillments)

	body := `{"order_id":"mock-1","status":"shipped"}`
	req := httptest.NewRequest("POST", "/webhooks/mock", strings.NewReader(body))
	req.Header.Set(ProviderSignatureHeader, signBody("test-secret", []byte(body)))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	// 500 tells the provider to retry the delivery.
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestStripeWebhook_NoBillingConfigured(t *testing.T) {
	mux := newWebhookTestServer(&fakeFulfillmentService{})

	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader("{}"))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	// Acknowledged so Stripe does not retry against a misconfigured server.
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte("payload")
	sig := signBody("s3cret", body)

	if !verifySignature("s3cret", body, sig) {
		t.Error("valid signature rejected")
	}
	if verifySignature("s3cret", body, "") {
		t.Error("empty signature accepted")
	}
	if verifySignature("other", body, sig) {
		t.Error("signature with wrong secret accepted")
	}
	if verifySignature("s3cret", []byte("tampered"), sig) {
		t.Error("signature over different body accepted")
	}
}
