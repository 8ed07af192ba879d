package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tshopco/tshop/internal/domain"
)

// =============================================================================
// Error Response Tests
// =============================================================================

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body struct {
		Error map[string]interface{} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if body.Error == nil {
		t.Fatal("response has no error object")
	}
	return body.Error
}

func TestErrorResponse_MapsDomainCodes(t *testing.T) {
	testCases := []struct {
		code   string
		status int
	}{
		{domain.EINVALID, http.StatusBadRequest},
		{domain.EUNAUTHORIZED, http.StatusUnauthorized},
		{domain.EFORBIDDEN, http.StatusForbidden},
		{domain.ENOTFOUND, http.StatusNotFound},
		{domain.ECONFLICT, http.StatusConflict},
		{domain.ERATELIMIT, http.StatusTooManyRequests},
		{domain.EPROVIDER, http.StatusBadRequest},
		{domain.EINTERNAL, http.StatusInternalServerError},
		{domain.ENOTIMPL, http.StatusNotImplemented},
	}

	for _, tc := range testCases {
		t.Run(tc.code, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/quotes", nil)
			rec := httptest.NewRecorder()

			err := domain.Errorf(tc.code, "Service.Op", "something happened")
			ErrorResponse(rec, req, testLogger(), err)

			if rec.Code != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, rec.Code)
			}
			errObj := decodeErrorBody(t, rec)
			if errObj["code"] != tc.code {
				t.Errorf("expected code %s, got %v", tc.code, errObj["code"])
			}
		})
	}
}

func TestErrorResponse_DoesNotExposeOperationName(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/checkout", nil)
	rec := httptest.NewRecorder()

	err := domain.Internal(nil, "CheckoutHandler.HandleCheckout", "Failed to create order")
	ErrorResponse(rec, req, testLogger(), err)

	if strings.Contains(rec.Body.String(), "CheckoutHandler") {
		t.Errorf("response exposes internal operation name: %s", rec.Body.String())
	}
}

func TestValidationErrorResponse_IncludesFields(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/quotes", nil)
	rec := httptest.NewRecorder()

	ve := domain.NewValidationError("QuoteService.GetQuotes", "postal_code", "Postal code is required")
	ErrorResponse(rec, req, testLogger(), ve)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	errObj := decodeErrorBody(t, rec)
	fields, ok := errObj["fields"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected fields map, got %T", errObj["fields"])
	}
	if fields["postal_code"] != "Postal code is required" {
		t.Errorf("unexpected field message: %v", fields["postal_code"])
	}
	if strings.Contains(rec.Body.String(), "QuoteService") {
		t.Errorf("response exposes internal operation name: %s", rec.Body.String())
	}
}

func TestQuotaExceededResponse(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/designs/generate", nil)
	rec := httptest.NewRecorder()

	resetsAt := time.Now().Add(4 * time.Hour).UTC().Truncate(time.Second)
	qe := domain.QuotaExceeded("UsageService.Consume", domain.TierFree, 0, 12, resetsAt)
	ErrorResponse(rec, req, testLogger(), qe)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	errObj := decodeErrorBody(t, rec)
	if errObj["code"] != domain.ERATELIMIT {
		t.Errorf("expected code %s, got %v", domain.ERATELIMIT, errObj["code"])
	}
	if errObj["remaining_daily"] != float64(0) {
		t.Errorf("expected remaining_daily 0, got %v", errObj["remaining_daily"])
	}
	if errObj["remaining_monthly"] != float64(12) {
		t.Errorf("expected remaining_monthly 12, got %v", errObj["remaining_monthly"])
	}
	if errObj["resets_at"] != resetsAt.Format(time.RFC3339) {
		t.Errorf("expected resets_at %s, got %v", resetsAt.Format(time.RFC3339), errObj["resets_at"])
	}
}

func TestNotFoundResponse(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/orders/nope", nil)
	rec := httptest.NewRecorder()

	NotFoundResponse(rec, req, testLogger())

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %s", ct)
	}
}

func TestDecodeJSON_RejectsGarbage(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/quotes", strings.NewReader("{not json"))

	var dst struct{}
	err := decodeJSON(req, &dst)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if domain.ErrorCode(err) != domain.EINVALID {
		t.Errorf("expected EINVALID, got %s", domain.ErrorCode(err))
	}
}

func TestErrorCodeToHTTPStatus_UnknownCodeIs500(t *testing.T) {
	if status := ErrorCodeToHTTPStatus("bogus"); status != http.StatusInternalServerError {
		t.Errorf("expected 500 for unknown code, got %d", status)
	}
}
