package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// =============================================================================
// Request Logging Middleware Tests
// =============================================================================

func loggedRequest(t *testing.T, method, target string, status int, header http.Header) string {
	t.Helper()
	var buf bytes.Buffer
	mw := NewRequestLoggingMiddleware(slog.New(slog.NewTextHandler(&buf, nil)))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})

	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "192.168.1.1:12345"
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	mw.Handler(handler).ServeHTTP(rec, req)
	return buf.String()
}

func TestRequestLoggingMiddleware_LogsBasicInfo(t *testing.T) {
	out := loggedRequest(t, "POST", "/api/quotes", http.StatusOK, nil)

	for _, want := range []string{"POST", "/api/quotes", "200", "duration"} {
		if !strings.Contains(out, want) {
			t.Errorf("log should contain %q, got: %s", want, out)
		}
	}
}

func TestRequestLoggingMiddleware_LogsForwardedClientIP(t *testing.T) {
	header := http.Header{}
	header.Set("X-Forwarded-For", "203.0.113.195")
	out := loggedRequest(t, "GET", "/api/orders", http.StatusOK, header)

	if !strings.Contains(out, "203.0.113.195") {
		t.Errorf("log should contain client IP from X-Forwarded-For, got: %s", out)
	}
}

func TestRequestLoggingMiddleware_ServerErrorsLogAtWarn(t *testing.T) {
	out := loggedRequest(t, "POST", "/api/checkout", http.StatusInternalServerError, nil)

	if !strings.Contains(out, "500") {
		t.Errorf("log should contain 500 status, got: %s", out)
	}
	if !strings.Contains(out, "level=WARN") {
		t.Errorf("5xx should log at WARN level, got: %s", out)
	}
}

func TestRequestLoggingMiddleware_RedactsTokenValues(t *testing.T) {
	out := loggedRequest(t, "GET", "/api/designs?guest_token=eyJsecret123&limit=5", http.StatusOK, nil)

	if strings.Contains(out, "eyJsecret123") {
		t.Errorf("log should not contain token value, got: %s", out)
	}
	if !strings.Contains(out, "limit=5") {
		t.Errorf("log should keep harmless params, got: %s", out)
	}
}

func TestRequestLoggingMiddleware_SkipsNoisyEndpoints(t *testing.T) {
	for _, path := range []string{"/health", "/metrics", "/files/designs/x/image.png"} {
		out := loggedRequest(t, "GET", path, http.StatusOK, nil)
		if out != "" {
			t.Errorf("%s should not be logged, got: %s", path, out)
		}
	}
}

func TestRequestLoggingMiddleware_PassesResponseThrough(t *testing.T) {
	var buf bytes.Buffer
	mw := NewRequestLoggingMiddleware(slog.New(slog.NewTextHandler(&buf, nil)))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Custom", "value")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"d1"}`))
	})

	req := httptest.NewRequest("POST", "/api/designs/generate", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	rec := httptest.NewRecorder()
	mw.Handler(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rec.Code)
	}
	if rec.Header().Get("X-Custom") != "value" {
		t.Error("custom header should be preserved")
	}
	if rec.Body.String() != `{"id":"d1"}` {
		t.Errorf("response body should be preserved, got: %s", rec.Body.String())
	}
	if !strings.Contains(buf.String(), "201") {
		t.Errorf("log should contain the written status, got: %s", buf.String())
	}
}

func TestSanitizePath(t *testing.T) {
	testCases := []struct {
		name     string
		path     string
		rawQuery string
		want     string
	}{
		{"no query", "/api/quotes", "", "/api/quotes"},
		{"plain params pass through", "/api/orders", "limit=10", "/api/orders?limit=10"},
		{"guest token redacted", "/api/designs", "guest_token=eyJhbGci", "/api/designs?guest_token=[REDACTED]"},
		{"signature redacted", "/webhooks/printful", "signature=abc123&id=7", "/webhooks/printful?signature=[REDACTED]&id=7"},
		{"case insensitive", "/api/partner/orders", "API_KEY=tsk_abc", "/api/partner/orders?API_KEY=[REDACTED]"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sanitizePath(tc.path, tc.rawQuery); got != tc.want {
				t.Errorf("sanitizePath(%q, %q) = %q, want %q", tc.path, tc.rawQuery, got, tc.want)
			}
		})
	}
}
