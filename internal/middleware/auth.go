// Package middleware contains HTTP middleware for the service.
//
// Middleware functions follow the standard Go pattern of wrapping
// http.Handler and are composed with Stack.
package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tshopco/tshop/internal/domain"
	"github.com/tshopco/tshop/internal/service"
)

// GuestTokenHeader carries the signed guest identity token in both
// directions. Clients store the value and replay it on later requests so
// their generation quota follows them.
const GuestTokenHeader = "X-Guest-Token"

// =============================================================================
// Context Keys
// =============================================================================

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	subjectContextKey contextKey = "subject"
	partnerContextKey contextKey = "partner"
)

// =============================================================================
// Context Helpers
// =============================================================================

// GetSubject retrieves the quota subject from the request context.
// The second return is false when no subject middleware ran.
func GetSubject(ctx context.Context) (domain.Subject, bool) {
	subject, ok := ctx.Value(subjectContextKey).(domain.Subject)
	return subject, ok
}

func setSubject(ctx context.Context, subject domain.Subject) context.Context {
	return context.WithValue(ctx, subjectContextKey, subject)
}

// GetPartner retrieves the authenticated partner from the request context.
// Returns nil when the request did not present a valid partner key.
func GetPartner(ctx context.Context) *domain.Partner {
	partner, ok := ctx.Value(partnerContextKey).(*domain.Partner)
	if !ok {
		return nil
	}
	return partner
}

func setPartner(ctx context.Context, partner *domain.Partner) context.Context {
	return context.WithValue(ctx, partnerContextKey, partner)
}

// =============================================================================
// Subject Middleware
// =============================================================================

// SubjectMiddleware resolves the quota subject for storefront API requests.
//
// Guests are identified by a signed token the client holds. A missing or
// invalid token mints a fresh guest identity rather than failing; the token
// (new or replayed) is always echoed back in the response header so the
// client can persist it.
type SubjectMiddleware struct {
	usage  service.UsageService
	logger *slog.Logger
}

// NewSubjectMiddleware creates a new SubjectMiddleware.
func NewSubjectMiddleware(usage service.UsageService, logger *slog.Logger) *SubjectMiddleware {
	return &SubjectMiddleware{
		usage:  usage,
		logger: logger,
	}
}

// WithSubject resolves the guest subject and stores it in the context.
//
// The response header must be set before the handler writes the body, so it
// is set up front even when the handler later fails.
func (m *SubjectMiddleware) WithSubject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, token, err := m.usage.EnsureGuest(r.Header.Get(GuestTokenHeader))
		if err != nil {
			m.logger.Error("failed to resolve guest subject", "error", err)
			writeJSONError(w, http.StatusInternalServerError, domain.EINTERNAL,
				"An internal error occurred. Please try again later.")
			return
		}

		w.Header().Set(GuestTokenHeader, token)

		ctx := setSubject(r.Context(), subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// =============================================================================
// Partner Auth Middleware
// =============================================================================

// PartnerAuthMiddleware authenticates partner API requests by bearer key.
type PartnerAuthMiddleware struct {
	partners service.PartnerService
	logger   *slog.Logger
}

// NewPartnerAuthMiddleware creates a new PartnerAuthMiddleware.
func NewPartnerAuthMiddleware(partners service.PartnerService, logger *slog.Logger) *PartnerAuthMiddleware {
	return &PartnerAuthMiddleware{
		partners: partners,
		logger:   logger,
	}
}

// RequirePartner rejects requests without a valid partner API key.
// Keys are presented as "Authorization: Bearer tsk_...".
func (m *PartnerAuthMiddleware) RequirePartner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := bearerToken(r)
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, domain.EUNAUTHORIZED, "Partner API key required")
			return
		}

		partner, err := m.partners.Authenticate(r.Context(), key)
		if err != nil {
			m.logger.Info("partner authentication failed",
				"path", r.URL.Path,
				"ip", getClientIP(r),
				"error", err,
			)
			writeJSONError(w, http.StatusUnauthorized, domain.EUNAUTHORIZED, domain.ErrorMessage(err))
			return
		}

		ctx := setPartner(r.Context(), partner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(auth[len(prefix):]), true
}

// writeJSONError writes an error body in the API's standard envelope.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]map[string]string{
		"error": {
			"code":    code,
			"message": message,
		},
	})
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
