package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/tshopco/tshop/internal/domain"
)

// InternalAuthMiddleware guards the operational endpoints with a shared
// bearer token. When no token is configured the endpoints are disabled
// entirely rather than left open.
type InternalAuthMiddleware struct {
	token string
}

// NewInternalAuthMiddleware creates a new internal auth middleware.
func NewInternalAuthMiddleware(token string) *InternalAuthMiddleware {
	return &InternalAuthMiddleware{token: token}
}

// Handler returns middleware that requires the shared token.
func (m *InternalAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.token == "" {
			writeJSONError(w, http.StatusNotFound, domain.ENOTFOUND, "Not found")
			return
		}

		presented, ok := bearerToken(r)
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(m.token)) != 1 {
			writeJSONError(w, http.StatusUnauthorized, domain.EUNAUTHORIZED, "Invalid internal token")
			return
		}

		next.ServeHTTP(w, r)
	})
}
