// Package http carries request-plumbing helpers shared by the API handlers:
// client IP resolution for audit logging and share token extraction.
package http

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const clientIPContextKey contextKey = "client_ip"

// ShareTokenHeader is the header a caller uses to present a share token; the
// shareToken query parameter is the fallback for plain links.
const ShareTokenHeader = "x-share-token"

// ShareTokenFromRequest extracts the raw share token capability presented
// with a request. Header wins over query parameter; empty means no token was
// presented.
func ShareTokenFromRequest(r *http.Request) string {
	if token := r.Header.Get(ShareTokenHeader); token != "" {
		return token
	}
	return r.URL.Query().Get("shareToken")
}

// ExtractClientIP extracts the client IP address from the request, checking
// X-Forwarded-For first (proxied requests), then X-Real-IP, finally
// RemoteAddr.
func ExtractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP in the comma-separated list
		if before, _, ok := strings.Cut(xff, ","); ok {
			return before
		}
		return xff
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	if idx := strings.LastIndex(r.RemoteAddr, ":"); idx != -1 {
		return r.RemoteAddr[:idx]
	}
	return r.RemoteAddr
}

// ClientIPFromContext extracts the client IP from the request context.
// This should be called from handlers wrapped by ClientIPMiddleware.
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPContextKey).(string)
	return ip
}

// ClientIPMiddleware stores the client IP in the request context so denied
// access attempts can be audit-logged with their origin.
func ClientIPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ExtractClientIP(r)
			ctx := context.WithValue(r.Context(), clientIPContextKey, ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
