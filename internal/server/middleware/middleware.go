// Package middleware holds the HTTP middleware chain (auth, client metadata,
// telemetry) and the request-context helpers shared by handlers.
package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"support-access-plane/internal/security"
	"support-access-plane/internal/telemetry"
	telemetrydomain "support-access-plane/internal/telemetry/domain"
	"support-access-plane/internal/telemetry/producer"
)

const bearerPrefix = "bearer "

// Auth returns middleware that validates the Bearer (access) token from the
// Authorization header and sets the principal id in context. Requests without
// a valid token get 401. Apply only to protected routes; login, health, and
// the scoped read path carry their own credentials.
func Auth(tokens *security.TokenProvider) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				WriteError(w, http.StatusUnauthorized, "missing or invalid authorization")
				return
			}
			userID, err := tokens.ValidateAccess(token)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "missing or invalid authorization")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), userID)))
		})
	}
}

// ClientMeta returns middleware that captures the caller's IP and user agent
// into the request context for the audit recorder and telemetry.
func ClientMeta() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithClientMeta(r.Context(), ClientIP(r), r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// httpRequestMetadata is the JSON shape stored in Event.Metadata for http_request events.
type httpRequestMetadata struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	StatusCode int    `json:"status_code"`
	DurationMs int64  `json:"duration_ms"`
	ClientIP   string `json:"client_ip"`
}

// Telemetry returns middleware that emits a telemetry event after each request.
// Best-effort: failures are logged and do not fail the request. If p is nil,
// the middleware no-ops. skipPaths is the set of paths to not emit (e.g. /health).
func Telemetry(p producer.Producer, skipPaths map[string]bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			if p == nil || skipPaths[r.URL.Path] {
				return
			}
			meta := httpRequestMetadata{
				Method:     r.Method,
				Path:       r.URL.Path,
				StatusCode: sw.status,
				DurationMs: time.Since(start).Milliseconds(),
				ClientIP:   ClientIPFromContext(r.Context()),
			}
			metaJSON, _ := json.Marshal(meta)
			userID, _ := GetPrincipalID(r.Context())
			telemetry.EmitAsync(p, &telemetrydomain.Event{
				UserID:    userID,
				EventType: "http_request",
				Source:    "http_middleware",
				Metadata:  metaJSON,
				CreatedAt: time.Now().UTC(),
			})
		})
	}
}

// statusWriter records the status code written by the handler.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// ClientIP returns the client IP from X-Forwarded-For, X-Real-IP, or
// RemoteAddr, or "unknown".
func ClientIP(r *http.Request) string {
	if s := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); s != "" {
		if i := strings.Index(s, ","); i > 0 {
			s = strings.TrimSpace(s[:i])
		}
		return s
	}
	if s := strings.TrimSpace(r.Header.Get("X-Real-IP")); s != "" {
		return s
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// extractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
