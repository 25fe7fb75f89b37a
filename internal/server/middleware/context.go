package middleware

import "context"

type contextKey struct{ name string }

var (
	principalIDKey = contextKey{"principal_id"}
	clientIPKey    = contextKey{"client_ip"}
	userAgentKey   = contextKey{"user_agent"}
)

// WithPrincipal returns a context with the authenticated principal's user id set.
// Handlers read it via GetPrincipalID.
func WithPrincipal(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, principalIDKey, userID)
}

// GetPrincipalID returns the authenticated user id from context and true if set; otherwise "", false.
func GetPrincipalID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(principalIDKey).(string)
	return v, ok && v != ""
}

// WithClientMeta returns a context carrying the caller's IP and user agent,
// captured once by middleware so the audit recorder can read them later.
func WithClientMeta(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey, ip)
	return context.WithValue(ctx, userAgentKey, userAgent)
}

// ClientIPFromContext returns the client IP captured by middleware, or "unknown".
func ClientIPFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey).(string); ok && v != "" {
		return v
	}
	return "unknown"
}

// UserAgentFromContext returns the user agent captured by middleware, or "".
func UserAgentFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userAgentKey).(string)
	return v
}
