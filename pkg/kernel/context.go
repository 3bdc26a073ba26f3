package kernel

import "context"

// SessionProjection is the read-mostly view of a user attached to
// cookie-authenticated requests.
type SessionProjection struct {
	DisplayName string            `json:"display_name"`
	TenantName  string            `json:"tenant_name"`
	Tags        []string          `json:"tags"`
	Settings    map[string]string `json:"settings"`
}

// AuthContext is the resolved identity attached to every authorized request.
type AuthContext struct {
	UserID   UserID             `json:"user_id"`
	ClientID ClientID           `json:"client_id"`
	TenantID TenantID           `json:"tenant_id"`
	Scopes   []string           `json:"scopes"`
	Session  *SessionProjection `json:"session,omitempty"`
}

// IsValid verifies the AuthContext carries a complete identity.
func (ac *AuthContext) IsValid() bool {
	return !ac.UserID.IsEmpty() && !ac.ClientID.IsEmpty() && !ac.TenantID.IsEmpty()
}

// HasScope reports whether the context carries the exact scope string.
// Hierarchical matching is the scope package's job; this is a literal check
// used for quick lookups on already-authorized requests.
func (ac *AuthContext) HasScope(scope string) bool {
	for _, s := range ac.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// ============================================================================
// Context Keys
// ============================================================================

type ContextKey string

const (
	// AuthContextKey stores the AuthContext in context.Context / fiber locals
	AuthContextKey ContextKey = "auth_context"

	// RequestIDKey stores the request id
	RequestIDKey ContextKey = "request_id"
)

// WithAuthContext returns a context carrying the resolved identity.
func WithAuthContext(ctx context.Context, ac *AuthContext) context.Context {
	return context.WithValue(ctx, AuthContextKey, ac)
}

// AuthContextFrom extracts the resolved identity from a context, if present.
func AuthContextFrom(ctx context.Context) (*AuthContext, bool) {
	ac, ok := ctx.Value(AuthContextKey).(*AuthContext)
	return ac, ok
}
