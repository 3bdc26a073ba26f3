package auth

import "context"

// TokenValidator answers whether an issued access token is still live. The
// persisted token record, not the signature, is the source of truth, so
// revocation takes effect on the next check.
type TokenValidator interface {
	IsValid(ctx context.Context, accessTokenID string) (bool, error)
}

// AuditService records authorization outcomes. Failures carry whatever
// partial identity the pipeline resolved before rejecting.
type AuditService interface {
	AuthorizationGranted(ctx context.Context, identity Identity, target, operation string)
	AuthorizationDenied(ctx context.Context, identity Identity, target, operation, stage string, err error)
}

// Identity is the partial identity known at the point of an authorization
// decision. Fields are empty when the pipeline rejected before resolving them.
type Identity struct {
	AccessTokenID string
	ClientID      string
	UserID        string
	TenantID      string
	RemoteIP      string
}
