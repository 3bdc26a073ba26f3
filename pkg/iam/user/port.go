package user

import (
	"context"

	"github.com/Abraxas-365/custodia/pkg/kernel"
)

// Repository defines the contract for user persistence. Lookups are always
// scoped to a tenant; a user id only has meaning within its tenant.
type Repository interface {
	Save(ctx context.Context, u User) error
	FindByID(ctx context.Context, id kernel.UserID, tenantID kernel.TenantID) (*User, error)
	FindByEmail(ctx context.Context, email string, tenantID kernel.TenantID) (*User, error)
}

// ProjectionCache is the short-TTL cache for session projections. It is
// never consulted for revocation-sensitive checks; handlers that mutate a
// profile must call Invalidate synchronously, the TTL is only a backstop.
type ProjectionCache interface {
	Get(ctx context.Context, id kernel.UserID) (*kernel.SessionProjection, bool)
	Set(ctx context.Context, id kernel.UserID, p *kernel.SessionProjection) error
	Invalidate(ctx context.Context, id kernel.UserID) error
}
