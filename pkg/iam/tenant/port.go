package tenant

import (
	"context"

	"github.com/Abraxas-365/custodia/pkg/kernel"
)

// Repository defines the contract for tenant persistence.
type Repository interface {
	Save(ctx context.Context, t Tenant) error
	FindByID(ctx context.Context, id kernel.TenantID) (*Tenant, error)
	FindByDomain(ctx context.Context, domain string) (*Tenant, error)
}
