package client

import (
	"context"

	"github.com/Abraxas-365/custodia/pkg/kernel"
)

// Repository defines the contract for client persistence.
type Repository interface {
	Save(ctx context.Context, c Client) error
	FindByID(ctx context.Context, id kernel.ClientID) (*Client, error)
	FindByTenant(ctx context.Context, tenantID kernel.TenantID) ([]*Client, error)
}
