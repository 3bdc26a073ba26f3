package tenantinfra

import (
	"context"
	"database/sql"
	"time"

	"github.com/Abraxas-365/custodia/pkg/errx"
	"github.com/Abraxas-365/custodia/pkg/iam/tenant"
	"github.com/Abraxas-365/custodia/pkg/kernel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresTenantRepository is the PostgreSQL implementation of
// tenant.Repository.
type PostgresTenantRepository struct {
	db *sqlx.DB
}

// NewPostgresTenantRepository creates a new repository instance.
func NewPostgresTenantRepository(db *sqlx.DB) tenant.Repository {
	return &PostgresTenantRepository{db: db}
}

type tenantRow struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	Domains     pq.StringArray `db:"domains"`
	IPAllowlist pq.StringArray `db:"ip_allowlist"`
	Status      string         `db:"status"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r tenantRow) toDomain() *tenant.Tenant {
	return &tenant.Tenant{
		ID:          kernel.NewTenantID(r.ID),
		Name:        r.Name,
		Domains:     r.Domains,
		IPAllowlist: r.IPAllowlist,
		Status:      tenant.Status(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// Save inserts or updates a tenant.
func (r *PostgresTenantRepository) Save(ctx context.Context, t tenant.Tenant) error {
	query := `
		INSERT INTO tenants (id, name, domains, ip_allowlist, status, created_at, updated_at)
		VALUES (:id, :name, :domains, :ip_allowlist, :status, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			domains = EXCLUDED.domains,
			ip_allowlist = EXCLUDED.ip_allowlist,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`

	row := tenantRow{
		ID:          t.ID.String(),
		Name:        t.Name,
		Domains:     pq.StringArray(t.Domains),
		IPAllowlist: pq.StringArray(t.IPAllowlist),
		Status:      string(t.Status),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return errx.Wrap(err, "failed to save tenant", errx.TypeInternal).
			WithDetail("tenant_id", t.ID.String())
	}
	return nil
}

// FindByID returns the tenant with the given id.
func (r *PostgresTenantRepository) FindByID(ctx context.Context, id kernel.TenantID) (*tenant.Tenant, error) {
	var row tenantRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, name, domains, ip_allowlist, status, created_at, updated_at
		 FROM tenants WHERE id = $1`, id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, tenant.ErrTenantNotFound().WithDetail("tenant_id", id.String())
		}
		return nil, errx.Wrap(err, "failed to find tenant", errx.TypeInternal)
	}
	return row.toDomain(), nil
}

// FindByDomain returns the tenant owning the given domain.
func (r *PostgresTenantRepository) FindByDomain(ctx context.Context, domain string) (*tenant.Tenant, error) {
	var row tenantRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, name, domains, ip_allowlist, status, created_at, updated_at
		 FROM tenants WHERE $1 = ANY(domains)`, domain)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, tenant.ErrTenantNotFound().WithDetail("domain", domain)
		}
		return nil, errx.Wrap(err, "failed to find tenant by domain", errx.TypeInternal)
	}
	return row.toDomain(), nil
}
