package clientinfra

import (
	"context"
	"database/sql"
	"time"

	"github.com/Abraxas-365/custodia/pkg/errx"
	"github.com/Abraxas-365/custodia/pkg/iam/client"
	"github.com/Abraxas-365/custodia/pkg/kernel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresClientRepository is the PostgreSQL implementation of
// client.Repository.
type PostgresClientRepository struct {
	db *sqlx.DB
}

// NewPostgresClientRepository creates a new repository instance.
func NewPostgresClientRepository(db *sqlx.DB) client.Repository {
	return &PostgresClientRepository{db: db}
}

type clientRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	RedirectURI  string         `db:"redirect_uri"`
	SecretHash   string         `db:"secret_hash"`
	TenantID     string         `db:"tenant_id"`
	Confidential bool           `db:"confidential"`
	GrantTypes   pq.StringArray `db:"grant_types"`
	Status       string         `db:"status"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r clientRow) toDomain() *client.Client {
	grants := make([]client.GrantType, len(r.GrantTypes))
	for i, g := range r.GrantTypes {
		grants[i] = client.GrantType(g)
	}
	return &client.Client{
		ID:           kernel.NewClientID(r.ID),
		Name:         r.Name,
		RedirectURI:  r.RedirectURI,
		SecretHash:   r.SecretHash,
		TenantID:     kernel.NewTenantID(r.TenantID),
		Confidential: r.Confidential,
		GrantTypes:   grants,
		Status:       client.Status(r.Status),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func toRow(c client.Client) clientRow {
	grants := make(pq.StringArray, len(c.GrantTypes))
	for i, g := range c.GrantTypes {
		grants[i] = string(g)
	}
	return clientRow{
		ID:           c.ID.String(),
		Name:         c.Name,
		RedirectURI:  c.RedirectURI,
		SecretHash:   c.SecretHash,
		TenantID:     c.TenantID.String(),
		Confidential: c.Confidential,
		GrantTypes:   grants,
		Status:       string(c.Status),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// Save inserts or updates a client.
func (r *PostgresClientRepository) Save(ctx context.Context, c client.Client) error {
	query := `
		INSERT INTO clients (
			id, name, redirect_uri, secret_hash, tenant_id, confidential,
			grant_types, status, created_at, updated_at
		) VALUES (
			:id, :name, :redirect_uri, :secret_hash, :tenant_id, :confidential,
			:grant_types, :status, :created_at, :updated_at
		)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			redirect_uri = EXCLUDED.redirect_uri,
			secret_hash = EXCLUDED.secret_hash,
			confidential = EXCLUDED.confidential,
			grant_types = EXCLUDED.grant_types,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.db.NamedExecContext(ctx, query, toRow(c)); err != nil {
		return errx.Wrap(err, "failed to save client", errx.TypeInternal).
			WithDetail("client_id", c.ID.String())
	}
	return nil
}

// FindByID returns the client with the given id.
func (r *PostgresClientRepository) FindByID(ctx context.Context, id kernel.ClientID) (*client.Client, error) {
	var row clientRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, name, redirect_uri, secret_hash, tenant_id, confidential,
		        grant_types, status, created_at, updated_at
		 FROM clients WHERE id = $1`, id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, client.ErrClientNotFound().WithDetail("client_id", id.String())
		}
		return nil, errx.Wrap(err, "failed to find client", errx.TypeInternal)
	}
	return row.toDomain(), nil
}

// FindByTenant returns every client registered under the tenant.
func (r *PostgresClientRepository) FindByTenant(ctx context.Context, tenantID kernel.TenantID) ([]*client.Client, error) {
	var rows []clientRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, name, redirect_uri, secret_hash, tenant_id, confidential,
		        grant_types, status, created_at, updated_at
		 FROM clients WHERE tenant_id = $1 ORDER BY created_at`, tenantID.String())
	if err != nil {
		return nil, errx.Wrap(err, "failed to list clients", errx.TypeInternal)
	}

	out := make([]*client.Client, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}
