package userinfra

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/Abraxas-365/custodia/pkg/errx"
	"github.com/Abraxas-365/custodia/pkg/iam/user"
	"github.com/Abraxas-365/custodia/pkg/kernel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresUserRepository is the PostgreSQL implementation of user.Repository.
type PostgresUserRepository struct {
	db *sqlx.DB
}

// NewPostgresUserRepository creates a new repository instance.
func NewPostgresUserRepository(db *sqlx.DB) user.Repository {
	return &PostgresUserRepository{db: db}
}

type userRow struct {
	ID           string         `db:"id"`
	TenantID     string         `db:"tenant_id"`
	Email        string         `db:"email"`
	DisplayName  string         `db:"display_name"`
	PasswordHash string         `db:"password_hash"`
	Scopes       pq.StringArray `db:"scopes"`
	Tags         pq.StringArray `db:"tags"`
	Settings     []byte         `db:"settings"`
	Status       string         `db:"status"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r userRow) toDomain() (*user.User, error) {
	settings := make(map[string]string)
	if len(r.Settings) > 0 {
		if err := json.Unmarshal(r.Settings, &settings); err != nil {
			return nil, errx.Wrap(err, "failed to decode user settings", errx.TypeInternal)
		}
	}
	return &user.User{
		ID:           kernel.NewUserID(r.ID),
		TenantID:     kernel.NewTenantID(r.TenantID),
		Email:        r.Email,
		DisplayName:  r.DisplayName,
		PasswordHash: r.PasswordHash,
		Scopes:       r.Scopes,
		Tags:         r.Tags,
		Settings:     settings,
		Status:       user.Status(r.Status),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}, nil
}

// Save inserts or updates a user.
func (r *PostgresUserRepository) Save(ctx context.Context, u user.User) error {
	settings, err := json.Marshal(u.Settings)
	if err != nil {
		return errx.Wrap(err, "failed to encode user settings", errx.TypeInternal)
	}

	query := `
		INSERT INTO users (
			id, tenant_id, email, display_name, password_hash,
			scopes, tags, settings, status, created_at, updated_at
		) VALUES (
			:id, :tenant_id, :email, :display_name, :password_hash,
			:scopes, :tags, :settings, :status, :created_at, :updated_at
		)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			password_hash = EXCLUDED.password_hash,
			scopes = EXCLUDED.scopes,
			tags = EXCLUDED.tags,
			settings = EXCLUDED.settings,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`

	row := userRow{
		ID:           u.ID.String(),
		TenantID:     u.TenantID.String(),
		Email:        u.Email,
		DisplayName:  u.DisplayName,
		PasswordHash: u.PasswordHash,
		Scopes:       pq.StringArray(u.Scopes),
		Tags:         pq.StringArray(u.Tags),
		Settings:     settings,
		Status:       string(u.Status),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return errx.Wrap(err, "failed to save user", errx.TypeInternal).
			WithDetail("user_id", u.ID.String())
	}
	return nil
}

// FindByID returns the user with the given id within the tenant.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id kernel.UserID, tenantID kernel.TenantID) (*user.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, tenant_id, email, display_name, password_hash,
		        scopes, tags, settings, status, created_at, updated_at
		 FROM users WHERE id = $1 AND tenant_id = $2`, id.String(), tenantID.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, user.ErrUserNotFound().WithDetail("user_id", id.String())
		}
		return nil, errx.Wrap(err, "failed to find user", errx.TypeInternal)
	}
	return row.toDomain()
}

// FindByEmail returns the user with the given email within the tenant.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string, tenantID kernel.TenantID) (*user.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, tenant_id, email, display_name, password_hash,
		        scopes, tags, settings, status, created_at, updated_at
		 FROM users WHERE email = $1 AND tenant_id = $2`, email, tenantID.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, user.ErrUserNotFound().WithDetail("email", email)
		}
		return nil, errx.Wrap(err, "failed to find user by email", errx.TypeInternal)
	}
	return row.toDomain()
}
