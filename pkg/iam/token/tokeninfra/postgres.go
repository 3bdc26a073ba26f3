package tokeninfra

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/Abraxas-365/custodia/pkg/errx"
	"github.com/Abraxas-365/custodia/pkg/iam/token"
	"github.com/Abraxas-365/custodia/pkg/kernel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Registry of "not found" errors shared by the three repositories. Missing
// records are the expected "revoked / invalid" outcome for callers; they map
// to errx.TypeNotFound so services can tell them apart from store failures.
func notFound(kind, id string) *errx.Error {
	return errx.New("record not found", errx.TypeNotFound).
		WithDetail("kind", kind).
		WithDetail("id", id)
}

// ============================================================================
// Access tokens
// ============================================================================

// PostgresAccessTokenRepository is the PostgreSQL implementation of
// token.AccessTokenRepository. Revocation is a hard delete.
type PostgresAccessTokenRepository struct {
	db *sqlx.DB
}

// NewPostgresAccessTokenRepository creates a new repository instance.
func NewPostgresAccessTokenRepository(db *sqlx.DB) token.AccessTokenRepository {
	return &PostgresAccessTokenRepository{db: db}
}

type accessTokenRow struct {
	ID        string         `db:"id"`
	ClientID  string         `db:"client_id"`
	UserID    string         `db:"user_id"`
	TenantID  string         `db:"tenant_id"`
	Scopes    pq.StringArray `db:"scopes"`
	ExpiresAt time.Time      `db:"expires_at"`
	IssuedAt  time.Time      `db:"issued_at"`
	Metadata  []byte         `db:"metadata"`
}

func (r accessTokenRow) toDomain() (*token.AccessToken, error) {
	metadata := make(map[string]string)
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &metadata); err != nil {
			return nil, errx.Wrap(err, "failed to decode token metadata", errx.TypeInternal)
		}
	}
	return &token.AccessToken{
		ID:        r.ID,
		ClientID:  kernel.NewClientID(r.ClientID),
		UserID:    kernel.NewUserID(r.UserID),
		TenantID:  kernel.NewTenantID(r.TenantID),
		Scopes:    r.Scopes,
		ExpiresAt: r.ExpiresAt,
		IssuedAt:  r.IssuedAt,
		Metadata:  metadata,
	}, nil
}

// Save persists the access token record.
func (r *PostgresAccessTokenRepository) Save(ctx context.Context, t token.AccessToken) error {
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return errx.Wrap(err, "failed to encode token metadata", errx.TypeInternal)
	}

	query := `
		INSERT INTO access_tokens (id, client_id, user_id, tenant_id, scopes, expires_at, issued_at, metadata)
		VALUES (:id, :client_id, :user_id, :tenant_id, :scopes, :expires_at, :issued_at, :metadata)`

	row := accessTokenRow{
		ID:        t.ID,
		ClientID:  t.ClientID.String(),
		UserID:    t.UserID.String(),
		TenantID:  t.TenantID.String(),
		Scopes:    pq.StringArray(t.Scopes),
		ExpiresAt: t.ExpiresAt,
		IssuedAt:  t.IssuedAt,
		Metadata:  metadata,
	}

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return errx.Wrap(err, "failed to save access token", errx.TypeInternal).
			WithDetail("token_id", t.ID)
	}
	return nil
}

// Find returns the access token record, or a not-found error.
func (r *PostgresAccessTokenRepository) Find(ctx context.Context, id string) (*token.AccessToken, error) {
	var row accessTokenRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, client_id, user_id, tenant_id, scopes, expires_at, issued_at, metadata
		 FROM access_tokens WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notFound("access_token", id)
		}
		return nil, errx.Wrap(err, "failed to find access token", errx.TypeInternal)
	}
	return row.toDomain()
}

// Delete removes the record. Missing ids are not an error.
func (r *PostgresAccessTokenRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE id = $1`, id); err != nil {
		return errx.Wrap(err, "failed to delete access token", errx.TypeInternal)
	}
	return nil
}

// DeleteExpired removes every record past its expiry.
func (r *PostgresAccessTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, errx.Wrap(err, "failed to delete expired access tokens", errx.TypeInternal)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ============================================================================
// Refresh tokens
// ============================================================================

// PostgresRefreshTokenRepository is the PostgreSQL implementation of
// token.RefreshTokenRepository.
type PostgresRefreshTokenRepository struct {
	db *sqlx.DB
}

// NewPostgresRefreshTokenRepository creates a new repository instance.
func NewPostgresRefreshTokenRepository(db *sqlx.DB) token.RefreshTokenRepository {
	return &PostgresRefreshTokenRepository{db: db}
}

// Save persists the refresh token record.
func (r *PostgresRefreshTokenRepository) Save(ctx context.Context, t token.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, access_token_id, expires_at, created_at)
		VALUES (:id, :access_token_id, :expires_at, :created_at)`

	if _, err := r.db.NamedExecContext(ctx, query, t); err != nil {
		return errx.Wrap(err, "failed to save refresh token", errx.TypeInternal).
			WithDetail("token_id", t.ID)
	}
	return nil
}

// Find returns the refresh token record, or a not-found error.
func (r *PostgresRefreshTokenRepository) Find(ctx context.Context, id string) (*token.RefreshToken, error) {
	var t token.RefreshToken
	err := r.db.GetContext(ctx, &t,
		`SELECT id, access_token_id, expires_at, created_at FROM refresh_tokens WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notFound("refresh_token", id)
		}
		return nil, errx.Wrap(err, "failed to find refresh token", errx.TypeInternal)
	}
	return &t, nil
}

// Delete removes the record. Missing ids are not an error.
func (r *PostgresRefreshTokenRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, id); err != nil {
		return errx.Wrap(err, "failed to delete refresh token", errx.TypeInternal)
	}
	return nil
}

// DeleteByAccessToken removes every refresh token referencing the access
// token, as part of revocation.
func (r *PostgresRefreshTokenRepository) DeleteByAccessToken(ctx context.Context, accessTokenID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE access_token_id = $1`, accessTokenID); err != nil {
		return errx.Wrap(err, "failed to delete refresh tokens by access token", errx.TypeInternal)
	}
	return nil
}

// DeleteExpired removes every record past its expiry.
func (r *PostgresRefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, errx.Wrap(err, "failed to delete expired refresh tokens", errx.TypeInternal)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ============================================================================
// Auth codes
// ============================================================================

// PostgresAuthCodeRepository is the PostgreSQL implementation of
// token.AuthCodeRepository.
type PostgresAuthCodeRepository struct {
	db *sqlx.DB
}

// NewPostgresAuthCodeRepository creates a new repository instance.
func NewPostgresAuthCodeRepository(db *sqlx.DB) token.AuthCodeRepository {
	return &PostgresAuthCodeRepository{db: db}
}

type authCodeRow struct {
	ID          string    `db:"id"`
	ClientID    string    `db:"client_id"`
	UserID      string    `db:"user_id"`
	RedirectURI string    `db:"redirect_uri"`
	ExpiresAt   time.Time `db:"expires_at"`
	CreatedAt   time.Time `db:"created_at"`
}

// Save persists the auth code record.
func (r *PostgresAuthCodeRepository) Save(ctx context.Context, c token.AuthCode) error {
	query := `
		INSERT INTO auth_codes (id, client_id, user_id, redirect_uri, expires_at, created_at)
		VALUES (:id, :client_id, :user_id, :redirect_uri, :expires_at, :created_at)`

	row := authCodeRow{
		ID:          c.ID,
		ClientID:    c.ClientID.String(),
		UserID:      c.UserID.String(),
		RedirectURI: c.RedirectURI,
		ExpiresAt:   c.ExpiresAt,
		CreatedAt:   c.CreatedAt,
	}

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return errx.Wrap(err, "failed to save auth code", errx.TypeInternal).
			WithDetail("code_id", c.ID)
	}
	return nil
}

// Find returns the auth code record, or a not-found error.
func (r *PostgresAuthCodeRepository) Find(ctx context.Context, id string) (*token.AuthCode, error) {
	var row authCodeRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, client_id, user_id, redirect_uri, expires_at, created_at
		 FROM auth_codes WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notFound("auth_code", id)
		}
		return nil, errx.Wrap(err, "failed to find auth code", errx.TypeInternal)
	}
	return &token.AuthCode{
		ID:          row.ID,
		ClientID:    kernel.NewClientID(row.ClientID),
		UserID:      kernel.NewUserID(row.UserID),
		RedirectURI: row.RedirectURI,
		ExpiresAt:   row.ExpiresAt,
		CreatedAt:   row.CreatedAt,
	}, nil
}

// Delete removes the record. Missing ids are not an error.
func (r *PostgresAuthCodeRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM auth_codes WHERE id = $1`, id); err != nil {
		return errx.Wrap(err, "failed to delete auth code", errx.TypeInternal)
	}
	return nil
}

// DeleteExpired removes every record past its expiry.
func (r *PostgresAuthCodeRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM auth_codes WHERE expires_at < $1`, now)
	if err != nil {
		return 0, errx.Wrap(err, "failed to delete expired auth codes", errx.TypeInternal)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
