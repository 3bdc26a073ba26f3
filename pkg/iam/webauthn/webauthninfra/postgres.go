package webauthninfra

import (
	"context"
	"database/sql"
	"time"

	"github.com/Abraxas-365/custodia/pkg/errx"
	"github.com/Abraxas-365/custodia/pkg/iam/webauthn"
	"github.com/Abraxas-365/custodia/pkg/kernel"
	"github.com/jmoiron/sqlx"
)

func notFound(kind, id string) *errx.Error {
	return errx.New("record not found", errx.TypeNotFound).
		WithDetail("kind", kind).
		WithDetail("id", id)
}

// ============================================================================
// Challenges
// ============================================================================

// PostgresChallengeRepository is the PostgreSQL implementation of
// webauthn.ChallengeRepository. The encoded challenge value is the key.
type PostgresChallengeRepository struct {
	db *sqlx.DB
}

// NewPostgresChallengeRepository creates a new repository instance.
func NewPostgresChallengeRepository(db *sqlx.DB) webauthn.ChallengeRepository {
	return &PostgresChallengeRepository{db: db}
}

type challengeRow struct {
	Value     string    `db:"value"`
	UserID    string    `db:"user_id"`
	TenantID  string    `db:"tenant_id"`
	Ceremony  string    `db:"ceremony"`
	Status    string    `db:"status"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

func (r challengeRow) toDomain() *webauthn.Challenge {
	return &webauthn.Challenge{
		Value:     r.Value,
		UserID:    kernel.NewUserID(r.UserID),
		TenantID:  kernel.NewTenantID(r.TenantID),
		Ceremony:  webauthn.Ceremony(r.Ceremony),
		Status:    webauthn.ChallengeStatus(r.Status),
		ExpiresAt: r.ExpiresAt,
		CreatedAt: r.CreatedAt,
	}
}

// Save upserts the challenge; completion rewrites the status in place.
func (r *PostgresChallengeRepository) Save(ctx context.Context, ch webauthn.Challenge) error {
	query := `
		INSERT INTO webauthn_challenges (value, user_id, tenant_id, ceremony, status, expires_at, created_at)
		VALUES (:value, :user_id, :tenant_id, :ceremony, :status, :expires_at, :created_at)
		ON CONFLICT (value) DO UPDATE SET status = EXCLUDED.status`

	row := challengeRow{
		Value:     ch.Value,
		UserID:    ch.UserID.String(),
		TenantID:  ch.TenantID.String(),
		Ceremony:  string(ch.Ceremony),
		Status:    string(ch.Status),
		ExpiresAt: ch.ExpiresAt,
		CreatedAt: ch.CreatedAt,
	}

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return errx.Wrap(err, "failed to save challenge", errx.TypeInternal)
	}
	return nil
}

// FindByValue returns the challenge record, or a not-found error.
func (r *PostgresChallengeRepository) FindByValue(ctx context.Context, value string) (*webauthn.Challenge, error) {
	var row challengeRow
	err := r.db.GetContext(ctx, &row,
		`SELECT value, user_id, tenant_id, ceremony, status, expires_at, created_at
		 FROM webauthn_challenges WHERE value = $1`, value)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notFound("challenge", value)
		}
		return nil, errx.Wrap(err, "failed to find challenge", errx.TypeInternal)
	}
	return row.toDomain(), nil
}

// Delete removes the record. Missing values are not an error.
func (r *PostgresChallengeRepository) Delete(ctx context.Context, value string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM webauthn_challenges WHERE value = $1`, value); err != nil {
		return errx.Wrap(err, "failed to delete challenge", errx.TypeInternal)
	}
	return nil
}

// DeleteExpired removes expired challenges and consumed ones past expiry.
func (r *PostgresChallengeRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM webauthn_challenges WHERE expires_at < $1`, now)
	if err != nil {
		return 0, errx.Wrap(err, "failed to delete expired challenges", errx.TypeInternal)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ============================================================================
// Credentials
// ============================================================================

// PostgresCredentialRepository is the PostgreSQL implementation of
// webauthn.CredentialRepository. Revocation is a status flip, never a delete.
type PostgresCredentialRepository struct {
	db *sqlx.DB
}

// NewPostgresCredentialRepository creates a new repository instance.
func NewPostgresCredentialRepository(db *sqlx.DB) webauthn.CredentialRepository {
	return &PostgresCredentialRepository{db: db}
}

type credentialRow struct {
	ID         string       `db:"id"`
	UserID     string       `db:"user_id"`
	TenantID   string       `db:"tenant_id"`
	PublicKey  []byte       `db:"public_key"`
	SignCount  int64        `db:"sign_count"`
	Origin     string       `db:"origin"`
	Label      string       `db:"label"`
	Status     string       `db:"status"`
	CreatedAt  time.Time    `db:"created_at"`
	LastUsedAt sql.NullTime `db:"last_used_at"`
}

func (r credentialRow) toDomain() *webauthn.Credential {
	cred := &webauthn.Credential{
		ID:        r.ID,
		UserID:    kernel.NewUserID(r.UserID),
		TenantID:  kernel.NewTenantID(r.TenantID),
		PublicKey: r.PublicKey,
		SignCount: uint32(r.SignCount),
		Origin:    r.Origin,
		Label:     r.Label,
		Status:    webauthn.CredentialStatus(r.Status),
		CreatedAt: r.CreatedAt,
	}
	if r.LastUsedAt.Valid {
		cred.LastUsedAt = r.LastUsedAt.Time
	}
	return cred
}

// Save upserts the credential; sign count, status and last use change over
// its lifetime.
func (r *PostgresCredentialRepository) Save(ctx context.Context, cr webauthn.Credential) error {
	query := `
		INSERT INTO webauthn_credentials (id, user_id, tenant_id, public_key, sign_count, origin, label, status, created_at, last_used_at)
		VALUES (:id, :user_id, :tenant_id, :public_key, :sign_count, :origin, :label, :status, :created_at, :last_used_at)
		ON CONFLICT (id) DO UPDATE SET
			sign_count = EXCLUDED.sign_count,
			status = EXCLUDED.status,
			label = EXCLUDED.label,
			last_used_at = EXCLUDED.last_used_at`

	row := credentialRow{
		ID:        cr.ID,
		UserID:    cr.UserID.String(),
		TenantID:  cr.TenantID.String(),
		PublicKey: cr.PublicKey,
		SignCount: int64(cr.SignCount),
		Origin:    cr.Origin,
		Label:     cr.Label,
		Status:    string(cr.Status),
		CreatedAt: cr.CreatedAt,
	}
	if !cr.LastUsedAt.IsZero() {
		row.LastUsedAt = sql.NullTime{Time: cr.LastUsedAt, Valid: true}
	}

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return errx.Wrap(err, "failed to save credential", errx.TypeInternal).
			WithDetail("credential_id", cr.ID)
	}
	return nil
}

// FindByID returns the credential record, or a not-found error.
func (r *PostgresCredentialRepository) FindByID(ctx context.Context, id string) (*webauthn.Credential, error) {
	var row credentialRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, user_id, tenant_id, public_key, sign_count, origin, label, status, created_at, last_used_at
		 FROM webauthn_credentials WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notFound("credential", id)
		}
		return nil, errx.Wrap(err, "failed to find credential", errx.TypeInternal)
	}
	return row.toDomain(), nil
}

// FindByUser returns every credential on record for the user.
func (r *PostgresCredentialRepository) FindByUser(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID) ([]*webauthn.Credential, error) {
	var rows []credentialRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, user_id, tenant_id, public_key, sign_count, origin, label, status, created_at, last_used_at
		 FROM webauthn_credentials WHERE user_id = $1 AND tenant_id = $2
		 ORDER BY created_at`, userID.String(), tenantID.String())
	if err != nil {
		return nil, errx.Wrap(err, "failed to list credentials", errx.TypeInternal)
	}

	creds := make([]*webauthn.Credential, 0, len(rows))
	for _, row := range rows {
		creds = append(creds, row.toDomain())
	}
	return creds, nil
}
