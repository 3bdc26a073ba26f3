package token

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/Abraxas-365/custodia/pkg/errx"
	"github.com/Abraxas-365/custodia/pkg/kernel"
)

// AccessToken is the persisted record behind an issued token. The record,
// not the signed artifact, is the source of truth for revocation: a token is
// valid only while its record exists and is unexpired.
type AccessToken struct {
	ID        string            `db:"id" json:"id"`
	ClientID  kernel.ClientID   `db:"client_id" json:"client_id"`
	UserID    kernel.UserID     `db:"user_id" json:"user_id"`
	TenantID  kernel.TenantID   `db:"tenant_id" json:"tenant_id"`
	Scopes    []string          `db:"scopes" json:"scopes"`
	ExpiresAt time.Time         `db:"expires_at" json:"expires_at"`
	IssuedAt  time.Time         `db:"issued_at" json:"issued_at"`
	Metadata  map[string]string `db:"metadata" json:"metadata"`
}

// IsExpired reports whether the token has passed its expiry.
func (t *AccessToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// RefreshToken renews one access token.
type RefreshToken struct {
	ID            string    `db:"id" json:"id"`
	AccessTokenID string    `db:"access_token_id" json:"access_token_id"`
	ExpiresAt     time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// IsExpired reports whether the refresh token has passed its expiry.
func (t *RefreshToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// AuthCode is a single-use authorization code; redemption deletes it.
type AuthCode struct {
	ID          string          `db:"id" json:"id"`
	ClientID    kernel.ClientID `db:"client_id" json:"client_id"`
	UserID      kernel.UserID   `db:"user_id" json:"user_id"`
	RedirectURI string          `db:"redirect_uri" json:"redirect_uri"`
	ExpiresAt   time.Time       `db:"expires_at" json:"expires_at"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// IsExpired reports whether the auth code has passed its expiry.
func (c *AuthCode) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// GenerateID returns a high-entropy random token identifier (256 bits,
// base64url without padding).
func GenerateID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errx.Wrap(err, "failed to generate token id", errx.TypeInternal)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("TOKEN")

var (
	CodeIssuanceRejected = ErrRegistry.Register("ISSUANCE_REJECTED", errx.TypeValidation, http.StatusBadRequest, "Token issuance rejected")
	CodeSigningFailed    = ErrRegistry.Register("SIGNING_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Token signing failed")
	CodeInvalidAuthCode  = ErrRegistry.Register("INVALID_AUTH_CODE", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid or expired authorization code")
	CodeInvalidRefresh   = ErrRegistry.Register("INVALID_REFRESH", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid or expired refresh token")
)

func ErrIssuanceRejected(reason string) *errx.Error {
	return ErrRegistry.New(CodeIssuanceRejected).WithDetail("reason", reason)
}

func ErrSigningFailed(cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeSigningFailed, cause)
}

func ErrInvalidAuthCode() *errx.Error {
	return ErrRegistry.New(CodeInvalidAuthCode)
}

func ErrInvalidRefresh() *errx.Error {
	return ErrRegistry.New(CodeInvalidRefresh)
}
