package client

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/Abraxas-365/custodia/pkg/errx"
	"github.com/Abraxas-365/custodia/pkg/kernel"
)

// Status of a client.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// GrantType is an OAuth2 token-issuance flow a client may use.
type GrantType string

const (
	GrantPassword          GrantType = "password"
	GrantRefreshToken      GrantType = "refresh_token"
	GrantClientCredentials GrantType = "client_credentials"
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantImplicit          GrantType = "implicit"
)

// Client is an OAuth2 client registered under a tenant. The secret is stored
// as a keyed hash; the plaintext exists only in the registration response.
type Client struct {
	ID           kernel.ClientID `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	RedirectURI  string          `db:"redirect_uri" json:"redirect_uri"`
	SecretHash   string          `db:"secret_hash" json:"-"`
	TenantID     kernel.TenantID `db:"tenant_id" json:"tenant_id"`
	Confidential bool            `db:"confidential" json:"confidential"`
	GrantTypes   []GrantType     `db:"grant_types" json:"grant_types"`
	Status       Status          `db:"status" json:"status"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// IsActive reports whether the client may authenticate requests.
func (c *Client) IsActive() bool {
	return c.Status == StatusActive
}

// AllowsGrant reports whether the client may use the given grant type.
func (c *Client) AllowsGrant(gt GrantType) bool {
	for _, g := range c.GrantTypes {
		if g == gt {
			return true
		}
	}
	return false
}

// VerifySecret checks a presented plaintext secret against the stored hash
// in constant time.
func (c *Client) VerifySecret(secret, pepper string) bool {
	presented := HashSecret(secret, pepper)
	return hmac.Equal([]byte(presented), []byte(c.SecretHash))
}

// HashSecret derives the stored keyed hash of a client secret. The pepper is
// deployment configuration, never persisted next to the hash.
func HashSecret(secret, pepper string) string {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("CLIENT")

var (
	CodeClientNotFound = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Client not found")
	CodeClientInactive = ErrRegistry.Register("INACTIVE", errx.TypeAuthorization, http.StatusUnauthorized, "Client is inactive")
	CodeInvalidSecret  = ErrRegistry.Register("INVALID_SECRET", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid client secret")
)

func ErrClientNotFound() *errx.Error {
	return ErrRegistry.New(CodeClientNotFound)
}

func ErrClientInactive() *errx.Error {
	return ErrRegistry.New(CodeClientInactive)
}

func ErrInvalidSecret() *errx.Error {
	return ErrRegistry.New(CodeInvalidSecret)
}
