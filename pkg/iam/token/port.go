package token

import (
	"context"
	"time"

	"github.com/Abraxas-365/custodia/pkg/kernel"
)

// AccessTokenRepository defines the contract for access token persistence.
// Delete against a missing id is not an error; that is the expected
// "already revoked" outcome.
type AccessTokenRepository interface {
	Save(ctx context.Context, t AccessToken) error
	Find(ctx context.Context, id string) (*AccessToken, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// RefreshTokenRepository defines the contract for refresh token persistence.
type RefreshTokenRepository interface {
	Save(ctx context.Context, t RefreshToken) error
	Find(ctx context.Context, id string) (*RefreshToken, error)
	Delete(ctx context.Context, id string) error
	DeleteByAccessToken(ctx context.Context, accessTokenID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// AuthCodeRepository defines the contract for authorization code persistence.
type AuthCodeRepository interface {
	Save(ctx context.Context, c AuthCode) error
	Find(ctx context.Context, id string) (*AuthCode, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Claims are the facts baked into a signed token artifact.
type Claims struct {
	TokenID   string
	Subject   kernel.UserID
	Audience  kernel.ClientID
	TenantID  kernel.TenantID
	Scopes    []string
	IssuedAt  time.Time
	NotBefore time.Time
	ExpiresAt time.Time
}

// Signer is the delegated signing collaborator: it turns claims into a
// signed artifact. The core never implements the cryptography itself.
type Signer interface {
	Sign(claims Claims) (string, error)
}

// VerifiedToken is what the verification collaborator extracts from a raw
// inbound token.
type VerifiedToken struct {
	AccessTokenID string
	ClientID      kernel.ClientID
	UserID        kernel.UserID
	TenantID      kernel.TenantID
	Scopes        []string
	ExpiresAt     time.Time
}

// Verifier is the delegated verification collaborator: signature and expiry
// checks plus claim extraction. Any failure means the token is unusable.
type Verifier interface {
	Verify(raw string) (*VerifiedToken, error)
}
