package jwtsign

import (
	"fmt"

	"github.com/Abraxas-365/custodia/pkg/iam/token"
	"github.com/Abraxas-365/custodia/pkg/kernel"
	"github.com/golang-jwt/jwt/v5"
)

// JWTService implements token.Signer and token.Verifier with HMAC-signed
// JWTs. Signature validity alone never authorizes a request; the token
// service's record check decides revocation.
type JWTService struct {
	secretKey []byte
	issuer    string
}

// NewJWTService creates a new signing service.
func NewJWTService(secretKey, issuer string) *JWTService {
	if issuer == "" {
		issuer = "custodia"
	}
	return &JWTService{
		secretKey: []byte(secretKey),
		issuer:    issuer,
	}
}

type tokenClaims struct {
	TenantID string   `json:"tenant_id"`
	Scopes   []string `json:"scopes"`
	jwt.RegisteredClaims
}

// Sign builds the signed artifact for the given claims.
func (j *JWTService) Sign(claims token.Claims) (string, error) {
	jwtClaims := tokenClaims{
		TenantID: claims.TenantID.String(),
		Scopes:   claims.Scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        claims.TokenID,
			Issuer:    j.issuer,
			Subject:   claims.Subject.String(),
			Audience:  []string{claims.Audience.String()},
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			NotBefore: jwt.NewNumericDate(claims.NotBefore),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	}

	artifact := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims)

	signed, err := artifact.SignedString(j.secretKey)
	if err != nil {
		return "", token.ErrSigningFailed(err)
	}
	return signed, nil
}

// Verify validates signature and expiry and extracts the claims.
func (j *JWTService) Verify(raw string) (*token.VerifiedToken, error) {
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.secretKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("token is invalid")
	}

	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}

	var clientID kernel.ClientID
	if len(claims.Audience) > 0 {
		clientID = kernel.NewClientID(claims.Audience[0])
	}

	verified := &token.VerifiedToken{
		AccessTokenID: claims.ID,
		ClientID:      clientID,
		UserID:        kernel.NewUserID(claims.Subject),
		TenantID:      kernel.NewTenantID(claims.TenantID),
		Scopes:        claims.Scopes,
	}
	if claims.ExpiresAt != nil {
		verified.ExpiresAt = claims.ExpiresAt.Time
	}
	return verified, nil
}
