package auth

import "strings"

const bearerPrefix = "Bearer "

// Authenticator extracts the raw access token from an inbound request. The
// rest of the authorization pipeline is shared across strategies.
type Authenticator interface {
	Strategy() Strategy
	Authenticate(req Request) (string, error)
}

// ============================================================================
// Bearer
// ============================================================================

// BearerStrategy reads "Authorization: Bearer <token>".
type BearerStrategy struct{}

func NewBearerStrategy() *BearerStrategy {
	return &BearerStrategy{}
}

func (s *BearerStrategy) Strategy() Strategy {
	return StrategyBearer
}

func (s *BearerStrategy) Authenticate(req Request) (string, error) {
	header := req.Authorization
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrUnauthorizedAccess().WithDetail("reason", "missing bearer token")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if token == "" {
		return "", ErrUnauthorizedAccess().WithDetail("reason", "empty bearer token")
	}
	return token, nil
}

// ============================================================================
// Session cookie
// ============================================================================

// SessionCookieStrategy decrypts the session cookie and hands the recovered
// token to the bearer pipeline. Requests authenticated this way additionally
// get a session projection attached to their auth context.
type SessionCookieStrategy struct {
	codec      *CookieCodec
	cookieName string
}

func NewSessionCookieStrategy(codec *CookieCodec, cookieName string) *SessionCookieStrategy {
	return &SessionCookieStrategy{codec: codec, cookieName: cookieName}
}

func (s *SessionCookieStrategy) Strategy() Strategy {
	return StrategySessionCookie
}

func (s *SessionCookieStrategy) Authenticate(req Request) (string, error) {
	value := req.Cookie(s.cookieName)
	if value == "" {
		return "", ErrUnauthorizedAccess().WithDetail("reason", "missing session cookie")
	}
	token, err := s.codec.Decrypt(value)
	if err != nil {
		return "", ErrUnauthorizedAccess().WithDetail("reason", "invalid session cookie")
	}
	return token, nil
}

// ============================================================================
// Signed JWT
// ============================================================================

// SignedJwtStrategy is a placeholder for federated signed-JWT authentication.
// It rejects every request so a misconfigured deployment fails closed.
type SignedJwtStrategy struct{}

func NewSignedJwtStrategy() *SignedJwtStrategy {
	return &SignedJwtStrategy{}
}

func (s *SignedJwtStrategy) Strategy() Strategy {
	return StrategySignedJwt
}

func (s *SignedJwtStrategy) Authenticate(Request) (string, error) {
	return "", ErrUnauthorizedAccess().WithDetail("reason", "signed_jwt strategy not implemented")
}
