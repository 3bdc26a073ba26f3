package auth

import (
	"net/http"

	"github.com/Abraxas-365/custodia/pkg/errx"
)

// Strategy selects how inbound requests are authenticated. Exactly one
// strategy is active per deployment.
type Strategy string

const (
	// StrategyBearer reads the token from the Authorization header.
	StrategyBearer Strategy = "bearer"

	// StrategySessionCookie reads the token from an encrypted cookie and
	// then follows the bearer pipeline.
	StrategySessionCookie Strategy = "session_cookie"

	// StrategySignedJwt is reserved. It deliberately rejects every request
	// until implemented; a missing strategy must never be a silent bypass.
	StrategySignedJwt Strategy = "signed_jwt"
)

// Request is the transport-agnostic view of an inbound request the
// authorizer works on. The HTTP layer builds it from the framework context.
type Request struct {
	// Authorization is the raw Authorization header value.
	Authorization string

	// Cookies maps cookie names to values.
	Cookies map[string]string

	// RemoteIP is the caller's address, checked against tenant allowlists.
	RemoteIP string
}

// Cookie returns the named cookie value, or "".
func (r Request) Cookie(name string) string {
	return r.Cookies[name]
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("AUTH")

var (
	CodeUnauthorizedAccess   = ErrRegistry.Register("UNAUTHORIZED_ACCESS", errx.TypeAuthorization, http.StatusUnauthorized, "Unauthorized access")
	CodeUnauthorizedClient   = ErrRegistry.Register("UNAUTHORIZED_CLIENT", errx.TypeAuthorization, http.StatusUnauthorized, "Unauthorized client")
	CodeUnauthorizedUser     = ErrRegistry.Register("UNAUTHORIZED_USER", errx.TypeAuthorization, http.StatusUnauthorized, "Unauthorized user")
	CodeMissingResourceScope = ErrRegistry.Register("MISSING_RESOURCE_SCOPE", errx.TypeConfiguration, http.StatusUnauthorized, "No scope requirement declared for operation")
)

func ErrUnauthorizedAccess() *errx.Error {
	return ErrRegistry.New(CodeUnauthorizedAccess)
}

func ErrUnauthorizedClient() *errx.Error {
	return ErrRegistry.New(CodeUnauthorizedClient)
}

func ErrUnauthorizedUser() *errx.Error {
	return ErrRegistry.New(CodeUnauthorizedUser)
}

func ErrMissingResourceScope(target, operation string) *errx.Error {
	return ErrRegistry.New(CodeMissingResourceScope).
		WithDetail("target", target).
		WithDetail("operation", operation)
}
