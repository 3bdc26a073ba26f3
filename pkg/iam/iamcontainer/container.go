package iamcontainer

import (
	"errors"

	"github.com/Abraxas-365/custodia/pkg/config"
	"github.com/Abraxas-365/custodia/pkg/iam/auth"
	"github.com/Abraxas-365/custodia/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/custodia/pkg/iam/client"
	"github.com/Abraxas-365/custodia/pkg/iam/client/clientinfra"
	"github.com/Abraxas-365/custodia/pkg/iam/scope"
	"github.com/Abraxas-365/custodia/pkg/iam/sweeper"
	"github.com/Abraxas-365/custodia/pkg/iam/tenant"
	"github.com/Abraxas-365/custodia/pkg/iam/tenant/tenantinfra"
	"github.com/Abraxas-365/custodia/pkg/iam/token/jwtsign"
	"github.com/Abraxas-365/custodia/pkg/iam/token/tokenapi"
	"github.com/Abraxas-365/custodia/pkg/iam/token/tokeninfra"
	"github.com/Abraxas-365/custodia/pkg/iam/token/tokensrv"
	"github.com/Abraxas-365/custodia/pkg/iam/user"
	"github.com/Abraxas-365/custodia/pkg/iam/user/userinfra"
	"github.com/Abraxas-365/custodia/pkg/iam/webauthn"
	"github.com/Abraxas-365/custodia/pkg/iam/webauthn/webauthnapi"
	"github.com/Abraxas-365/custodia/pkg/iam/webauthn/webauthninfra"
	"github.com/Abraxas-365/custodia/pkg/iam/webauthn/webauthnsrv"
	"github.com/Abraxas-365/custodia/pkg/logx"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// ---------------------------------------------------------------------------
// Deps: explicit external dependencies this bounded context requires.
// No hidden globals, no ambient state — everything comes through here.
// ---------------------------------------------------------------------------

type Deps struct {
	DB    *sqlx.DB
	Redis *redis.Client
	Cfg   *config.Config

	// Registry is the frozen scope registry. The composition root declares
	// every (target, operation) requirement and builds it before wiring.
	Registry *scope.Registry

	// Attestation and Assertion delegate WebAuthn cryptographic checks.
	Attestation webauthn.AttestationVerifier
	Assertion   webauthn.AssertionVerifier
}

// ---------------------------------------------------------------------------
// Container: the public surface of the IAM module.
// Only expose what other modules or cmd/ actually need.
// ---------------------------------------------------------------------------

type Container struct {
	// Services — available for cross-module consumption
	TokenService    *tokensrv.TokenService
	CeremonyService *webauthnsrv.CeremonyService

	// Repositories other modules are allowed to read through
	TenantRepo tenant.Repository
	ClientRepo client.Repository
	UserRepo   user.Repository

	// Handlers — needed by cmd/ to register routes
	TokenHandlers    *tokenapi.TokenHandlers
	WebauthnHandlers *webauthnapi.WebauthnHandlers

	// Middleware — needed by cmd/ to protect route groups
	AuthMiddleware *auth.Middleware

	// Background services
	Sweeper *sweeper.Sweeper
}

// ---------------------------------------------------------------------------
// New: constructs the entire IAM dependency graph.
// Order matters: infra → repos → services → handlers → middleware.
// ---------------------------------------------------------------------------

func New(deps Deps) (*Container, error) {
	logx.Info("initializing iam container")

	c := &Container{}

	// ── Repositories ─────────────────────────────────────────────────────

	c.TenantRepo = tenantinfra.NewPostgresTenantRepository(deps.DB)
	c.ClientRepo = clientinfra.NewPostgresClientRepository(deps.DB)
	c.UserRepo = userinfra.NewPostgresUserRepository(deps.DB)

	accessRepo := tokeninfra.NewPostgresAccessTokenRepository(deps.DB)
	refreshRepo := tokeninfra.NewPostgresRefreshTokenRepository(deps.DB)
	codeRepo := tokeninfra.NewPostgresAuthCodeRepository(deps.DB)

	challengeRepo := webauthninfra.NewPostgresChallengeRepository(deps.DB)
	credentialRepo := webauthninfra.NewPostgresCredentialRepository(deps.DB)

	projections := userinfra.NewRedisProjectionCache(deps.Redis, deps.Cfg.Redis.ProjectionTTL)

	// ── Token signing ────────────────────────────────────────────────────

	jwtService := jwtsign.NewJWTService(deps.Cfg.Auth.JWTSecret, deps.Cfg.Auth.Issuer)

	// ── Domain services ──────────────────────────────────────────────────

	c.TokenService = tokensrv.NewTokenService(accessRepo, refreshRepo, codeRepo, jwtService)

	c.CeremonyService = webauthnsrv.NewCeremonyService(
		webauthnsrv.Config{
			RPID:         deps.Cfg.WebAuthn.RPID,
			RPName:       deps.Cfg.WebAuthn.RPName,
			Origin:       deps.Cfg.WebAuthn.Origin,
			ChallengeTTL: deps.Cfg.WebAuthn.ChallengeTTL,
			SessionTTL:   deps.Cfg.Auth.AccessTokenTTL,
		},
		challengeRepo,
		credentialRepo,
		c.UserRepo,
		c.TenantRepo,
		c.ClientRepo,
		c.TokenService,
		deps.Attestation,
		deps.Assertion,
		projections,
	)

	// ── Authorizer ───────────────────────────────────────────────────────

	var codec *auth.CookieCodec
	if deps.Cfg.Auth.CookieKey != "" {
		var err error
		codec, err = auth.NewCookieCodec([]byte(deps.Cfg.Auth.CookieKey))
		if err != nil {
			return nil, err
		}
	}

	strategy, err := buildStrategy(deps.Cfg, codec)
	if err != nil {
		return nil, err
	}
	logx.WithField("strategy", string(strategy.Strategy())).Info("authorization strategy selected")

	authorizer := auth.NewAuthorizer(
		strategy,
		jwtService,
		c.TokenService,
		deps.Registry,
		c.ClientRepo,
		c.UserRepo,
		c.TenantRepo,
		projections,
		authinfra.NewLogxAuditService(),
	)
	c.AuthMiddleware = auth.NewMiddleware(authorizer)

	// ── Handlers ─────────────────────────────────────────────────────────

	c.TokenHandlers = tokenapi.NewTokenHandlers(
		c.TokenService,
		jwtService,
		c.ClientRepo,
		c.UserRepo,
		c.TenantRepo,
		projections,
		codec,
		&deps.Cfg.Auth,
	)
	c.WebauthnHandlers = webauthnapi.NewWebauthnHandlers(c.CeremonyService)

	// ── Background sweeper ───────────────────────────────────────────────

	c.Sweeper = sweeper.New(deps.Cfg.WebAuthn.SweepInterval).
		Register("access_tokens", accessRepo).
		Register("refresh_tokens", refreshRepo).
		Register("auth_codes", codeRepo).
		Register("webauthn_challenges", challengeRepo)

	return c, nil
}

var errMissingCookieKey = errors.New("session_cookie strategy requires AUTH_COOKIE_KEY")

func buildStrategy(cfg *config.Config, codec *auth.CookieCodec) (auth.Authenticator, error) {
	switch auth.Strategy(cfg.Auth.Strategy) {
	case auth.StrategySessionCookie:
		if codec == nil {
			return nil, errMissingCookieKey
		}
		return auth.NewSessionCookieStrategy(codec, cfg.Auth.CookieName), nil
	case auth.StrategySignedJwt:
		return auth.NewSignedJwtStrategy(), nil
	default:
		return auth.NewBearerStrategy(), nil
	}
}
