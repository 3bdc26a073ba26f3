package tokenapi

import (
	"github.com/Abraxas-365/custodia/pkg/config"
	"github.com/Abraxas-365/custodia/pkg/errx"
	"github.com/Abraxas-365/custodia/pkg/iam/auth"
	"github.com/Abraxas-365/custodia/pkg/iam/client"
	"github.com/Abraxas-365/custodia/pkg/iam/tenant"
	"github.com/Abraxas-365/custodia/pkg/iam/token"
	"github.com/Abraxas-365/custodia/pkg/iam/token/tokensrv"
	"github.com/Abraxas-365/custodia/pkg/iam/user"
	"github.com/Abraxas-365/custodia/pkg/kernel"
	"github.com/Abraxas-365/custodia/pkg/logx"
	"github.com/gofiber/fiber/v2"
)

// TokenHandlers exposes the token lifecycle over HTTP: the grant endpoint,
// authorization codes, revocation and logout.
type TokenHandlers struct {
	tokens      *tokensrv.TokenService
	verifier    token.Verifier
	clients     client.Repository
	users       user.Repository
	tenants     tenant.Repository
	projections user.ProjectionCache
	codec       *auth.CookieCodec
	cfg         *config.AuthConfig
}

func NewTokenHandlers(
	tokens *tokensrv.TokenService,
	verifier token.Verifier,
	clients client.Repository,
	users user.Repository,
	tenants tenant.Repository,
	projections user.ProjectionCache,
	codec *auth.CookieCodec,
	cfg *config.AuthConfig,
) *TokenHandlers {
	return &TokenHandlers{
		tokens:      tokens,
		verifier:    verifier,
		clients:     clients,
		users:       users,
		tenants:     tenants,
		projections: projections,
		codec:       codec,
		cfg:         cfg,
	}
}

// RegisterRoutes mounts the token endpoints.
func (h *TokenHandlers) RegisterRoutes(app *fiber.App) {
	grp := app.Group("/auth")
	grp.Post("/token", h.Token)
	grp.Post("/authorize", h.Authorize)
	grp.Post("/revoke", h.Revoke)
	grp.Post("/logout", h.Logout)
}

type tokenRequest struct {
	GrantType    string   `json:"grant_type" form:"grant_type"`
	ClientID     string   `json:"client_id" form:"client_id"`
	ClientSecret string   `json:"client_secret" form:"client_secret"`
	Username     string   `json:"username" form:"username"`
	Password     string   `json:"password" form:"password"`
	Scopes       []string `json:"scopes" form:"scopes"`
	RefreshToken string   `json:"refresh_token" form:"refresh_token"`
	Code         string   `json:"code" form:"code"`
	RedirectURI  string   `json:"redirect_uri" form:"redirect_uri"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Token is the grant endpoint. Supported grant types: password,
// refresh_token, authorization_code.
func (h *TokenHandlers) Token(c *fiber.Ctx) error {
	var req tokenRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, errx.New("malformed request body", errx.TypeValidation))
	}

	cl, err := h.authenticateClient(c, req)
	if err != nil {
		return writeError(c, err)
	}

	switch client.GrantType(req.GrantType) {
	case client.GrantPassword:
		return h.passwordGrant(c, cl, req)
	case client.GrantRefreshToken:
		return h.refreshGrant(c, cl, req)
	case client.GrantAuthorizationCode:
		return h.codeGrant(c, cl, req)
	default:
		return writeError(c, token.ErrIssuanceRejected("unsupported grant type"))
	}
}

func (h *TokenHandlers) authenticateClient(c *fiber.Ctx, req tokenRequest) (*client.Client, error) {
	cl, err := h.clients.FindByID(c.UserContext(), kernel.NewClientID(req.ClientID))
	if err != nil {
		return nil, client.ErrClientNotFound()
	}
	if !cl.IsActive() {
		return nil, client.ErrClientInactive()
	}
	if cl.Confidential && !cl.VerifySecret(req.ClientSecret, h.cfg.SecretPepper) {
		return nil, client.ErrInvalidSecret()
	}
	if !cl.AllowsGrant(client.GrantType(req.GrantType)) {
		return nil, token.ErrIssuanceRejected("grant type not allowed for client")
	}
	return cl, nil
}

func (h *TokenHandlers) passwordGrant(c *fiber.Ctx, cl *client.Client, req tokenRequest) error {
	ctx := c.UserContext()

	usr, err := h.users.FindByEmail(ctx, req.Username, cl.TenantID)
	if err != nil {
		return writeError(c, auth.ErrUnauthorizedUser())
	}
	if !usr.VerifyPassword(req.Password) {
		return writeError(c, auth.ErrUnauthorizedUser())
	}

	tn, err := h.tenants.FindByID(ctx, cl.TenantID)
	if err != nil {
		return writeError(c, err)
	}

	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = usr.Scopes
	}

	issued, err := h.tokens.Issue(ctx, tokensrv.IssueRequest{
		Client: cl,
		User:   usr,
		Tenant: tn,
		Scopes: scopes,
		TTL:    h.cfg.AccessTokenTTL,
	})
	if err != nil {
		return writeError(c, err)
	}
	refresh, err := h.tokens.IssueRefresh(ctx, &issued.Record, h.cfg.RefreshTokenTTL)
	if err != nil {
		return writeError(c, err)
	}

	return h.respondIssued(c, issued, refresh.ID)
}

func (h *TokenHandlers) refreshGrant(c *fiber.Ctx, cl *client.Client, req tokenRequest) error {
	ctx := c.UserContext()

	old, err := h.tokens.AccessTokenForRefresh(ctx, req.RefreshToken)
	if err != nil {
		return writeError(c, err)
	}
	if old.ClientID != cl.ID {
		return writeError(c, token.ErrInvalidRefresh())
	}

	usr, err := h.users.FindByID(ctx, old.UserID, old.TenantID)
	if err != nil {
		return writeError(c, err)
	}
	tn, err := h.tenants.FindByID(ctx, old.TenantID)
	if err != nil {
		return writeError(c, err)
	}

	issued, refresh, err := h.tokens.Refresh(ctx, req.RefreshToken, cl, usr, tn, h.cfg.AccessTokenTTL)
	if err != nil {
		return writeError(c, err)
	}

	return h.respondIssued(c, issued, refresh.ID)
}

func (h *TokenHandlers) codeGrant(c *fiber.Ctx, cl *client.Client, req tokenRequest) error {
	ctx := c.UserContext()

	code, err := h.tokens.RedeemAuthCode(ctx, req.Code, cl, req.RedirectURI)
	if err != nil {
		return writeError(c, err)
	}

	usr, err := h.users.FindByID(ctx, code.UserID, cl.TenantID)
	if err != nil {
		return writeError(c, err)
	}
	tn, err := h.tenants.FindByID(ctx, cl.TenantID)
	if err != nil {
		return writeError(c, err)
	}

	issued, err := h.tokens.Issue(ctx, tokensrv.IssueRequest{
		Client: cl,
		User:   usr,
		Tenant: tn,
		Scopes: usr.Scopes,
		TTL:    h.cfg.AccessTokenTTL,
	})
	if err != nil {
		return writeError(c, err)
	}
	refresh, err := h.tokens.IssueRefresh(ctx, &issued.Record, h.cfg.RefreshTokenTTL)
	if err != nil {
		return writeError(c, err)
	}

	return h.respondIssued(c, issued, refresh.ID)
}

// Authorize authenticates resource-owner credentials and hands back a
// single-use authorization code bound to the client and redirect uri.
func (h *TokenHandlers) Authorize(c *fiber.Ctx) error {
	var req tokenRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, errx.New("malformed request body", errx.TypeValidation))
	}

	ctx := c.UserContext()
	cl, err := h.clients.FindByID(ctx, kernel.NewClientID(req.ClientID))
	if err != nil {
		return writeError(c, client.ErrClientNotFound())
	}
	if !cl.IsActive() {
		return writeError(c, client.ErrClientInactive())
	}

	usr, err := h.users.FindByEmail(ctx, req.Username, cl.TenantID)
	if err != nil {
		return writeError(c, auth.ErrUnauthorizedUser())
	}
	if !usr.VerifyPassword(req.Password) {
		return writeError(c, auth.ErrUnauthorizedUser())
	}

	code, err := h.tokens.IssueAuthCode(ctx, cl, usr, req.RedirectURI, h.cfg.AuthCodeTTL)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{"code": code.ID, "expires_at": code.ExpiresAt})
}

type revokeRequest struct {
	TokenID string `json:"token_id" form:"token_id"`
}

// Revoke deletes a token record by id. Revoking an unknown id succeeds; the
// caller's goal state is already true.
func (h *TokenHandlers) Revoke(c *fiber.Ctx) error {
	var req revokeRequest
	if err := c.BodyParser(&req); err != nil || req.TokenID == "" {
		return writeError(c, errx.New("token_id is required", errx.TypeValidation))
	}
	if err := h.tokens.Revoke(c.UserContext(), req.TokenID); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Logout revokes the presented token and clears the session cookie. It
// accepts either a bearer header or the encrypted session cookie.
func (h *TokenHandlers) Logout(c *fiber.Ctx) error {
	raw := ""
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		if tok, err := auth.NewBearerStrategy().Authenticate(auth.Request{Authorization: header}); err == nil {
			raw = tok
		}
	}
	if raw == "" && h.codec != nil {
		if value := c.Cookies(h.cfg.CookieName); value != "" {
			if tok, err := h.codec.Decrypt(value); err == nil {
				raw = tok
			}
		}
	}
	if raw == "" {
		return writeError(c, auth.ErrUnauthorizedAccess())
	}

	verified, err := h.verifier.Verify(raw)
	if err != nil {
		return writeError(c, auth.ErrUnauthorizedAccess().WithCause(err))
	}
	if err := h.tokens.Revoke(c.UserContext(), verified.AccessTokenID); err != nil {
		return writeError(c, err)
	}

	if err := h.projections.Invalidate(c.UserContext(), verified.UserID); err != nil {
		logx.WithError(err).Warn("failed to invalidate session projection on logout")
	}

	c.ClearCookie(h.cfg.CookieName)
	logx.WithField("user_id", verified.UserID.String()).Debug("session logged out")
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *TokenHandlers) respondIssued(c *fiber.Ctx, issued *tokensrv.IssuedToken, refreshID string) error {
	expiresIn := int64(issued.Record.ExpiresAt.Sub(issued.Record.IssuedAt).Seconds())

	// Cookie deployments carry the token in the encrypted cookie instead of
	// handing the raw value to page scripts.
	if h.cfg.Strategy == string(auth.StrategySessionCookie) && h.codec != nil {
		sealed, err := h.codec.Encrypt(issued.Signed)
		if err != nil {
			return writeError(c, err)
		}
		c.Cookie(&fiber.Cookie{
			Name:     h.cfg.CookieName,
			Value:    sealed,
			Expires:  issued.Record.ExpiresAt,
			HTTPOnly: true,
			Secure:   true,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
	}

	return c.JSON(tokenResponse{
		AccessToken:  issued.Signed,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
		RefreshToken: refreshID,
	})
}

func writeError(c *fiber.Ctx, err error) error {
	var custom *errx.Error
	if errx.As(err, &custom) {
		return c.Status(custom.HTTPStatus).JSON(custom.ToHTTPResponse())
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
