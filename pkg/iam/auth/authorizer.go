package auth

import (
	"context"

	"github.com/Abraxas-365/custodia/pkg/iam/client"
	"github.com/Abraxas-365/custodia/pkg/iam/scope"
	"github.com/Abraxas-365/custodia/pkg/iam/tenant"
	"github.com/Abraxas-365/custodia/pkg/iam/token"
	"github.com/Abraxas-365/custodia/pkg/iam/user"
	"github.com/Abraxas-365/custodia/pkg/kernel"
)

// Pipeline stages, reported to the audit service on denial.
const (
	stageExtract    = "extract"
	stageVerify     = "verify"
	stageRevocation = "revocation"
	stageScopeDecl  = "scope_declaration"
	stageScopeMatch = "scope_match"
	stageClient     = "client"
	stageTenant     = "tenant"
	stageUser       = "user"
)

// Authorizer runs the fail-fast authorization pipeline: extract the token,
// verify it, confirm it has not been revoked, match its scopes against the
// declared requirement for the operation, then confirm client, tenant and
// user are all still in good standing. A request that passes every stage
// gets a resolved AuthContext; any failure yields a typed AUTH error and
// nothing else.
type Authorizer struct {
	strategy    Authenticator
	verifier    token.Verifier
	validator   TokenValidator
	registry    *scope.Registry
	clients     client.Repository
	users       user.Repository
	tenants     tenant.Repository
	projections user.ProjectionCache
	audit       AuditService
}

func NewAuthorizer(
	strategy Authenticator,
	verifier token.Verifier,
	validator TokenValidator,
	registry *scope.Registry,
	clients client.Repository,
	users user.Repository,
	tenants tenant.Repository,
	projections user.ProjectionCache,
	audit AuditService,
) *Authorizer {
	return &Authorizer{
		strategy:    strategy,
		verifier:    verifier,
		validator:   validator,
		registry:    registry,
		clients:     clients,
		users:       users,
		tenants:     tenants,
		projections: projections,
		audit:       audit,
	}
}

// Authorize runs the pipeline for one request against one declared
// operation. On success the returned AuthContext carries the verified
// identity and the token's scope snapshot; for cookie sessions it also
// carries the session projection.
func (a *Authorizer) Authorize(ctx context.Context, req Request, target, operation string) (*kernel.AuthContext, error) {
	identity := Identity{RemoteIP: req.RemoteIP}

	deny := func(stage string, err error) error {
		a.audit.AuthorizationDenied(ctx, identity, target, operation, stage, err)
		return err
	}

	// Stage 1: pull the raw token off the request.
	raw, err := a.strategy.Authenticate(req)
	if err != nil {
		return nil, deny(stageExtract, err)
	}

	// Stage 2: signature, expiry and claim extraction.
	verified, err := a.verifier.Verify(raw)
	if err != nil {
		return nil, deny(stageVerify, ErrUnauthorizedAccess().WithCause(err))
	}
	identity.AccessTokenID = verified.AccessTokenID
	identity.ClientID = verified.ClientID.String()
	identity.UserID = verified.UserID.String()
	identity.TenantID = verified.TenantID.String()

	// Stage 3: the persisted record is the revocation source of truth. A
	// cryptographically sound token whose record is gone is a dead token.
	live, err := a.validator.IsValid(ctx, verified.AccessTokenID)
	if err != nil {
		return nil, deny(stageRevocation, ErrUnauthorizedAccess().WithCause(err))
	}
	if !live {
		return nil, deny(stageRevocation, ErrUnauthorizedAccess().WithDetail("reason", "token revoked or expired"))
	}

	// Stage 4: an operation nobody declared scopes for is a deployment
	// defect and fails closed, regardless of what the token carries.
	required := a.registry.RequirementsFor(target, operation)
	if len(required) == 0 {
		return nil, deny(stageScopeDecl, ErrMissingResourceScope(target, operation))
	}

	// Stage 5: the token's scope snapshot must satisfy at least one
	// declared requirement.
	if !scope.SatisfiesAny(verified.Scopes, required) {
		return nil, deny(stageScopeMatch, ErrUnauthorizedAccess().
			WithDetail("reason", "insufficient scope").
			WithDetail("target", target).
			WithDetail("operation", operation))
	}

	// Stage 6: the issuing client must still exist and be active.
	cl, err := a.clients.FindByID(ctx, verified.ClientID)
	if err != nil {
		return nil, deny(stageClient, ErrUnauthorizedClient().WithCause(err))
	}
	if !cl.IsActive() || cl.TenantID != verified.TenantID {
		return nil, deny(stageClient, ErrUnauthorizedClient())
	}

	// Stage 7: the tenant must be active and, when it carries an IP
	// allowlist, must admit the caller's address.
	tn, err := a.tenants.FindByID(ctx, verified.TenantID)
	if err != nil {
		return nil, deny(stageTenant, ErrUnauthorizedClient().WithCause(err))
	}
	if !tn.IsActive() {
		return nil, deny(stageTenant, ErrUnauthorizedClient().WithDetail("reason", "tenant suspended"))
	}
	if !tn.AllowsIP(req.RemoteIP) {
		return nil, deny(stageTenant, ErrUnauthorizedAccess().WithDetail("reason", "ip not allowed"))
	}

	// Stage 8: the user must still exist, be active, and still hold the
	// required scopes at the tenant level. Tenant-side revocation of a
	// grant takes effect here even while old tokens still claim it.
	usr, err := a.users.FindByID(ctx, verified.UserID, verified.TenantID)
	if err != nil {
		return nil, deny(stageUser, ErrUnauthorizedUser().WithCause(err))
	}
	if !usr.IsActive() {
		return nil, deny(stageUser, ErrUnauthorizedUser().WithDetail("reason", "user inactive"))
	}
	if !scope.SatisfiesAny(usr.Scopes, required) {
		return nil, deny(stageUser, ErrUnauthorizedUser().WithDetail("reason", "scope no longer granted"))
	}

	ac := &kernel.AuthContext{
		UserID:   verified.UserID,
		ClientID: verified.ClientID,
		TenantID: verified.TenantID,
		Scopes:   verified.Scopes,
	}

	if a.strategy.Strategy() == StrategySessionCookie {
		ac.Session = a.sessionProjection(ctx, usr, tn)
	}

	a.audit.AuthorizationGranted(ctx, identity, target, operation)
	return ac, nil
}

// sessionProjection reads through the projection cache. Cache misses and
// cache errors both fall back to building the projection from the user
// record; a broken cache never blocks an otherwise valid request.
func (a *Authorizer) sessionProjection(ctx context.Context, usr *user.User, tn *tenant.Tenant) *kernel.SessionProjection {
	if a.projections != nil {
		if p, ok := a.projections.Get(ctx, usr.ID); ok {
			return p
		}
	}
	p := usr.Projection(tn.Name)
	if a.projections != nil {
		_ = a.projections.Set(ctx, usr.ID, p)
	}
	return p
}
