package tokensrv

import (
	"context"
	"time"

	"github.com/Abraxas-365/custodia/pkg/errx"
	"github.com/Abraxas-365/custodia/pkg/iam/client"
	"github.com/Abraxas-365/custodia/pkg/iam/scope"
	"github.com/Abraxas-365/custodia/pkg/iam/tenant"
	"github.com/Abraxas-365/custodia/pkg/iam/token"
	"github.com/Abraxas-365/custodia/pkg/iam/user"
	"github.com/Abraxas-365/custodia/pkg/logx"
)

// TokenService owns the lifecycle of access tokens, refresh tokens and
// authorization codes: issuance, validity-by-existence and revocation.
type TokenService struct {
	accessRepo  token.AccessTokenRepository
	refreshRepo token.RefreshTokenRepository
	codeRepo    token.AuthCodeRepository
	signer      token.Signer
}

// NewTokenService creates the lifecycle manager.
func NewTokenService(
	accessRepo token.AccessTokenRepository,
	refreshRepo token.RefreshTokenRepository,
	codeRepo token.AuthCodeRepository,
	signer token.Signer,
) *TokenService {
	return &TokenService{
		accessRepo:  accessRepo,
		refreshRepo: refreshRepo,
		codeRepo:    codeRepo,
		signer:      signer,
	}
}

// IssueRequest carries everything needed to mint an access token.
type IssueRequest struct {
	Client   *client.Client
	User     *user.User
	Tenant   *tenant.Tenant
	Scopes   []string
	TTL      time.Duration
	Metadata map[string]string
}

// IssuedToken pairs the persisted record with the signed artifact handed to
// the caller.
type IssuedToken struct {
	Record AccessToken `json:"record"`
	Signed string      `json:"signed"`
}

// AccessToken aliases the domain entity for the response type.
type AccessToken = token.AccessToken

// Issue mints a new access token: validates the owning entities, snapshots
// the scopes, signs the artifact and persists the record. The persisted
// record is the source of truth for later revocation.
func (s *TokenService) Issue(ctx context.Context, req IssueRequest) (*IssuedToken, error) {
	if req.Client == nil || req.User == nil || req.Tenant == nil {
		return nil, token.ErrIssuanceRejected("client, user and tenant are required")
	}
	if !req.Tenant.IsActive() {
		return nil, tenant.ErrTenantSuspended()
	}
	if !req.Client.IsActive() {
		return nil, client.ErrClientInactive()
	}
	if !req.User.IsActive() {
		return nil, user.ErrUserInactive()
	}
	if req.Client.TenantID != req.Tenant.ID || req.User.TenantID != req.Tenant.ID {
		return nil, token.ErrIssuanceRejected("client and user must belong to the tenant")
	}
	if len(req.Scopes) == 0 {
		return nil, token.ErrIssuanceRejected("at least one scope is required")
	}

	// The scope snapshot must be grantable to the user within the tenant at
	// issuance time.
	for _, requested := range req.Scopes {
		if !scope.IsWellFormed(requested) {
			return nil, scope.ErrMalformedScope(requested)
		}
		if !scope.Satisfies(req.User.Scopes, requested) {
			return nil, token.ErrIssuanceRejected("scope not grantable to user").
				WithDetail("scope", requested)
		}
	}

	id, err := token.GenerateID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := token.AccessToken{
		ID:        id,
		ClientID:  req.Client.ID,
		UserID:    req.User.ID,
		TenantID:  req.Tenant.ID,
		Scopes:    append([]string(nil), req.Scopes...),
		ExpiresAt: now.Add(req.TTL),
		IssuedAt:  now,
		Metadata:  req.Metadata,
	}

	signed, err := s.signer.Sign(token.Claims{
		TokenID:   record.ID,
		Subject:   record.UserID,
		Audience:  record.ClientID,
		TenantID:  record.TenantID,
		Scopes:    record.Scopes,
		IssuedAt:  now,
		NotBefore: now,
		ExpiresAt: record.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}

	if err := s.accessRepo.Save(ctx, record); err != nil {
		return nil, errx.Wrap(err, "failed to persist access token", errx.TypeInternal)
	}

	logx.WithFields(logx.Fields{
		"token_id":  record.ID,
		"user_id":   record.UserID,
		"client_id": record.ClientID,
		"tenant_id": record.TenantID,
		"expires":   record.ExpiresAt,
	}).Debug("access token issued")

	return &IssuedToken{Record: record, Signed: signed}, nil
}

// IssueRefresh persists a refresh token referencing the access token.
func (s *TokenService) IssueRefresh(ctx context.Context, access *token.AccessToken, ttl time.Duration) (*token.RefreshToken, error) {
	if access == nil {
		return nil, token.ErrIssuanceRejected("access token is required")
	}

	id, err := token.GenerateID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	refresh := token.RefreshToken{
		ID:            id,
		AccessTokenID: access.ID,
		ExpiresAt:     now.Add(ttl),
		CreatedAt:     now,
	}

	if err := s.refreshRepo.Save(ctx, refresh); err != nil {
		return nil, errx.Wrap(err, "failed to persist refresh token", errx.TypeInternal)
	}
	return &refresh, nil
}

// IssueAuthCode persists a single-use authorization code.
func (s *TokenService) IssueAuthCode(ctx context.Context, cl *client.Client, u *user.User, redirectURI string, ttl time.Duration) (*token.AuthCode, error) {
	if cl == nil || u == nil {
		return nil, token.ErrIssuanceRejected("client and user are required")
	}
	if redirectURI == "" || redirectURI != cl.RedirectURI {
		return nil, token.ErrIssuanceRejected("redirect uri does not match client registration")
	}

	id, err := token.GenerateID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	code := token.AuthCode{
		ID:          id,
		ClientID:    cl.ID,
		UserID:      u.ID,
		RedirectURI: redirectURI,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}

	if err := s.codeRepo.Save(ctx, code); err != nil {
		return nil, errx.Wrap(err, "failed to persist auth code", errx.TypeInternal)
	}
	return &code, nil
}

// RedeemAuthCode consumes an authorization code: it must exist, be unexpired
// and match the presenting client and redirect uri. Redemption deletes the
// code, making it single use.
func (s *TokenService) RedeemAuthCode(ctx context.Context, codeID string, cl *client.Client, redirectURI string) (*token.AuthCode, error) {
	code, err := s.codeRepo.Find(ctx, codeID)
	if err != nil {
		return nil, token.ErrInvalidAuthCode()
	}
	if code.IsExpired() || cl == nil || code.ClientID != cl.ID || code.RedirectURI != redirectURI {
		return nil, token.ErrInvalidAuthCode()
	}

	if err := s.codeRepo.Delete(ctx, codeID); err != nil {
		return nil, errx.Wrap(err, "failed to consume auth code", errx.TypeInternal)
	}
	return code, nil
}

// Revoke removes the persisted access token record and every refresh token
// referencing it. Revoking an unknown id is the expected "already revoked"
// outcome, not an error.
func (s *TokenService) Revoke(ctx context.Context, tokenID string) error {
	if err := s.refreshRepo.DeleteByAccessToken(ctx, tokenID); err != nil {
		return errx.Wrap(err, "failed to delete refresh tokens", errx.TypeInternal)
	}
	if err := s.accessRepo.Delete(ctx, tokenID); err != nil {
		return errx.Wrap(err, "failed to delete access token", errx.TypeInternal)
	}

	logx.WithField("token_id", tokenID).Debug("access token revoked")
	return nil
}

// IsValid reports whether the access token record still exists and is
// unexpired. Every authorization decision consults this, never signature
// validity alone, so revocation takes effect before natural expiry.
func (s *TokenService) IsValid(ctx context.Context, tokenID string) (bool, error) {
	record, err := s.accessRepo.Find(ctx, tokenID)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			return false, nil
		}
		return false, err
	}
	return !record.IsExpired(), nil
}

// AccessTokenForRefresh resolves the access token record a refresh token
// points at, so callers can re-resolve its owning entities before rotation.
func (s *TokenService) AccessTokenForRefresh(ctx context.Context, refreshID string) (*token.AccessToken, error) {
	refresh, err := s.refreshRepo.Find(ctx, refreshID)
	if err != nil {
		return nil, token.ErrInvalidRefresh()
	}
	if refresh.IsExpired() {
		return nil, token.ErrInvalidRefresh()
	}
	old, err := s.accessRepo.Find(ctx, refresh.AccessTokenID)
	if err != nil {
		return nil, token.ErrInvalidRefresh()
	}
	return old, nil
}

// Refresh rotates a token pair: validates the refresh token, re-issues an
// access token with the original scope snapshot and revokes the old pair.
func (s *TokenService) Refresh(ctx context.Context, refreshID string, cl *client.Client, u *user.User, tn *tenant.Tenant, ttl time.Duration) (*IssuedToken, *token.RefreshToken, error) {
	refresh, err := s.refreshRepo.Find(ctx, refreshID)
	if err != nil {
		return nil, nil, token.ErrInvalidRefresh()
	}
	if refresh.IsExpired() {
		return nil, nil, token.ErrInvalidRefresh()
	}

	old, err := s.accessRepo.Find(ctx, refresh.AccessTokenID)
	if err != nil {
		// The access token was revoked; its refresh tokens die with it.
		return nil, nil, token.ErrInvalidRefresh()
	}

	issued, err := s.Issue(ctx, IssueRequest{
		Client:   cl,
		User:     u,
		Tenant:   tn,
		Scopes:   old.Scopes,
		TTL:      ttl,
		Metadata: map[string]string{"rotated_from": old.ID},
	})
	if err != nil {
		return nil, nil, err
	}

	newRefresh, err := s.IssueRefresh(ctx, &issued.Record, time.Until(refresh.ExpiresAt))
	if err != nil {
		return nil, nil, err
	}

	if err := s.Revoke(ctx, old.ID); err != nil {
		return nil, nil, err
	}
	return issued, newRefresh, nil
}
