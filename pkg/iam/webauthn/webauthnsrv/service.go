package webauthnsrv

import (
	"context"
	"time"

	"github.com/Abraxas-365/custodia/pkg/iam/client"
	"github.com/Abraxas-365/custodia/pkg/iam/tenant"
	"github.com/Abraxas-365/custodia/pkg/iam/token/tokensrv"
	"github.com/Abraxas-365/custodia/pkg/iam/user"
	"github.com/Abraxas-365/custodia/pkg/iam/webauthn"
	"github.com/Abraxas-365/custodia/pkg/kernel"
	"github.com/Abraxas-365/custodia/pkg/logx"
)

// Config carries the relying-party identity and ceremony timing.
type Config struct {
	RPID         string
	RPName       string
	Origin       string
	ChallengeTTL time.Duration
	SessionTTL   time.Duration
}

// CeremonyService runs the WebAuthn registration and authentication
// ceremonies. It owns challenge lifecycle, credential persistence and the
// origin binding; signature verification is delegated to the attestation
// and assertion verifiers.
type CeremonyService struct {
	cfg         Config
	challenges  webauthn.ChallengeRepository
	credentials webauthn.CredentialRepository
	users       user.Repository
	tenants     tenant.Repository
	clients     client.Repository
	tokens      *tokensrv.TokenService
	attestation webauthn.AttestationVerifier
	assertion   webauthn.AssertionVerifier
	projections user.ProjectionCache
	now         func() time.Time
}

func NewCeremonyService(
	cfg Config,
	challenges webauthn.ChallengeRepository,
	credentials webauthn.CredentialRepository,
	users user.Repository,
	tenants tenant.Repository,
	clients client.Repository,
	tokens *tokensrv.TokenService,
	attestation webauthn.AttestationVerifier,
	assertion webauthn.AssertionVerifier,
	projections user.ProjectionCache,
) *CeremonyService {
	return &CeremonyService{
		cfg:         cfg,
		challenges:  challenges,
		credentials: credentials,
		users:       users,
		tenants:     tenants,
		clients:     clients,
		tokens:      tokens,
		attestation: attestation,
		assertion:   assertion,
		projections: projections,
		now:         time.Now,
	}
}

// ==== Registration ====

// BeginRegistration opens a registration ceremony: mints a challenge,
// persists it as pending and returns the browser options. Already registered
// active credentials go on the exclusion list so an authenticator is not
// enrolled twice. Multiple pending challenges per user are fine; each device
// mid-ceremony holds its own.
func (s *CeremonyService) BeginRegistration(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID) (*webauthn.RegistrationOptions, error) {
	if userID.IsEmpty() || tenantID.IsEmpty() {
		return nil, webauthn.ErrMissingParameters("user_id")
	}

	usr, err := s.users.FindByID(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	if !usr.IsActive() {
		return nil, user.ErrUserInactive()
	}

	exclude, err := s.activeCredentialIDs(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}

	value, err := webauthn.NewChallengeValue()
	if err != nil {
		return nil, err
	}

	ch := webauthn.Challenge{
		Value:     value,
		UserID:    userID,
		TenantID:  tenantID,
		Ceremony:  webauthn.CeremonyRegistration,
		Status:    webauthn.ChallengePending,
		ExpiresAt: s.now().Add(s.cfg.ChallengeTTL),
		CreatedAt: s.now(),
	}
	if err := s.challenges.Save(ctx, ch); err != nil {
		return nil, err
	}

	return &webauthn.RegistrationOptions{
		Challenge:          value,
		RPID:               s.cfg.RPID,
		RPName:             s.cfg.RPName,
		UserID:             userID.String(),
		UserName:           usr.Email,
		UserDisplayName:    usr.DisplayName,
		ExcludeCredentials: exclude,
		TimeoutMillis:      s.cfg.ChallengeTTL.Milliseconds(),
	}, nil
}

// CompleteRegistration closes a registration ceremony: the challenge must
// be pending, unexpired and belong to the user; the attestation must verify
// against it. On success the credential is stored bound to the configured
// origin, the challenge is marked completed and the user gains the
// webauthn_enabled tag.
func (s *CeremonyService) CompleteRegistration(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID, challengeValue, label string, resp webauthn.AttestationResponse) (*webauthn.Credential, error) {
	if challengeValue == "" {
		return nil, webauthn.ErrMissingParameters("challenge")
	}
	if resp.CredentialID == "" {
		return nil, webauthn.ErrMissingParameters("credential_id")
	}

	ch, err := s.consumableChallenge(ctx, challengeValue, userID, tenantID, webauthn.CeremonyRegistration)
	if err != nil {
		return nil, err
	}

	attested, err := s.attestation.VerifyAttestation(ctx, ch.Value, s.cfg.Origin, resp)
	if err != nil {
		return nil, webauthn.ErrInvalidCredential().WithCause(err)
	}

	cred := webauthn.Credential{
		ID:        attested.ID,
		UserID:    userID,
		TenantID:  tenantID,
		PublicKey: attested.PublicKey,
		SignCount: attested.SignCount,
		Origin:    s.cfg.Origin,
		Label:     label,
		Status:    webauthn.CredentialActive,
		CreatedAt: s.now(),
	}
	if err := s.credentials.Save(ctx, cred); err != nil {
		return nil, err
	}

	if err := s.markCompleted(ctx, ch); err != nil {
		return nil, err
	}

	if err := s.tagUser(ctx, userID, tenantID); err != nil {
		return nil, err
	}

	logx.WithFields(logx.Fields{
		"user_id":       userID.String(),
		"credential_id": cred.ID,
	}).Info("webauthn credential registered")

	return &cred, nil
}

// ==== Authentication ====

// BeginAuthentication opens an authentication ceremony. The user must hold
// at least one active credential; the allow-list names them all.
func (s *CeremonyService) BeginAuthentication(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID) (*webauthn.AuthenticationOptions, error) {
	if userID.IsEmpty() || tenantID.IsEmpty() {
		return nil, webauthn.ErrMissingParameters("user_id")
	}

	usr, err := s.users.FindByID(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	if !usr.IsActive() {
		return nil, user.ErrUserInactive()
	}

	allow, err := s.activeCredentialIDs(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	if len(allow) == 0 {
		return nil, webauthn.ErrNoCredentials()
	}

	value, err := webauthn.NewChallengeValue()
	if err != nil {
		return nil, err
	}

	ch := webauthn.Challenge{
		Value:     value,
		UserID:    userID,
		TenantID:  tenantID,
		Ceremony:  webauthn.CeremonyAuthentication,
		Status:    webauthn.ChallengePending,
		ExpiresAt: s.now().Add(s.cfg.ChallengeTTL),
		CreatedAt: s.now(),
	}
	if err := s.challenges.Save(ctx, ch); err != nil {
		return nil, err
	}

	return &webauthn.AuthenticationOptions{
		Challenge:        value,
		RPID:             s.cfg.RPID,
		AllowCredentials: allow,
		TimeoutMillis:    s.cfg.ChallengeTTL.Milliseconds(),
	}, nil
}

// Session is the result of a completed authentication ceremony.
type Session struct {
	Token      *tokensrv.IssuedToken `json:"token"`
	Credential *webauthn.Credential  `json:"credential"`
}

// CompleteAuthentication closes an authentication ceremony: consumes the
// pending challenge, verifies the assertion against the stored credential,
// bumps the signature counter and mints a session token through the named
// client. Completing one challenge leaves the user's other pending
// challenges untouched.
func (s *CeremonyService) CompleteAuthentication(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID, clientID kernel.ClientID, challengeValue string, resp webauthn.AssertionResponse) (*Session, error) {
	if challengeValue == "" {
		return nil, webauthn.ErrMissingParameters("challenge")
	}
	if resp.CredentialID == "" {
		return nil, webauthn.ErrMissingParameters("credential_id")
	}

	ch, err := s.consumableChallenge(ctx, challengeValue, userID, tenantID, webauthn.CeremonyAuthentication)
	if err != nil {
		return nil, err
	}

	cred, err := s.credentials.FindByID(ctx, resp.CredentialID)
	if err != nil {
		return nil, webauthn.ErrInvalidCredential().WithCause(err)
	}
	if !cred.IsActive() || cred.UserID != userID || cred.TenantID != tenantID || cred.Origin != s.cfg.Origin {
		return nil, webauthn.ErrInvalidCredential()
	}

	signCount, err := s.assertion.VerifyAssertion(ctx, ch.Value, s.cfg.Origin, cred, resp)
	if err != nil {
		return nil, webauthn.ErrInvalidCredential().WithCause(err)
	}

	cred.SignCount = signCount
	cred.LastUsedAt = s.now()
	if err := s.credentials.Save(ctx, *cred); err != nil {
		return nil, err
	}

	if err := s.markCompleted(ctx, ch); err != nil {
		return nil, err
	}

	usr, err := s.users.FindByID(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	tn, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	cl, err := s.clients.FindByID(ctx, clientID)
	if err != nil {
		return nil, err
	}

	issued, err := s.tokens.Issue(ctx, tokensrv.IssueRequest{
		Client:   cl,
		User:     usr,
		Tenant:   tn,
		Scopes:   usr.Scopes,
		TTL:      s.cfg.SessionTTL,
		Metadata: map[string]string{"auth_method": "webauthn", "credential_id": cred.ID},
	})
	if err != nil {
		return nil, err
	}

	logx.WithFields(logx.Fields{
		"user_id":       userID.String(),
		"credential_id": cred.ID,
	}).Info("webauthn authentication completed")

	return &Session{Token: issued, Credential: cred}, nil
}

// ==== Credential management ====

// Credentials lists every credential on record for the user, revoked ones
// included.
func (s *CeremonyService) Credentials(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID) ([]*webauthn.Credential, error) {
	return s.credentials.FindByUser(ctx, userID, tenantID)
}

// RevokeCredential flips a credential to revoked. It stays on record.
func (s *CeremonyService) RevokeCredential(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID, credentialID string) error {
	cred, err := s.credentials.FindByID(ctx, credentialID)
	if err != nil {
		return webauthn.ErrInvalidCredential().WithCause(err)
	}
	if cred.UserID != userID || cred.TenantID != tenantID {
		return webauthn.ErrInvalidCredential()
	}
	cred.Status = webauthn.CredentialRevoked
	return s.credentials.Save(ctx, *cred)
}

// ==== Helpers ====

func (s *CeremonyService) activeCredentialIDs(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID) ([]string, error) {
	creds, err := s.credentials.FindByUser(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(creds))
	for _, cred := range creds {
		if cred.IsActive() {
			ids = append(ids, cred.ID)
		}
	}
	return ids, nil
}

func (s *CeremonyService) consumableChallenge(ctx context.Context, value string, userID kernel.UserID, tenantID kernel.TenantID, ceremony webauthn.Ceremony) (*webauthn.Challenge, error) {
	ch, err := s.challenges.FindByValue(ctx, value)
	if err != nil {
		return nil, webauthn.ErrMissingActiveChallenge().WithCause(err)
	}
	if ch.UserID != userID || ch.TenantID != tenantID || ch.Ceremony != ceremony {
		return nil, webauthn.ErrMissingActiveChallenge()
	}
	if !ch.IsUsable(s.now()) {
		return nil, webauthn.ErrMissingActiveChallenge().WithDetail("status", string(ch.Status))
	}
	return ch, nil
}

func (s *CeremonyService) markCompleted(ctx context.Context, ch *webauthn.Challenge) error {
	ch.Status = webauthn.ChallengeCompleted
	return s.challenges.Save(ctx, *ch)
}

func (s *CeremonyService) tagUser(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID) error {
	usr, err := s.users.FindByID(ctx, userID, tenantID)
	if err != nil {
		return err
	}
	if usr.HasTag(user.TagWebauthnEnabled) {
		return nil
	}
	usr.AddTag(user.TagWebauthnEnabled)
	if err := s.users.Save(ctx, *usr); err != nil {
		return err
	}
	// Projection now stale: the tag set changed.
	if s.projections != nil {
		if err := s.projections.Invalidate(ctx, userID); err != nil {
			logx.WithError(err).Warn("projection invalidation failed")
		}
	}
	return nil
}
