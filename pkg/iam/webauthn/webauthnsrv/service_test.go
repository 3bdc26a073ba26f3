package webauthnsrv_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Abraxas-365/custodia/pkg/errx"
	"github.com/Abraxas-365/custodia/pkg/iam/client"
	"github.com/Abraxas-365/custodia/pkg/iam/tenant"
	"github.com/Abraxas-365/custodia/pkg/iam/token"
	"github.com/Abraxas-365/custodia/pkg/iam/token/tokeninfra"
	"github.com/Abraxas-365/custodia/pkg/iam/token/tokensrv"
	"github.com/Abraxas-365/custodia/pkg/iam/user"
	"github.com/Abraxas-365/custodia/pkg/iam/webauthn"
	"github.com/Abraxas-365/custodia/pkg/iam/webauthn/webauthninfra"
	"github.com/Abraxas-365/custodia/pkg/iam/webauthn/webauthnsrv"
	"github.com/Abraxas-365/custodia/pkg/kernel"
)

// ==== Fakes ====

type staticSigner struct{}

func (staticSigner) Sign(claims token.Claims) (string, error) {
	return "signed:" + claims.TokenID, nil
}

type fakeUserRepo struct {
	users map[kernel.UserID]*user.User
}

func (f *fakeUserRepo) Save(_ context.Context, u user.User) error {
	f.users[u.ID] = &u
	return nil
}

func (f *fakeUserRepo) FindByID(_ context.Context, id kernel.UserID, tenantID kernel.TenantID) (*user.User, error) {
	u, ok := f.users[id]
	if !ok || u.TenantID != tenantID {
		return nil, user.ErrUserNotFound()
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) FindByEmail(_ context.Context, _ string, _ kernel.TenantID) (*user.User, error) {
	return nil, user.ErrUserNotFound()
}

type fakeTenantRepo struct {
	tenants map[kernel.TenantID]*tenant.Tenant
}

func (f *fakeTenantRepo) Save(_ context.Context, t tenant.Tenant) error {
	f.tenants[t.ID] = &t
	return nil
}

func (f *fakeTenantRepo) FindByID(_ context.Context, id kernel.TenantID) (*tenant.Tenant, error) {
	t, ok := f.tenants[id]
	if !ok {
		return nil, tenant.ErrTenantNotFound()
	}
	return t, nil
}

func (f *fakeTenantRepo) FindByDomain(_ context.Context, _ string) (*tenant.Tenant, error) {
	return nil, tenant.ErrTenantNotFound()
}

type fakeClientRepo struct {
	clients map[kernel.ClientID]*client.Client
}

func (f *fakeClientRepo) Save(_ context.Context, c client.Client) error {
	f.clients[c.ID] = &c
	return nil
}

func (f *fakeClientRepo) FindByID(_ context.Context, id kernel.ClientID) (*client.Client, error) {
	c, ok := f.clients[id]
	if !ok {
		return nil, client.ErrClientNotFound()
	}
	return c, nil
}

func (f *fakeClientRepo) FindByTenant(_ context.Context, _ kernel.TenantID) ([]*client.Client, error) {
	return nil, nil
}

type fakeProjectionCache struct {
	entries     map[kernel.UserID]*kernel.SessionProjection
	invalidated int
}

func (f *fakeProjectionCache) Get(_ context.Context, id kernel.UserID) (*kernel.SessionProjection, bool) {
	p, ok := f.entries[id]
	return p, ok
}

func (f *fakeProjectionCache) Set(_ context.Context, id kernel.UserID, p *kernel.SessionProjection) error {
	f.entries[id] = p
	return nil
}

func (f *fakeProjectionCache) Invalidate(_ context.Context, id kernel.UserID) error {
	f.invalidated++
	delete(f.entries, id)
	return nil
}

// okAttestation accepts everything and echoes the credential id back.
type okAttestation struct{}

func (okAttestation) VerifyAttestation(_ context.Context, _, _ string, resp webauthn.AttestationResponse) (*webauthn.AttestedCredential, error) {
	return &webauthn.AttestedCredential{
		ID:        resp.CredentialID,
		PublicKey: []byte("public-key"),
		SignCount: 1,
	}, nil
}

type failingAttestation struct{}

func (failingAttestation) VerifyAttestation(_ context.Context, _, _ string, _ webauthn.AttestationResponse) (*webauthn.AttestedCredential, error) {
	return nil, errors.New("attestation rejected")
}

// okAssertion accepts everything and reports a bumped sign count.
type okAssertion struct {
	signCount uint32
}

func (a okAssertion) VerifyAssertion(_ context.Context, _, _ string, _ *webauthn.Credential, _ webauthn.AssertionResponse) (uint32, error) {
	return a.signCount, nil
}

type failingAssertion struct{}

func (failingAssertion) VerifyAssertion(_ context.Context, _, _ string, _ *webauthn.Credential, _ webauthn.AssertionResponse) (uint32, error) {
	return 0, errors.New("assertion rejected")
}

// ==== Fixture ====

type world struct {
	service     *webauthnsrv.CeremonyService
	users       *fakeUserRepo
	credentials webauthn.CredentialRepository
	cache       *fakeProjectionCache
	tokens      *tokensrv.TokenService
}

func newWorld(t *testing.T, cfg webauthnsrv.Config, attestation webauthn.AttestationVerifier, assertion webauthn.AssertionVerifier) *world {
	t.Helper()

	users := &fakeUserRepo{users: map[kernel.UserID]*user.User{
		"user-1": {
			ID:          "user-1",
			TenantID:    "tenant-1",
			Email:       "ada@acme.test",
			DisplayName: "Ada",
			Scopes:      []string{"oauth:client:"},
			Status:      user.StatusActive,
		},
	}}
	tenants := &fakeTenantRepo{tenants: map[kernel.TenantID]*tenant.Tenant{
		"tenant-1": {ID: "tenant-1", Name: "Acme", Status: tenant.StatusActive},
	}}
	clients := &fakeClientRepo{clients: map[kernel.ClientID]*client.Client{
		"client-1": {ID: "client-1", TenantID: "tenant-1", Status: client.StatusActive},
	}}
	cache := &fakeProjectionCache{entries: map[kernel.UserID]*kernel.SessionProjection{}}

	tokens := tokensrv.NewTokenService(
		tokeninfra.NewMemoryAccessTokenRepository(),
		tokeninfra.NewMemoryRefreshTokenRepository(),
		tokeninfra.NewMemoryAuthCodeRepository(),
		staticSigner{},
	)

	credentials := webauthninfra.NewMemoryCredentialRepository()
	service := webauthnsrv.NewCeremonyService(
		cfg,
		webauthninfra.NewMemoryChallengeRepository(),
		credentials,
		users, tenants, clients, tokens,
		attestation, assertion, cache,
	)

	return &world{
		service:     service,
		users:       users,
		credentials: credentials,
		cache:       cache,
		tokens:      tokens,
	}
}

func defaultConfig() webauthnsrv.Config {
	return webauthnsrv.Config{
		RPID:         "acme.test",
		RPName:       "Acme",
		Origin:       "https://acme.test",
		ChallengeTTL: 5 * time.Minute,
		SessionTTL:   time.Hour,
	}
}

func register(t *testing.T, w *world, credentialID string) *webauthn.Credential {
	t.Helper()
	ctx := context.Background()

	opts, err := w.service.BeginRegistration(ctx, "user-1", "tenant-1")
	if err != nil {
		t.Fatalf("begin registration: %v", err)
	}
	cred, err := w.service.CompleteRegistration(ctx, "user-1", "tenant-1", opts.Challenge, "laptop",
		webauthn.AttestationResponse{CredentialID: credentialID})
	if err != nil {
		t.Fatalf("complete registration: %v", err)
	}
	return cred
}

// ==== Registration ====

func TestRegistrationCeremony(t *testing.T) {
	w := newWorld(t, defaultConfig(), okAttestation{}, okAssertion{signCount: 2})
	ctx := context.Background()

	opts, err := w.service.BeginRegistration(ctx, "user-1", "tenant-1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if opts.Challenge == "" {
		t.Fatal("options must carry a challenge")
	}
	if opts.RPID != "acme.test" || opts.UserName != "ada@acme.test" {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if len(opts.ExcludeCredentials) != 0 {
		t.Fatalf("fresh user must have no exclusions, got %v", opts.ExcludeCredentials)
	}

	cred, err := w.service.CompleteRegistration(ctx, "user-1", "tenant-1", opts.Challenge, "laptop",
		webauthn.AttestationResponse{CredentialID: "cred-1"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !cred.IsActive() || cred.Origin != "https://acme.test" {
		t.Fatalf("unexpected credential: %+v", cred)
	}

	u := w.users.users["user-1"]
	if !u.HasTag(user.TagWebauthnEnabled) {
		t.Fatal("user must be tagged webauthn_enabled")
	}

	// The next registration excludes the enrolled authenticator.
	opts2, err := w.service.BeginRegistration(ctx, "user-1", "tenant-1")
	if err != nil {
		t.Fatalf("second begin: %v", err)
	}
	if len(opts2.ExcludeCredentials) != 1 || opts2.ExcludeCredentials[0] != "cred-1" {
		t.Fatalf("want exclusion of cred-1, got %v", opts2.ExcludeCredentials)
	}
}

func TestCompleteRegistration_ChallengeReplay(t *testing.T) {
	w := newWorld(t, defaultConfig(), okAttestation{}, okAssertion{signCount: 2})
	ctx := context.Background()

	opts, err := w.service.BeginRegistration(ctx, "user-1", "tenant-1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := w.service.CompleteRegistration(ctx, "user-1", "tenant-1", opts.Challenge, "",
		webauthn.AttestationResponse{CredentialID: "cred-1"}); err != nil {
		t.Fatalf("first complete: %v", err)
	}

	_, err = w.service.CompleteRegistration(ctx, "user-1", "tenant-1", opts.Challenge, "",
		webauthn.AttestationResponse{CredentialID: "cred-2"})
	if !errx.IsCode(err, webauthn.CodeMissingActiveChallenge) {
		t.Fatalf("want MISSING_ACTIVE_CHALLENGE on replay, got %v", err)
	}
}

func TestCompleteRegistration_ExpiredChallenge(t *testing.T) {
	cfg := defaultConfig()
	cfg.ChallengeTTL = -time.Minute
	w := newWorld(t, cfg, okAttestation{}, okAssertion{signCount: 2})
	ctx := context.Background()

	opts, err := w.service.BeginRegistration(ctx, "user-1", "tenant-1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, err = w.service.CompleteRegistration(ctx, "user-1", "tenant-1", opts.Challenge, "",
		webauthn.AttestationResponse{CredentialID: "cred-1"})
	if !errx.IsCode(err, webauthn.CodeMissingActiveChallenge) {
		t.Fatalf("want MISSING_ACTIVE_CHALLENGE, got %v", err)
	}
}

func TestCompleteRegistration_FailedAttestation(t *testing.T) {
	w := newWorld(t, defaultConfig(), failingAttestation{}, okAssertion{signCount: 2})
	ctx := context.Background()

	opts, err := w.service.BeginRegistration(ctx, "user-1", "tenant-1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, err = w.service.CompleteRegistration(ctx, "user-1", "tenant-1", opts.Challenge, "",
		webauthn.AttestationResponse{CredentialID: "cred-1"})
	if !errx.IsCode(err, webauthn.CodeInvalidCredential) {
		t.Fatalf("want INVALID_CREDENTIAL, got %v", err)
	}
}

func TestCompleteRegistration_MissingParameters(t *testing.T) {
	w := newWorld(t, defaultConfig(), okAttestation{}, okAssertion{signCount: 2})

	_, err := w.service.CompleteRegistration(context.Background(), "user-1", "tenant-1", "", "",
		webauthn.AttestationResponse{CredentialID: "cred-1"})
	if !errx.IsCode(err, webauthn.CodeMissingParameters) {
		t.Fatalf("want MISSING_PARAMETERS, got %v", err)
	}
}

// ==== Authentication ====

func TestBeginAuthentication_NoCredentials(t *testing.T) {
	w := newWorld(t, defaultConfig(), okAttestation{}, okAssertion{signCount: 2})

	_, err := w.service.BeginAuthentication(context.Background(), "user-1", "tenant-1")
	if !errx.IsCode(err, webauthn.CodeNoCredentials) {
		t.Fatalf("want NO_CREDENTIALS, got %v", err)
	}
}

func TestAuthenticationCeremony(t *testing.T) {
	w := newWorld(t, defaultConfig(), okAttestation{}, okAssertion{signCount: 7})
	ctx := context.Background()
	register(t, w, "cred-1")

	opts, err := w.service.BeginAuthentication(ctx, "user-1", "tenant-1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if len(opts.AllowCredentials) != 1 || opts.AllowCredentials[0] != "cred-1" {
		t.Fatalf("unexpected allow list: %v", opts.AllowCredentials)
	}

	session, err := w.service.CompleteAuthentication(ctx, "user-1", "tenant-1", "client-1", opts.Challenge,
		webauthn.AssertionResponse{CredentialID: "cred-1"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if session.Token == nil || session.Token.Signed == "" {
		t.Fatal("authentication must mint a session token")
	}
	if session.Credential.SignCount != 7 {
		t.Fatalf("want sign count 7, got %d", session.Credential.SignCount)
	}

	live, err := w.tokens.IsValid(ctx, session.Token.Record.ID)
	if err != nil || !live {
		t.Fatalf("minted token must be live: live=%v err=%v", live, err)
	}

	stored, err := w.credentials.FindByID(ctx, "cred-1")
	if err != nil {
		t.Fatalf("find credential: %v", err)
	}
	if stored.SignCount != 7 || stored.LastUsedAt.IsZero() {
		t.Fatalf("credential not updated: %+v", stored)
	}
}

func TestCompleteAuthentication_RevokedCredential(t *testing.T) {
	w := newWorld(t, defaultConfig(), okAttestation{}, okAssertion{signCount: 2})
	ctx := context.Background()
	register(t, w, "cred-1")

	opts, err := w.service.BeginAuthentication(ctx, "user-1", "tenant-1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := w.service.RevokeCredential(ctx, "user-1", "tenant-1", "cred-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	_, err = w.service.CompleteAuthentication(ctx, "user-1", "tenant-1", "client-1", opts.Challenge,
		webauthn.AssertionResponse{CredentialID: "cred-1"})
	if !errx.IsCode(err, webauthn.CodeInvalidCredential) {
		t.Fatalf("want INVALID_CREDENTIAL, got %v", err)
	}
}

func TestCompleteAuthentication_FailedAssertion(t *testing.T) {
	w := newWorld(t, defaultConfig(), okAttestation{}, failingAssertion{})
	ctx := context.Background()
	register(t, w, "cred-1")

	opts, err := w.service.BeginAuthentication(ctx, "user-1", "tenant-1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, err = w.service.CompleteAuthentication(ctx, "user-1", "tenant-1", "client-1", opts.Challenge,
		webauthn.AssertionResponse{CredentialID: "cred-1"})
	if !errx.IsCode(err, webauthn.CodeInvalidCredential) {
		t.Fatalf("want INVALID_CREDENTIAL, got %v", err)
	}
}

func TestConcurrentPendingChallenges(t *testing.T) {
	w := newWorld(t, defaultConfig(), okAttestation{}, okAssertion{signCount: 2})
	ctx := context.Background()
	register(t, w, "cred-1")

	// Two devices mid-ceremony at once; completing one leaves the other
	// pending and completable.
	optsA, err := w.service.BeginAuthentication(ctx, "user-1", "tenant-1")
	if err != nil {
		t.Fatalf("begin A: %v", err)
	}
	optsB, err := w.service.BeginAuthentication(ctx, "user-1", "tenant-1")
	if err != nil {
		t.Fatalf("begin B: %v", err)
	}
	if optsA.Challenge == optsB.Challenge {
		t.Fatal("challenges must be unique")
	}

	if _, err := w.service.CompleteAuthentication(ctx, "user-1", "tenant-1", "client-1", optsA.Challenge,
		webauthn.AssertionResponse{CredentialID: "cred-1"}); err != nil {
		t.Fatalf("complete A: %v", err)
	}
	if _, err := w.service.CompleteAuthentication(ctx, "user-1", "tenant-1", "client-1", optsB.Challenge,
		webauthn.AssertionResponse{CredentialID: "cred-1"}); err != nil {
		t.Fatalf("complete B after A: %v", err)
	}
}
