package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/Abraxas-365/custodia/pkg/errx"
	"github.com/Abraxas-365/custodia/pkg/iam/auth"
	"github.com/Abraxas-365/custodia/pkg/iam/client"
	"github.com/Abraxas-365/custodia/pkg/iam/scope"
	"github.com/Abraxas-365/custodia/pkg/iam/tenant"
	"github.com/Abraxas-365/custodia/pkg/iam/token"
	"github.com/Abraxas-365/custodia/pkg/iam/user"
	"github.com/Abraxas-365/custodia/pkg/kernel"
)

// ==== Fakes ====

type fakeVerifier struct {
	tokens map[string]*token.VerifiedToken
}

func (f *fakeVerifier) Verify(raw string) (*token.VerifiedToken, error) {
	vt, ok := f.tokens[raw]
	if !ok {
		return nil, errx.New("bad token", errx.TypeAuthorization)
	}
	return vt, nil
}

type fakeValidator struct {
	live map[string]bool
}

func (f *fakeValidator) IsValid(_ context.Context, id string) (bool, error) {
	return f.live[id], nil
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
	return u, nil
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

type fakeProjectionCache struct {
	entries map[kernel.UserID]*kernel.SessionProjection
	gets    int
	hits    int
}

func (f *fakeProjectionCache) Get(_ context.Context, id kernel.UserID) (*kernel.SessionProjection, bool) {
	f.gets++
	p, ok := f.entries[id]
	if ok {
		f.hits++
	}
	return p, ok
}

func (f *fakeProjectionCache) Set(_ context.Context, id kernel.UserID, p *kernel.SessionProjection) error {
	f.entries[id] = p
	return nil
}

func (f *fakeProjectionCache) Invalidate(_ context.Context, id kernel.UserID) error {
	delete(f.entries, id)
	return nil
}

type recordingAudit struct {
	granted int
	denied  []string
}

func (r *recordingAudit) AuthorizationGranted(_ context.Context, _ auth.Identity, _, _ string) {
	r.granted++
}

func (r *recordingAudit) AuthorizationDenied(_ context.Context, _ auth.Identity, _, _, stage string, _ error) {
	r.denied = append(r.denied, stage)
}

// ==== Fixture ====

type world struct {
	verifier  *fakeVerifier
	validator *fakeValidator
	clients   *fakeClientRepo
	users     *fakeUserRepo
	tenants   *fakeTenantRepo
	cache     *fakeProjectionCache
	audit     *recordingAudit
	registry  *scope.Registry
}

func newWorld(t *testing.T) *world {
	t.Helper()

	registry, err := scope.NewBuilder().
		Declare("client", "create", "oauth:client:create", "oauth:").
		Declare("invoice", "read", "billing:invoice:read").
		Build()
	if err != nil {
		t.Fatalf("building registry: %v", err)
	}

	w := &world{
		verifier:  &fakeVerifier{tokens: map[string]*token.VerifiedToken{}},
		validator: &fakeValidator{live: map[string]bool{}},
		clients:   &fakeClientRepo{clients: map[kernel.ClientID]*client.Client{}},
		users:     &fakeUserRepo{users: map[kernel.UserID]*user.User{}},
		tenants:   &fakeTenantRepo{tenants: map[kernel.TenantID]*tenant.Tenant{}},
		cache:     &fakeProjectionCache{entries: map[kernel.UserID]*kernel.SessionProjection{}},
		audit:     &recordingAudit{},
		registry:  registry,
	}

	w.tenants.tenants["tenant-1"] = &tenant.Tenant{
		ID:     "tenant-1",
		Name:   "Acme",
		Status: tenant.StatusActive,
	}
	w.clients.clients["client-1"] = &client.Client{
		ID:       "client-1",
		TenantID: "tenant-1",
		Status:   client.StatusActive,
	}
	w.users.users["user-1"] = &user.User{
		ID:          "user-1",
		TenantID:    "tenant-1",
		DisplayName: "Ada",
		Scopes:      []string{"oauth:client:"},
		Status:      user.StatusActive,
	}

	w.verifier.tokens["good"] = &token.VerifiedToken{
		AccessTokenID: "at-1",
		ClientID:      "client-1",
		UserID:        "user-1",
		TenantID:      "tenant-1",
		Scopes:        []string{"oauth:client:create"},
		ExpiresAt:     time.Now().Add(time.Hour),
	}
	w.validator.live["at-1"] = true

	return w
}

func (w *world) authorizer(strategy auth.Authenticator) *auth.Authorizer {
	return auth.NewAuthorizer(
		strategy, w.verifier, w.validator, w.registry,
		w.clients, w.users, w.tenants, w.cache, w.audit,
	)
}

func bearer(token string) auth.Request {
	return auth.Request{Authorization: "Bearer " + token, RemoteIP: "203.0.113.7"}
}

// ==== Tests ====

func TestAuthorize_Success(t *testing.T) {
	w := newWorld(t)
	a := w.authorizer(auth.NewBearerStrategy())

	ac, err := a.Authorize(context.Background(), bearer("good"), "client", "create")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if ac.UserID != "user-1" || ac.ClientID != "client-1" || ac.TenantID != "tenant-1" {
		t.Fatalf("unexpected identity: %+v", ac)
	}
	if ac.Session != nil {
		t.Fatalf("bearer requests must not carry a session projection")
	}
	if w.audit.granted != 1 || len(w.audit.denied) != 0 {
		t.Fatalf("audit mismatch: granted=%d denied=%v", w.audit.granted, w.audit.denied)
	}
}

func TestAuthorize_MissingHeader(t *testing.T) {
	w := newWorld(t)
	a := w.authorizer(auth.NewBearerStrategy())

	_, err := a.Authorize(context.Background(), auth.Request{}, "client", "create")
	if !errx.IsCode(err, auth.CodeUnauthorizedAccess) {
		t.Fatalf("want UNAUTHORIZED_ACCESS, got %v", err)
	}
}

func TestAuthorize_RevokedToken(t *testing.T) {
	w := newWorld(t)
	w.validator.live["at-1"] = false
	a := w.authorizer(auth.NewBearerStrategy())

	_, err := a.Authorize(context.Background(), bearer("good"), "client", "create")
	if !errx.IsCode(err, auth.CodeUnauthorizedAccess) {
		t.Fatalf("want UNAUTHORIZED_ACCESS, got %v", err)
	}
	if len(w.audit.denied) != 1 || w.audit.denied[0] != "revocation" {
		t.Fatalf("want revocation denial, got %v", w.audit.denied)
	}
}

func TestAuthorize_UndeclaredOperation(t *testing.T) {
	w := newWorld(t)
	a := w.authorizer(auth.NewBearerStrategy())

	// A perfectly valid token still fails on an operation nobody declared.
	_, err := a.Authorize(context.Background(), bearer("good"), "client", "delete")
	if !errx.IsCode(err, auth.CodeMissingResourceScope) {
		t.Fatalf("want MISSING_RESOURCE_SCOPE, got %v", err)
	}
}

func TestAuthorize_InsufficientScope(t *testing.T) {
	w := newWorld(t)
	a := w.authorizer(auth.NewBearerStrategy())

	_, err := a.Authorize(context.Background(), bearer("good"), "invoice", "read")
	if !errx.IsCode(err, auth.CodeUnauthorizedAccess) {
		t.Fatalf("want UNAUTHORIZED_ACCESS, got %v", err)
	}
}

func TestAuthorize_InactiveClient(t *testing.T) {
	w := newWorld(t)
	w.clients.clients["client-1"].Status = client.StatusInactive
	a := w.authorizer(auth.NewBearerStrategy())

	_, err := a.Authorize(context.Background(), bearer("good"), "client", "create")
	if !errx.IsCode(err, auth.CodeUnauthorizedClient) {
		t.Fatalf("want UNAUTHORIZED_CLIENT, got %v", err)
	}
}

func TestAuthorize_SuspendedTenant(t *testing.T) {
	w := newWorld(t)
	w.tenants.tenants["tenant-1"].Status = tenant.StatusSuspended
	a := w.authorizer(auth.NewBearerStrategy())

	_, err := a.Authorize(context.Background(), bearer("good"), "client", "create")
	if !errx.IsCode(err, auth.CodeUnauthorizedClient) {
		t.Fatalf("want UNAUTHORIZED_CLIENT, got %v", err)
	}
}

func TestAuthorize_TenantIPAllowlist(t *testing.T) {
	w := newWorld(t)
	w.tenants.tenants["tenant-1"].IPAllowlist = []string{"10.0.0.0/8"}
	a := w.authorizer(auth.NewBearerStrategy())

	req := bearer("good")
	req.RemoteIP = "192.168.1.1"
	if _, err := a.Authorize(context.Background(), req, "client", "create"); !errx.IsCode(err, auth.CodeUnauthorizedAccess) {
		t.Fatalf("want UNAUTHORIZED_ACCESS for blocked ip, got %v", err)
	}

	req.RemoteIP = "10.1.2.3"
	if _, err := a.Authorize(context.Background(), req, "client", "create"); err != nil {
		t.Fatalf("allowlisted ip rejected: %v", err)
	}
}

func TestAuthorize_UserScopeRevoked(t *testing.T) {
	w := newWorld(t)
	// The token still claims oauth:client:create but the tenant-level grant
	// is gone; authorization must fail on the user stage.
	w.users.users["user-1"].Scopes = []string{"billing:invoice:read"}
	a := w.authorizer(auth.NewBearerStrategy())

	_, err := a.Authorize(context.Background(), bearer("good"), "client", "create")
	if !errx.IsCode(err, auth.CodeUnauthorizedUser) {
		t.Fatalf("want UNAUTHORIZED_USER, got %v", err)
	}
	if len(w.audit.denied) != 1 || w.audit.denied[0] != "user" {
		t.Fatalf("want user denial, got %v", w.audit.denied)
	}
}

func TestAuthorize_InactiveUser(t *testing.T) {
	w := newWorld(t)
	w.users.users["user-1"].Status = user.StatusInactive
	a := w.authorizer(auth.NewBearerStrategy())

	_, err := a.Authorize(context.Background(), bearer("good"), "client", "create")
	if !errx.IsCode(err, auth.CodeUnauthorizedUser) {
		t.Fatalf("want UNAUTHORIZED_USER, got %v", err)
	}
}

func TestAuthorize_SessionCookieAttachesProjection(t *testing.T) {
	w := newWorld(t)

	codec, err := auth.NewCookieCodec([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	sealed, err := codec.Encrypt("good")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	a := w.authorizer(auth.NewSessionCookieStrategy(codec, "custodia_session"))
	req := auth.Request{
		Cookies:  map[string]string{"custodia_session": sealed},
		RemoteIP: "203.0.113.7",
	}

	ac, err := a.Authorize(context.Background(), req, "client", "create")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if ac.Session == nil {
		t.Fatal("cookie session must carry a projection")
	}
	if ac.Session.DisplayName != "Ada" || ac.Session.TenantName != "Acme" {
		t.Fatalf("unexpected projection: %+v", ac.Session)
	}

	// Second request is served from the cache.
	if _, err := a.Authorize(context.Background(), req, "client", "create"); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if w.cache.hits != 1 {
		t.Fatalf("want 1 cache hit, got %d", w.cache.hits)
	}
}

func TestAuthorize_SessionCookieTampered(t *testing.T) {
	w := newWorld(t)

	codec, err := auth.NewCookieCodec([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("codec: %v", err)
	}

	a := w.authorizer(auth.NewSessionCookieStrategy(codec, "custodia_session"))
	req := auth.Request{
		Cookies:  map[string]string{"custodia_session": "bm90LWEtcmVhbC1jb29raWU"},
		RemoteIP: "203.0.113.7",
	}

	_, err = a.Authorize(context.Background(), req, "client", "create")
	if !errx.IsCode(err, auth.CodeUnauthorizedAccess) {
		t.Fatalf("want UNAUTHORIZED_ACCESS, got %v", err)
	}
}

func TestSignedJwtStrategy_RejectsEverything(t *testing.T) {
	w := newWorld(t)
	a := w.authorizer(auth.NewSignedJwtStrategy())

	_, err := a.Authorize(context.Background(), bearer("good"), "client", "create")
	if !errx.IsCode(err, auth.CodeUnauthorizedAccess) {
		t.Fatalf("want UNAUTHORIZED_ACCESS, got %v", err)
	}
}
